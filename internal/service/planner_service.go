package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/planforma/planforma-api/internal/dto"
	"github.com/planforma/planforma-api/internal/models"
	appErrors "github.com/planforma/planforma-api/pkg/errors"
)

type plannerPlanRepository interface {
	FindByWeekStart(ctx context.Context, weekStart time.Time) (*models.WeeklyPlan, error)
	Create(ctx context.Context, exec sqlx.ExtContext, plan *models.WeeklyPlan) error
	UpdateScore(ctx context.Context, exec sqlx.ExtContext, id string, score float64) error
}

type plannerSessionRepository interface {
	ListByPlan(ctx context.Context, planID string) ([]models.Session, error)
	ListEquipmentIDs(ctx context.Context, sessionID string) ([]string, error)
	AssignResources(ctx context.Context, exec sqlx.ExtContext, id string, trainerID, roomID *string) error
}

// plannerConflictDetector validates placements after they are committed.
// The detector, not the heuristic, decides session statuses.
type plannerConflictDetector interface {
	DetectSession(ctx context.Context, sessionID string) ([]dto.ConflictDescriptor, error)
}

type plannerSlotRepository interface {
	ListByPlan(ctx context.Context, planID string) ([]models.TimeSlot, error)
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimeSlot) error
	CountSeededForWeek(ctx context.Context, weekStart, weekEnd time.Time) (int, error)
}

type trainerDirectory interface {
	List(ctx context.Context) ([]models.Trainer, error)
	ListAllAvailability(ctx context.Context) ([]models.AvailabilityWindow, error)
}

type roomDirectory interface {
	List(ctx context.Context) ([]models.Room, error)
}

type equipmentDirectory interface {
	List(ctx context.Context) ([]models.Equipment, error)
}

type groupDirectory interface {
	List(ctx context.Context) ([]models.StudentGroup, error)
}

type preferenceSource interface {
	ListAll(ctx context.Context) ([]models.Preference, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// PlannerConfig tunes the allocation heuristic.
type PlannerConfig struct {
	RetryBudget       int
	RetryDepth        int
	LocalSearchPasses int
	GreedyThreshold   float64
	RetryThreshold    float64
}

// PlannerService allocates the sessions of a weekly plan onto candidate
// windows. Runs are serialised per week key; the algorithm works on an
// in-memory snapshot and commits in a single transaction.
type PlannerService struct {
	plans     plannerPlanRepository
	sessions  plannerSessionRepository
	slots     plannerSlotRepository
	trainers  trainerDirectory
	rooms     roomDirectory
	equipment equipmentDirectory
	groups    groupDirectory
	prefs     preferenceSource
	detector  plannerConflictDetector
	tx        txProvider
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       PlannerConfig
	locks     *weekLocks
}

// NewPlannerService wires planner dependencies.
func NewPlannerService(
	plans plannerPlanRepository,
	sessions plannerSessionRepository,
	slots plannerSlotRepository,
	trainers trainerDirectory,
	rooms roomDirectory,
	equipment equipmentDirectory,
	groups groupDirectory,
	prefs preferenceSource,
	detector plannerConflictDetector,
	tx txProvider,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg PlannerConfig,
) *PlannerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetryBudget <= 0 {
		cfg.RetryBudget = 1000
	}
	if cfg.RetryDepth <= 0 {
		cfg.RetryDepth = 10
	}
	if cfg.LocalSearchPasses <= 0 {
		cfg.LocalSearchPasses = 50
	}
	if cfg.GreedyThreshold <= 0 {
		cfg.GreedyThreshold = 0.3
	}
	if cfg.RetryThreshold <= 0 {
		cfg.RetryThreshold = 0.2
	}
	return &PlannerService{
		plans:     plans,
		sessions:  sessions,
		slots:     slots,
		trainers:  trainers,
		rooms:     rooms,
		equipment: equipment,
		groups:    groups,
		prefs:     prefs,
		detector:  detector,
		tx:        tx,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		locks:     newWeekLocks(),
	}
}

// Generate allocates every unplaced session of the week.
func (s *PlannerService) Generate(ctx context.Context, req dto.GeneratePlanRequest) (*dto.GeneratePlanResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generate payload")
	}
	weekStart, err := time.Parse("2006-01-02", req.WeekStart)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "weekStart must be formatted YYYY-MM-DD")
	}
	if !isMonday(weekStart) {
		return nil, appErrors.Clone(appErrors.ErrInvalidWeekStart, "")
	}

	unlock := s.locks.acquire(req.WeekStart)
	defer unlock()

	plan, created, err := s.findOrPreparePlan(ctx, weekStart, req.Name)
	if err != nil {
		return nil, err
	}

	pctx, err := s.buildContext(ctx)
	if err != nil {
		return nil, err
	}

	sessions, err := s.sessions.ListByPlan(ctx, plan.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan sessions")
	}
	placedSlots, err := s.slots.ListByPlan(ctx, plan.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan slots")
	}

	reservations := newReservationSet(equipmentCapacities(pctx))
	placedSessions := make(map[string]bool)
	sessionByID := make(map[string]models.Session, len(sessions))
	equipmentBySession := make(map[string][]string, len(sessions))
	for _, session := range sessions {
		sessionByID[session.ID] = session
		ids, err := s.sessions.ListEquipmentIDs(ctx, session.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session equipment")
		}
		equipmentBySession[session.ID] = ids
	}
	for _, slot := range placedSlots {
		if slot.SessionID == nil {
			continue
		}
		session, ok := sessionByID[*slot.SessionID]
		if !ok {
			continue
		}
		placedSessions[session.ID] = true
		start := minutesOfDay(slot.StartTime)
		end := minutesOfDay(slot.EndTime)
		if start < 0 || end < 0 {
			continue
		}
		reservations.reserve(resourceKeysFor(session, equipmentBySession[session.ID]), slot.Date, start, end)
	}

	pending := make([]models.Session, 0, len(sessions))
	for _, session := range sessions {
		if placedSessions[session.ID] {
			continue
		}
		if session.Status == models.SessionStatusCancelled {
			continue
		}
		pending = append(pending, session)
	}

	// Hardest sessions first: big cohorts, then scarce equipment.
	sort.SliceStable(pending, func(i, j int) bool {
		sizeI := pctx.groupSize(pending[i])
		sizeJ := pctx.groupSize(pending[j])
		if sizeI != sizeJ {
			return sizeI > sizeJ
		}
		return pctx.scarceEquipmentCount(equipmentBySession[pending[i].ID]) > pctx.scarceEquipmentCount(equipmentBySession[pending[j].ID])
	})

	windows := generateWeekWindows(weekStart)
	stats := dto.PlannerStats{}

	placements, unassigned := s.greedyPass(pctx, pending, equipmentBySession, windows, reservations, &stats)
	retryPlacements, stillUnassigned := s.retryPass(pctx, unassigned, equipmentBySession, windows, reservations, &stats)
	placements = append(placements, retryPlacements...)

	s.localSearch(pctx, placements, reservations, equipmentBySession, &stats)

	globalScore := 0.0
	for _, pl := range placements {
		globalScore += pl.score
	}
	if len(placements) > 0 {
		globalScore /= float64(len(placements))
	}

	if err := s.commit(ctx, plan, created, placements, globalScore); err != nil {
		return nil, err
	}

	// Statuses come from detection, never from the heuristic's bookkeeping.
	if s.detector != nil {
		for _, pl := range placements {
			if _, err := s.detector.DetectSession(ctx, pl.session.ID); err != nil {
				s.logger.Warn("post-placement detection failed",
					zap.String("session_id", pl.session.ID), zap.Error(err))
			}
		}
	}

	if s.metrics != nil {
		s.metrics.RecordPlannerRun(len(placements), len(stillUnassigned))
	}
	s.logger.Info("planner run complete",
		zap.String("plan_id", plan.ID),
		zap.Int("assigned", len(placements)),
		zap.Int("unassigned", len(stillUnassigned)),
		zap.Float64("score", globalScore),
	)

	resp := &dto.GeneratePlanResponse{
		PlanID:        plan.ID,
		WeekStart:     req.WeekStart,
		GlobalScore:   globalScore,
		ConflictCount: len(stillUnassigned),
		Stats:         stats,
	}
	for _, pl := range placements {
		resp.Placements = append(resp.Placements, dto.SessionPlacement{
			SessionID: pl.session.ID,
			SlotID:    pl.slotID,
			Date:      pl.window.Date.Format("2006-01-02"),
			Weekday:   pl.window.Weekday,
			StartTime: pl.window.StartTime(),
			EndTime:   pl.window.EndTime(),
			TrainerID: pl.session.TrainerID,
			RoomID:    pl.session.RoomID,
			Score:     pl.score,
			Relaxed:   pl.relaxed,
		})
	}
	for _, session := range stillUnassigned {
		resp.UnassignedIDs = append(resp.UnassignedIDs, session.ID)
	}
	return resp, nil
}

// SeedSlots persists the generator's candidate windows as free slots.
func (s *PlannerService) SeedSlots(ctx context.Context, req dto.SeedSlotsRequest) (*dto.SeedSlotsResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid seed payload")
	}
	weekStart, err := time.Parse("2006-01-02", req.WeekStart)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "weekStart must be formatted YYYY-MM-DD")
	}
	if !isMonday(weekStart) {
		return nil, appErrors.Clone(appErrors.ErrInvalidWeekStart, "")
	}

	unlock := s.locks.acquire(req.WeekStart)
	defer unlock()

	existing, err := s.slots.CountSeededForWeek(ctx, weekStart, weekStart.AddDate(0, 0, 6))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect seeded slots")
	}
	if existing > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "week already seeded")
	}

	windows := generateWeekWindows(weekStart)
	slots := make([]models.TimeSlot, 0, len(windows))
	for _, window := range windows {
		slots = append(slots, models.TimeSlot{
			Date:            window.Date,
			Weekday:         window.Weekday,
			StartTime:       window.StartTime(),
			EndTime:         window.EndTime(),
			DurationMinutes: window.Duration,
		})
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	if err := s.slots.InsertBatch(ctx, tx, slots); err != nil {
		_ = tx.Rollback()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to seed slots")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit seeded slots")
	}
	return &dto.SeedSlotsResponse{WeekStart: req.WeekStart, Created: len(slots)}, nil
}

// placement holds a chosen (window, trainer, room) combination. session is a
// working copy carrying the chosen resources; newTrainer/newRoom mark the
// ones the planner picked itself and must persist on commit.
type placement struct {
	session    models.Session
	window     candidateWindow
	score      float64
	relaxed    bool
	slotID     string
	newTrainer bool
	newRoom    bool
}

// fitsDuration rejects windows shorter than the session's teaching time.
func fitsDuration(session models.Session, window candidateWindow) bool {
	return session.DurationMinutes <= 0 || window.Duration >= session.DurationMinutes
}

// withResources returns a session copy with candidate resources filled in.
func withResources(session models.Session, trainerID, roomID *string) models.Session {
	out := session
	out.TrainerID = trainerID
	out.RoomID = roomID
	return out
}

// greedyPass enumerates every (window, trainer, room) combination per session
// and commits the arg-max when it clears the acceptance threshold.
func (s *PlannerService) greedyPass(
	pctx *planningContext,
	pending []models.Session,
	equipmentBySession map[string][]string,
	windows []candidateWindow,
	reservations *reservationSet,
	stats *dto.PlannerStats,
) ([]*placement, []models.Session) {
	placements := make([]*placement, 0, len(pending))
	unassigned := make([]models.Session, 0)

	for _, session := range pending {
		var best *placement
		for _, window := range windows {
			if !fitsDuration(session, window) {
				continue
			}
			for _, trainerID := range pctx.trainerCandidates(session) {
				for _, roomID := range pctx.roomCandidates(session) {
					candidate := withResources(session, trainerID, roomID)
					keys := resourceKeysFor(candidate, equipmentBySession[session.ID])
					if !reservations.free(keys, window.Date, window.Start, window.End) {
						continue
					}
					score := pctx.scoreAssignment(candidate, window)
					if best == nil || score > best.score {
						best = &placement{
							session:    candidate,
							window:     window,
							score:      score,
							newTrainer: session.TrainerID == nil && trainerID != nil,
							newRoom:    session.RoomID == nil && roomID != nil,
						}
					}
				}
			}
		}
		if best != nil && best.score > s.cfg.GreedyThreshold {
			keys := resourceKeysFor(best.session, equipmentBySession[session.ID])
			reservations.reserve(keys, best.window.Date, best.window.Start, best.window.End)
			placements = append(placements, best)
			stats.GreedyAssigned++
			continue
		}
		unassigned = append(unassigned, session)
	}
	return placements, unassigned
}

// retryPass relaxes the acceptance threshold and takes the first workable
// combination per session, under a global evaluation budget and a per-session
// candidate cap.
func (s *PlannerService) retryPass(
	pctx *planningContext,
	pending []models.Session,
	equipmentBySession map[string][]string,
	windows []candidateWindow,
	reservations *reservationSet,
	stats *dto.PlannerStats,
) ([]*placement, []models.Session) {
	placements := make([]*placement, 0)
	unassigned := make([]models.Session, 0)
	budget := s.cfg.RetryBudget

	for _, session := range pending {
		assigned := false
		candidates := 0
	windowLoop:
		for _, window := range windows {
			if !fitsDuration(session, window) {
				continue
			}
			for _, trainerID := range pctx.trainerCandidates(session) {
				for _, roomID := range pctx.roomCandidates(session) {
					if budget <= 0 || candidates >= s.cfg.RetryDepth {
						break windowLoop
					}
					budget--
					stats.RetryIterations++
					candidate := withResources(session, trainerID, roomID)
					score := pctx.scoreAssignment(candidate, window)
					if score <= s.cfg.RetryThreshold {
						continue
					}
					candidates++
					keys := resourceKeysFor(candidate, equipmentBySession[session.ID])
					if !reservations.free(keys, window.Date, window.Start, window.End) {
						continue
					}
					reservations.reserve(keys, window.Date, window.Start, window.End)
					placements = append(placements, &placement{
						session:    candidate,
						window:     window,
						score:      score,
						relaxed:    true,
						newTrainer: session.TrainerID == nil && trainerID != nil,
						newRoom:    session.RoomID == nil && roomID != nil,
					})
					stats.RetryAssigned++
					assigned = true
					break windowLoop
				}
			}
		}
		if !assigned {
			unassigned = append(unassigned, session)
		}
	}
	return placements, unassigned
}

// localSearch swaps window pairs while the pair's combined score strictly
// improves. Each pass scans all pairs; a clean pass ends the search.
func (s *PlannerService) localSearch(
	pctx *planningContext,
	placements []*placement,
	reservations *reservationSet,
	equipmentBySession map[string][]string,
	stats *dto.PlannerStats,
) {
	for pass := 0; pass < s.cfg.LocalSearchPasses; pass++ {
		stats.LocalSearchPasses++
		swapped := false
		for i := 0; i < len(placements); i++ {
			for j := i + 1; j < len(placements); j++ {
				a, b := placements[i], placements[j]
				if !fitsDuration(a.session, b.window) || !fitsDuration(b.session, a.window) {
					continue
				}
				newScoreA := pctx.scoreAssignment(a.session, b.window)
				newScoreB := pctx.scoreAssignment(b.session, a.window)
				if newScoreA+newScoreB <= a.score+b.score {
					continue
				}
				keysA := resourceKeysFor(a.session, equipmentBySession[a.session.ID])
				keysB := resourceKeysFor(b.session, equipmentBySession[b.session.ID])
				reservations.release(keysA, a.window.Date, a.window.Start, a.window.End)
				reservations.release(keysB, b.window.Date, b.window.Start, b.window.End)
				a.window, b.window = b.window, a.window
				a.score, b.score = newScoreA, newScoreB
				reservations.reserve(keysA, a.window.Date, a.window.Start, a.window.End)
				reservations.reserve(keysB, b.window.Date, b.window.Start, b.window.End)
				stats.SwapCount++
				swapped = true
			}
		}
		if !swapped {
			break
		}
	}
}

func (s *PlannerService) findOrPreparePlan(ctx context.Context, weekStart time.Time, name string) (*models.WeeklyPlan, bool, error) {
	plan, err := s.plans.FindByWeekStart(ctx, weekStart)
	if err == nil {
		if plan.Status != models.PlanStatusInProgress {
			return nil, false, appErrors.Clone(appErrors.ErrPreconditionFailed, "only in-progress plans can be regenerated")
		}
		return plan, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	if name == "" {
		name = fmt.Sprintf("Week of %s", weekStart.Format("2006-01-02"))
	}
	return &models.WeeklyPlan{
		Name:      name,
		WeekStart: weekStart,
		Status:    models.PlanStatusInProgress,
	}, true, nil
}

func (s *PlannerService) buildContext(ctx context.Context) (*planningContext, error) {
	trainers, err := s.trainers.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trainers")
	}
	windows, err := s.trainers.ListAllAvailability(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}
	equipment, err := s.equipment.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load equipment")
	}
	groups, err := s.groups.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load groups")
	}
	prefs, err := s.prefs.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load preferences")
	}

	pctx := &planningContext{
		trainers:  make(map[string]*trainerSnapshot, len(trainers)),
		rooms:     make(map[string]models.Room, len(rooms)),
		equipment: make(map[string]models.Equipment, len(equipment)),
		groups:    make(map[string]*groupSnapshot, len(groups)),
	}
	for _, trainer := range trainers {
		pctx.trainers[trainer.ID] = &trainerSnapshot{Trainer: trainer}
	}
	for _, window := range windows {
		if snap, ok := pctx.trainers[window.TrainerID]; ok {
			snap.Windows = append(snap.Windows, window)
		}
	}
	for _, trainer := range trainers {
		pctx.trainerIDs = append(pctx.trainerIDs, trainer.ID)
	}
	sort.Strings(pctx.trainerIDs)
	for _, room := range rooms {
		pctx.rooms[room.ID] = room
		pctx.roomIDs = append(pctx.roomIDs, room.ID)
	}
	sort.Strings(pctx.roomIDs)
	for _, eq := range equipment {
		pctx.equipment[eq.ID] = eq
	}
	for _, group := range groups {
		pctx.groups[group.ID] = &groupSnapshot{Group: group}
	}
	for _, pref := range prefs {
		if snap, ok := pctx.trainers[pref.OwnerID]; ok {
			snap.Prefs = append(snap.Prefs, pref)
			continue
		}
		if snap, ok := pctx.groups[pref.OwnerID]; ok {
			snap.Prefs = append(snap.Prefs, pref)
		}
	}
	return pctx, nil
}

func (s *PlannerService) commit(ctx context.Context, plan *models.WeeklyPlan, created bool, placements []*placement, globalScore float64) error {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if created {
		if err = s.plans.Create(ctx, tx, plan); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create plan")
			return err
		}
	}

	for _, pl := range placements {
		sessionID := pl.session.ID
		slot := models.TimeSlot{
			SessionID:       &sessionID,
			Date:            pl.window.Date,
			Weekday:         pl.window.Weekday,
			StartTime:       pl.window.StartTime(),
			EndTime:         pl.window.EndTime(),
			DurationMinutes: pl.window.Duration,
		}
		slots := []models.TimeSlot{slot}
		if err = s.slots.InsertBatch(ctx, tx, slots); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist placement")
			return err
		}
		pl.slotID = slots[0].ID
		if pl.newTrainer || pl.newRoom {
			if err = s.sessions.AssignResources(ctx, tx, sessionID, pl.session.TrainerID, pl.session.RoomID); err != nil {
				err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign session resources")
				return err
			}
		}
	}

	if err = s.plans.UpdateScore(ctx, tx, plan.ID, globalScore); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store plan score")
		return err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit planner transaction")
		return err
	}
	return nil
}

// --- Reservations ---

type resourceKey struct {
	kind string
	id   string
}

func resourceKeysFor(session models.Session, equipmentIDs []string) []resourceKey {
	keys := make([]resourceKey, 0, 3+len(equipmentIDs))
	if session.TrainerID != nil {
		keys = append(keys, resourceKey{kind: "trainer", id: *session.TrainerID})
	}
	if session.RoomID != nil {
		keys = append(keys, resourceKey{kind: "room", id: *session.RoomID})
	}
	if session.GroupID != nil {
		keys = append(keys, resourceKey{kind: "group", id: *session.GroupID})
	}
	for _, eqID := range equipmentIDs {
		keys = append(keys, resourceKey{kind: "equipment", id: eqID})
	}
	return keys
}

type reservedInterval struct {
	date  string
	start int
	end   int
}

// reservationSet tracks resource occupation during a planner run. Overlap is
// boundary-inclusive so back-to-back bookings of one resource are refused
// within a single run. Trainers, rooms and groups are exclusive; an equipment
// pool admits as many concurrent uses as it has units.
type reservationSet struct {
	entries  map[resourceKey][]reservedInterval
	capacity map[resourceKey]int
}

func newReservationSet(capacity map[resourceKey]int) *reservationSet {
	return &reservationSet{
		entries:  make(map[resourceKey][]reservedInterval),
		capacity: capacity,
	}
}

// equipmentCapacities maps every known equipment pool to its unit count.
func equipmentCapacities(pctx *planningContext) map[resourceKey]int {
	capacity := make(map[resourceKey]int, len(pctx.equipment))
	for id, eq := range pctx.equipment {
		capacity[resourceKey{kind: "equipment", id: id}] = eq.Quantity
	}
	return capacity
}

func (r *reservationSet) limit(key resourceKey) int {
	if c, ok := r.capacity[key]; ok && c > 0 {
		return c
	}
	return 1
}

func (r *reservationSet) free(keys []resourceKey, date time.Time, start, end int) bool {
	day := date.Format("2006-01-02")
	for _, key := range keys {
		used := 0
		for _, interval := range r.entries[key] {
			if interval.date != day {
				continue
			}
			if overlapsInclusive(start, end, interval.start, interval.end) {
				used++
			}
		}
		if used >= r.limit(key) {
			return false
		}
	}
	return true
}

func (r *reservationSet) reserve(keys []resourceKey, date time.Time, start, end int) {
	day := date.Format("2006-01-02")
	for _, key := range keys {
		r.entries[key] = append(r.entries[key], reservedInterval{date: day, start: start, end: end})
	}
}

func (r *reservationSet) release(keys []resourceKey, date time.Time, start, end int) {
	day := date.Format("2006-01-02")
	for _, key := range keys {
		intervals := r.entries[key]
		for i, interval := range intervals {
			if interval.date == day && interval.start == start && interval.end == end {
				r.entries[key] = append(intervals[:i], intervals[i+1:]...)
				break
			}
		}
	}
}

// --- Week locks ---

// weekLocks serialises planner writes per week key.
type weekLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newWeekLocks() *weekLocks {
	return &weekLocks{locks: make(map[string]*sync.Mutex)}
}

func (w *weekLocks) acquire(key string) func() {
	w.mu.Lock()
	lock, ok := w.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		w.locks[key] = lock
	}
	w.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}
