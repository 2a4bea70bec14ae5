package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/planforma/planforma-api/internal/dto"
	"github.com/planforma/planforma-api/internal/models"
	appErrors "github.com/planforma/planforma-api/pkg/errors"
)

// Remedy types, ordered by preference rank. Lower ranks are cheaper fixes
// and are always attempted first.
const (
	RemedyCorrectWeekday     = "CORRECT_WEEKDAY"
	RemedyCorrectDate        = "CORRECT_DATE"
	RemedyCreateAvailability = "CREATE_AVAILABILITY"
	RemedyMoveToFreeSlot     = "MOVE_TO_FREE_SLOT"
	RemedyReassignRoom       = "REASSIGN_ROOM"
	RemedyGroupFreeSlot      = "GROUP_FREE_SLOT"
	RemedyAnySlot            = "ANY_SLOT"
	RemedyReassignTrainer    = "REASSIGN_TRAINER"
)

var remedyRanks = map[string]int{
	RemedyCorrectWeekday:     0,
	RemedyCorrectDate:        1,
	RemedyCreateAvailability: 3,
	RemedyMoveToFreeSlot:     4,
	RemedyReassignRoom:       5,
	RemedyGroupFreeSlot:      6,
	RemedyAnySlot:            6,
	RemedyReassignTrainer:    8,
}

const planSummaryCachePrefix = "plan:summary:"

type resolutionConflictRepository interface {
	FindByID(ctx context.Context, id string) (*models.ConflictDetail, error)
	ListByPlan(ctx context.Context, planID string) ([]models.ConflictDetail, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	CountBlockingBySession(ctx context.Context, sessionID string) (int, error)
}

type resolutionSessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	SetStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SessionStatus, hasConflicts bool) error
	SetRoom(ctx context.Context, exec sqlx.ExtContext, id, roomID string) error
	SetTrainer(ctx context.Context, exec sqlx.ExtContext, id, trainerID string) error
	ListTrainerOverlaps(ctx context.Context, trainerID string, date time.Time, start, end, excludeSessionID string) ([]string, error)
	ListRoomOverlaps(ctx context.Context, roomID string, date time.Time, start, end, excludeSessionID string) ([]string, error)
	ListGroupOverlaps(ctx context.Context, groupID string, date time.Time, start, end, excludeSessionID string) ([]string, error)
}

type resolutionSlotRepository interface {
	FindByID(ctx context.Context, id string) (*models.TimeSlot, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.TimeSlot, error)
	UpdateTiming(ctx context.Context, exec sqlx.ExtContext, id string, date time.Time, weekday, start, end string, durationMinutes int) error
}

type resolutionPlanRepository interface {
	FindByID(ctx context.Context, id string) (*models.WeeklyPlan, error)
}

type resolutionTrainerRepository interface {
	List(ctx context.Context) ([]models.Trainer, error)
	ListAvailability(ctx context.Context, trainerID string) ([]models.AvailabilityWindow, error)
	InsertAvailability(ctx context.Context, exec sqlx.ExtContext, trainerID string, windows []models.AvailabilityWindow) error
}

type resolutionRoomRepository interface {
	ListWithMinCapacity(ctx context.Context, size int) ([]models.Room, error)
}

type resolutionGroupRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentGroup, error)
}

// ConflictResolutionService walks a plan's conflicts hardest first and tries
// the cheapest applicable remedy for each. A resolved conflict is deleted,
// a conflict with no applicable remedy stays stored for a human to handle.
type ConflictResolutionService struct {
	conflicts resolutionConflictRepository
	sessions  resolutionSessionRepository
	slots     resolutionSlotRepository
	plans     resolutionPlanRepository
	trainers  resolutionTrainerRepository
	rooms     resolutionRoomRepository
	groups    resolutionGroupRepository
	tx        txProvider
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	validate  *validator.Validate
}

// NewConflictResolutionService wires resolution dependencies.
func NewConflictResolutionService(
	conflicts resolutionConflictRepository,
	sessions resolutionSessionRepository,
	slots resolutionSlotRepository,
	plans resolutionPlanRepository,
	trainers resolutionTrainerRepository,
	rooms resolutionRoomRepository,
	groups resolutionGroupRepository,
	tx txProvider,
	cache *CacheService,
	metrics *MetricsService,
	logger *zap.Logger,
) *ConflictResolutionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictResolutionService{
		conflicts: conflicts,
		sessions:  sessions,
		slots:     slots,
		plans:     plans,
		trainers:  trainers,
		rooms:     rooms,
		groups:    groups,
		tx:        tx,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		validate:  validator.New(),
	}
}

// ResolveAll attempts to resolve every conflict of a plan, hardest first.
func (s *ConflictResolutionService) ResolveAll(ctx context.Context, planID string) (*dto.ResolveAllResponse, error) {
	plan, err := s.loadMutablePlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	details, err := s.conflicts.ListByPlan(ctx, planID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plan conflicts")
	}

	response := &dto.ResolveAllResponse{PlanID: planID, Outcomes: make([]dto.ResolutionOutcome, 0, len(details))}
	for i := range details {
		outcome := s.resolveOne(ctx, plan, &details[i])
		if outcome.Resolved {
			response.ResolvedCount++
		} else {
			response.FailedCount++
		}
		if s.metrics != nil {
			s.metrics.RecordRemedy(outcome.Resolved)
		}
		response.Outcomes = append(response.Outcomes, outcome)
	}

	s.invalidateSummary(ctx, planID)
	s.logger.Info("resolution pass finished",
		zap.String("planId", planID),
		zap.Int("resolved", response.ResolvedCount),
		zap.Int("failed", response.FailedCount))
	return response, nil
}

// ApplyRemedy applies one explicitly chosen remedy to one conflict.
func (s *ConflictResolutionService) ApplyRemedy(ctx context.Context, req dto.ApplyRemedyRequest) (*dto.ResolutionOutcome, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid remedy request")
	}
	detail, err := s.conflicts.FindByID(ctx, req.ConflictID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "conflict not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflict")
	}
	plan, err := s.loadMutablePlan(ctx, detail.PlanID)
	if err != nil {
		return nil, err
	}

	rank, known := remedyRanks[req.RemedyType]
	if !known {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown remedy type %s", req.RemedyType))
	}
	proposal := dto.RemedyProposal{
		Type:     req.RemedyType,
		Rank:     rank,
		Data:     req.RemedyData,
		Degraded: req.RemedyType == RemedyAnySlot,
	}

	if err := s.apply(ctx, plan, detail, proposal); err != nil {
		return nil, err
	}
	s.invalidateSummary(ctx, detail.PlanID)
	outcome := &dto.ResolutionOutcome{
		ConflictID: detail.ID,
		Type:       string(detail.Type),
		Resolved:   true,
		Remedy:     proposal.Type,
	}
	return outcome, nil
}

// ProposeRemedies lists the applicable remedies for a conflict without
// applying any of them.
func (s *ConflictResolutionService) ProposeRemedies(ctx context.Context, conflictID string) ([]dto.RemedyProposal, error) {
	detail, err := s.conflicts.FindByID(ctx, conflictID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "conflict not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflict")
	}
	plan, err := s.plans.FindByID(ctx, detail.PlanID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	return s.proposeRemedies(ctx, plan, detail)
}

// Summary aggregates a plan's conflicts by type and severity. Cached until
// the next mutation of the plan's conflict set.
func (s *ConflictResolutionService) Summary(ctx context.Context, planID string) (*dto.PlanSummary, error) {
	cacheKey := planSummaryCachePrefix + planID
	if s.cache.Enabled() {
		var cached dto.PlanSummary
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	if _, err := s.plans.FindByID(ctx, planID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	details, err := s.conflicts.ListByPlan(ctx, planID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plan conflicts")
	}

	summary := &dto.PlanSummary{
		PlanID:      planID,
		Total:       len(details),
		ByType:      make(map[string]int),
		BySeverity:  make(map[string]int),
		GeneratedAt: time.Now().UTC(),
	}
	for _, detail := range details {
		summary.ByType[string(detail.Type)]++
		summary.BySeverity[fmt.Sprintf("%d", detail.Severity)]++
		if detail.Blocking {
			summary.Blocking++
		}
	}

	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, cacheKey, summary, 0)
	}
	return summary, nil
}

func (s *ConflictResolutionService) loadMutablePlan(ctx context.Context, planID string) (*models.WeeklyPlan, error) {
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	if plan.Status != models.PlanStatusInProgress {
		return nil, appErrors.Clone(appErrors.ErrPlanLocked, fmt.Sprintf("plan is %s and can no longer be modified", plan.Status))
	}
	return plan, nil
}

func (s *ConflictResolutionService) resolveOne(ctx context.Context, plan *models.WeeklyPlan, detail *models.ConflictDetail) dto.ResolutionOutcome {
	outcome := dto.ResolutionOutcome{ConflictID: detail.ID, Type: string(detail.Type)}

	proposals, err := s.proposeRemedies(ctx, plan, detail)
	if err != nil {
		outcome.Detail = err.Error()
		return outcome
	}
	if len(proposals) == 0 {
		outcome.Detail = "no applicable remedy"
		return outcome
	}

	for _, proposal := range proposals {
		if err := s.apply(ctx, plan, detail, proposal); err != nil {
			s.logger.Debug("remedy failed",
				zap.String("conflictId", detail.ID),
				zap.String("remedy", proposal.Type),
				zap.Error(err))
			continue
		}
		outcome.Resolved = true
		outcome.Remedy = proposal.Type
		if proposal.Degraded {
			outcome.Detail = "degraded placement, re-run detection on the session"
		}
		return outcome
	}
	outcome.Detail = "every applicable remedy failed"
	return outcome
}

// proposeRemedies builds the ordered remedy list for a conflict. Equipment
// overbooking and self-overlapping sessions have no automatic fix.
func (s *ConflictResolutionService) proposeRemedies(ctx context.Context, plan *models.WeeklyPlan, detail *models.ConflictDetail) ([]dto.RemedyProposal, error) {
	proposals := []dto.RemedyProposal{}
	add := func(remedyType, description string, data map[string]string, degraded bool) {
		proposals = append(proposals, dto.RemedyProposal{
			Type:        remedyType,
			Rank:        remedyRanks[remedyType],
			Description: description,
			Data:        data,
			Degraded:    degraded,
		})
	}

	switch detail.Type {
	case models.ConflictConstraintViolation:
		if detail.SlotID == nil {
			return proposals, nil
		}
		slot, err := s.slots.FindByID(ctx, *detail.SlotID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflicting slot")
		}
		if weekdayLabel(slot.Date) != slot.Weekday && weekdayOffset(slot.Weekday) >= 0 {
			add(RemedyCorrectWeekday, "rewrite the weekday label to match the slot date", map[string]string{"slotId": slot.ID}, false)
		}
		weekEnd := plan.WeekStart.AddDate(0, 0, 6)
		if slot.Date.Before(plan.WeekStart) || slot.Date.After(weekEnd) {
			if offset := weekdayOffset(slot.Weekday); offset >= 0 {
				target := plan.WeekStart.AddDate(0, 0, offset)
				add(RemedyCorrectDate, "move the slot date into the plan week, keeping its weekday",
					map[string]string{"slotId": slot.ID, "date": target.Format("2006-01-02")}, false)
			}
		}
		return proposals, nil

	case models.ConflictTrainerClash:
		if detail.Severity == models.SeverityAvailability {
			add(RemedyCreateAvailability, "declare the trainer available for this window", nil, false)
		}
		add(RemedyMoveToFreeSlot, "move the slot to a window free for every booked resource", nil, false)
		add(RemedyAnySlot, "force the slot onto another window regardless of clashes", nil, true)
		add(RemedyReassignTrainer, "hand the session to another free trainer", nil, false)
		return proposals, nil

	case models.ConflictRoomClash:
		add(RemedyMoveToFreeSlot, "move the slot to a window free for every booked resource", nil, false)
		add(RemedyReassignRoom, "move the session into another room that fits the group", nil, false)
		add(RemedyAnySlot, "force the slot onto another window regardless of clashes", nil, true)
		return proposals, nil

	case models.ConflictGroupClash:
		add(RemedyMoveToFreeSlot, "move the slot to a window free for every booked resource", nil, false)
		add(RemedyGroupFreeSlot, "move the slot to a window where only the group must be free", nil, false)
		add(RemedyAnySlot, "force the slot onto another window regardless of clashes", nil, true)
		return proposals, nil

	default:
		// EQUIPMENT_OVERBOOK and SESSION_OVERLAP need a human decision.
		return proposals, nil
	}
}

// apply runs one remedy inside a transaction, deletes the conflict on
// success and recomputes the status of every participating session.
func (s *ConflictResolutionService) apply(ctx context.Context, plan *models.WeeklyPlan, detail *models.ConflictDetail, proposal dto.RemedyProposal) error {
	if len(detail.SessionIDs) == 0 {
		return appErrors.Clone(appErrors.ErrUnresolvable, "conflict has no attached session")
	}
	session, err := s.sessions.FindByID(ctx, detail.SessionIDs[0])
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
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

	switch proposal.Type {
	case RemedyCorrectWeekday:
		err = s.applyCorrectWeekday(ctx, tx, detail, proposal)
	case RemedyCorrectDate:
		err = s.applyCorrectDate(ctx, tx, detail, proposal)
	case RemedyCreateAvailability:
		err = s.applyCreateAvailability(ctx, tx, session, detail)
	case RemedyMoveToFreeSlot:
		err = s.applyMoveToSlot(ctx, tx, plan, session, detail, freedomFull)
	case RemedyGroupFreeSlot:
		err = s.applyMoveToSlot(ctx, tx, plan, session, detail, freedomGroupOnly)
	case RemedyAnySlot:
		err = s.applyMoveToSlot(ctx, tx, plan, session, detail, freedomNone)
	case RemedyReassignRoom:
		err = s.applyReassignRoom(ctx, tx, plan, session, proposal)
	case RemedyReassignTrainer:
		err = s.applyReassignTrainer(ctx, tx, session, proposal)
	default:
		err = appErrors.Clone(appErrors.ErrUnresolvable, fmt.Sprintf("no applier for remedy %s", proposal.Type))
	}
	if err != nil {
		return err
	}

	if err = s.conflicts.Delete(ctx, tx, detail.ID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete resolved conflict")
		return err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit remedy")
		return err
	}

	return s.recomputeStatuses(ctx, detail.SessionIDs, proposal.Degraded)
}

// recomputeStatuses flips sessions whose last blocking conflict just
// disappeared back to VALID. A degraded move keeps the flag raised so the
// next detection run revisits the session.
func (s *ConflictResolutionService) recomputeStatuses(ctx context.Context, sessionIDs []string, degraded bool) error {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, sessionID := range sessionIDs {
		var blocking int
		blocking, err = s.conflicts.CountBlockingBySession(ctx, sessionID)
		if err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count session conflicts")
			return err
		}
		if blocking > 0 {
			continue
		}
		if degraded && sessionID == sessionIDs[0] {
			err = s.sessions.SetStatus(ctx, tx, sessionID, models.SessionStatusConflicted, true)
		} else {
			err = s.sessions.SetStatus(ctx, tx, sessionID, models.SessionStatusValid, false)
		}
		if err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session status")
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit status updates")
		return err
	}
	return nil
}

func (s *ConflictResolutionService) applyCorrectWeekday(ctx context.Context, tx *sqlx.Tx, detail *models.ConflictDetail, proposal dto.RemedyProposal) error {
	slot, err := s.conflictSlot(ctx, detail, proposal)
	if err != nil {
		return err
	}
	label := weekdayLabel(slot.Date)
	if label == slot.Weekday {
		return appErrors.Clone(appErrors.ErrUnresolvable, "weekday label already matches the date")
	}
	return s.slots.UpdateTiming(ctx, tx, slot.ID, slot.Date, label, slot.StartTime, slot.EndTime, slot.DurationMinutes)
}

func (s *ConflictResolutionService) applyCorrectDate(ctx context.Context, tx *sqlx.Tx, detail *models.ConflictDetail, proposal dto.RemedyProposal) error {
	slot, err := s.conflictSlot(ctx, detail, proposal)
	if err != nil {
		return err
	}
	var target time.Time
	if raw, ok := proposal.Data["date"]; ok {
		target, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "remedy date must use YYYY-MM-DD")
		}
	} else {
		plan, planErr := s.plans.FindByID(ctx, detail.PlanID)
		if planErr != nil {
			return appErrors.Wrap(planErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
		}
		offset := weekdayOffset(slot.Weekday)
		if offset < 0 {
			return appErrors.Clone(appErrors.ErrUnresolvable, "slot weekday label is not a known day")
		}
		target = plan.WeekStart.AddDate(0, 0, offset)
	}
	return s.slots.UpdateTiming(ctx, tx, slot.ID, target, weekdayLabel(target), slot.StartTime, slot.EndTime, slot.DurationMinutes)
}

func (s *ConflictResolutionService) applyCreateAvailability(ctx context.Context, tx *sqlx.Tx, session *models.Session, detail *models.ConflictDetail) error {
	if session.TrainerID == nil {
		return appErrors.Clone(appErrors.ErrUnresolvable, "session has no trainer")
	}
	if detail.SlotID == nil {
		return appErrors.Clone(appErrors.ErrUnresolvable, "conflict carries no slot")
	}
	slot, err := s.slots.FindByID(ctx, *detail.SlotID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflicting slot")
	}
	window := models.AvailabilityWindow{
		Weekday:   slot.Weekday,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
		Available: true,
	}
	return s.trainers.InsertAvailability(ctx, tx, *session.TrainerID, []models.AvailabilityWindow{window})
}

type freedomLevel int

const (
	freedomFull freedomLevel = iota
	freedomGroupOnly
	freedomNone
)

func (s *ConflictResolutionService) applyMoveToSlot(ctx context.Context, tx *sqlx.Tx, plan *models.WeeklyPlan, session *models.Session, detail *models.ConflictDetail, level freedomLevel) error {
	if detail.SlotID == nil {
		return appErrors.Clone(appErrors.ErrUnresolvable, "conflict carries no slot")
	}
	slot, err := s.slots.FindByID(ctx, *detail.SlotID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflicting slot")
	}

	for _, window := range generateWeekWindows(plan.WeekStart) {
		if window.Duration != slot.DurationMinutes {
			continue
		}
		if window.Date.Equal(slot.Date) && window.StartTime() == slot.StartTime {
			continue
		}
		free, err := s.windowFree(ctx, session, window, level)
		if err != nil {
			return err
		}
		if !free {
			continue
		}
		return s.slots.UpdateTiming(ctx, tx, slot.ID, window.Date, window.Weekday, window.StartTime(), window.EndTime(), window.Duration)
	}
	return appErrors.Clone(appErrors.ErrUnresolvable, "no alternative window found for the slot")
}

// windowFree checks a candidate window against the session's resources.
// freedomNone accepts any window and exists only for the degraded remedy.
func (s *ConflictResolutionService) windowFree(ctx context.Context, session *models.Session, window candidateWindow, level freedomLevel) (bool, error) {
	if level == freedomNone {
		return true, nil
	}
	start := window.StartTime()
	end := window.EndTime()

	if session.GroupID != nil {
		others, err := s.sessions.ListGroupOverlaps(ctx, *session.GroupID, window.Date, start, end, session.ID)
		if err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check group overlaps")
		}
		if len(others) > 0 {
			return false, nil
		}
	}
	if level == freedomGroupOnly {
		return true, nil
	}

	if session.TrainerID != nil {
		others, err := s.sessions.ListTrainerOverlaps(ctx, *session.TrainerID, window.Date, start, end, session.ID)
		if err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check trainer overlaps")
		}
		if len(others) > 0 {
			return false, nil
		}
		windows, err := s.trainers.ListAvailability(ctx, *session.TrainerID)
		if err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trainer availability")
		}
		if len(windows) > 0 && !coveredByAvailability(windows, window.Weekday, window.Start, window.End) {
			return false, nil
		}
	}
	if session.RoomID != nil {
		others, err := s.sessions.ListRoomOverlaps(ctx, *session.RoomID, window.Date, start, end, session.ID)
		if err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room overlaps")
		}
		if len(others) > 0 {
			return false, nil
		}
	}
	return true, nil
}

func (s *ConflictResolutionService) applyReassignRoom(ctx context.Context, tx *sqlx.Tx, plan *models.WeeklyPlan, session *models.Session, proposal dto.RemedyProposal) error {
	if roomID, ok := proposal.Data["roomId"]; ok && roomID != "" {
		return s.sessions.SetRoom(ctx, tx, session.ID, roomID)
	}

	size := 0
	if session.GroupID != nil {
		group, err := s.groups.FindByID(ctx, *session.GroupID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
		}
		if group != nil {
			size = group.Size
		}
	}
	rooms, err := s.rooms.ListWithMinCapacity(ctx, size)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	slots, err := s.slots.ListBySession(ctx, session.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session slots")
	}

	for _, room := range rooms {
		if session.RoomID != nil && room.ID == *session.RoomID {
			continue
		}
		free := true
		for _, slot := range slots {
			others, err := s.sessions.ListRoomOverlaps(ctx, room.ID, slot.Date, slot.StartTime, slot.EndTime, session.ID)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room overlaps")
			}
			if len(others) > 0 {
				free = false
				break
			}
		}
		if free {
			return s.sessions.SetRoom(ctx, tx, session.ID, room.ID)
		}
	}
	return appErrors.Clone(appErrors.ErrUnresolvable, "no fitting room is free for every session slot")
}

func (s *ConflictResolutionService) applyReassignTrainer(ctx context.Context, tx *sqlx.Tx, session *models.Session, proposal dto.RemedyProposal) error {
	if trainerID, ok := proposal.Data["trainerId"]; ok && trainerID != "" {
		return s.sessions.SetTrainer(ctx, tx, session.ID, trainerID)
	}

	trainers, err := s.trainers.List(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list trainers")
	}
	slots, err := s.slots.ListBySession(ctx, session.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session slots")
	}

	for _, trainer := range trainers {
		if session.TrainerID != nil && trainer.ID == *session.TrainerID {
			continue
		}
		windows, err := s.trainers.ListAvailability(ctx, trainer.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trainer availability")
		}
		ok := true
		for _, slot := range slots {
			start := minutesOfDay(slot.StartTime)
			end := minutesOfDay(slot.EndTime)
			if len(windows) > 0 && !coveredByAvailability(windows, slot.Weekday, start, end) {
				ok = false
				break
			}
			others, err := s.sessions.ListTrainerOverlaps(ctx, trainer.ID, slot.Date, slot.StartTime, slot.EndTime, session.ID)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check trainer overlaps")
			}
			if len(others) > 0 {
				ok = false
				break
			}
		}
		if ok {
			return s.sessions.SetTrainer(ctx, tx, session.ID, trainer.ID)
		}
	}
	return appErrors.Clone(appErrors.ErrUnresolvable, "no other trainer is free for every session slot")
}

func (s *ConflictResolutionService) conflictSlot(ctx context.Context, detail *models.ConflictDetail, proposal dto.RemedyProposal) (*models.TimeSlot, error) {
	slotID := ""
	if detail.SlotID != nil {
		slotID = *detail.SlotID
	}
	if override, ok := proposal.Data["slotId"]; ok && override != "" {
		slotID = override
	}
	if slotID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnresolvable, "conflict carries no slot")
	}
	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflicting slot")
	}
	return slot, nil
}

func (s *ConflictResolutionService) invalidateSummary(ctx context.Context, planID string) {
	if !s.cache.Enabled() {
		return
	}
	_ = s.cache.Invalidate(ctx, planSummaryCachePrefix+planID)
}
