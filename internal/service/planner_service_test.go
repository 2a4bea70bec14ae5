package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planforma/planforma-api/internal/dto"
	"github.com/planforma/planforma-api/internal/models"
	appErrors "github.com/planforma/planforma-api/pkg/errors"
)

// --- shared transaction stubs ---

type noopTxProvider struct{}

func (noopTxProvider) BeginTxx(context.Context, *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider unavailable")
}

type txProviderMock struct {
	db *sqlx.DB
}

func (m *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return m.db.BeginTxx(ctx, opts)
}

func appErrorCode(err error) string {
	return appErrors.FromError(err).Code
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

// --- planner stubs ---

type plannerPlanRepoStub struct {
	plan    *models.WeeklyPlan
	created *models.WeeklyPlan
	score   float64
}

func (s *plannerPlanRepoStub) FindByWeekStart(_ context.Context, _ time.Time) (*models.WeeklyPlan, error) {
	if s.plan == nil {
		return nil, sql.ErrNoRows
	}
	return s.plan, nil
}

func (s *plannerPlanRepoStub) Create(_ context.Context, _ sqlx.ExtContext, plan *models.WeeklyPlan) error {
	plan.ID = "plan-new"
	s.created = plan
	return nil
}

func (s *plannerPlanRepoStub) UpdateScore(_ context.Context, _ sqlx.ExtContext, _ string, score float64) error {
	s.score = score
	return nil
}

type plannerSessionRepoStub struct {
	sessions        []models.Session
	equipment       map[string][]string
	assignedTrainer map[string]string
	assignedRoom    map[string]string
}

func (s *plannerSessionRepoStub) ListByPlan(_ context.Context, _ string) ([]models.Session, error) {
	return s.sessions, nil
}

func (s *plannerSessionRepoStub) ListEquipmentIDs(_ context.Context, sessionID string) ([]string, error) {
	return s.equipment[sessionID], nil
}

func (s *plannerSessionRepoStub) AssignResources(_ context.Context, _ sqlx.ExtContext, id string, trainerID, roomID *string) error {
	if trainerID != nil {
		if s.assignedTrainer == nil {
			s.assignedTrainer = make(map[string]string)
		}
		s.assignedTrainer[id] = *trainerID
	}
	if roomID != nil {
		if s.assignedRoom == nil {
			s.assignedRoom = make(map[string]string)
		}
		s.assignedRoom[id] = *roomID
	}
	return nil
}

type plannerSlotRepoStub struct {
	placed   []models.TimeSlot
	inserted []models.TimeSlot
	seeded   int
	nextID   int
}

func (s *plannerSlotRepoStub) ListByPlan(_ context.Context, _ string) ([]models.TimeSlot, error) {
	return s.placed, nil
}

func (s *plannerSlotRepoStub) InsertBatch(_ context.Context, _ sqlx.ExtContext, slots []models.TimeSlot) error {
	for i := range slots {
		s.nextID++
		slots[i].ID = fmt.Sprintf("slot-%d", s.nextID)
	}
	s.inserted = append(s.inserted, slots...)
	return nil
}

func (s *plannerSlotRepoStub) CountSeededForWeek(_ context.Context, _, _ time.Time) (int, error) {
	return s.seeded, nil
}

type trainerDirStub struct {
	trainers []models.Trainer
	windows  []models.AvailabilityWindow
}

func (s *trainerDirStub) List(_ context.Context) ([]models.Trainer, error) {
	return s.trainers, nil
}

func (s *trainerDirStub) ListAllAvailability(_ context.Context) ([]models.AvailabilityWindow, error) {
	return s.windows, nil
}

type roomDirStub struct{ rooms []models.Room }

func (s *roomDirStub) List(_ context.Context) ([]models.Room, error) { return s.rooms, nil }

type equipmentDirStub struct{ equipment []models.Equipment }

func (s *equipmentDirStub) List(_ context.Context) ([]models.Equipment, error) {
	return s.equipment, nil
}

type groupDirStub struct{ groups []models.StudentGroup }

func (s *groupDirStub) List(_ context.Context) ([]models.StudentGroup, error) {
	return s.groups, nil
}

type prefSourceStub struct{ prefs []models.Preference }

func (s *prefSourceStub) ListAll(_ context.Context) ([]models.Preference, error) {
	return s.prefs, nil
}

// --- fixture ---

type plannerFixtureConfig struct {
	plan      *models.WeeklyPlan
	sessions  []models.Session
	placed    []models.TimeSlot
	equipment map[string][]string
	trainers  []models.Trainer
	windows   []models.AvailabilityWindow
	rooms     []models.Room
	pools     []models.Equipment
	groups    []models.StudentGroup
	prefs     []models.Preference
	seeded    int
	tx        txProvider
	planner   PlannerConfig
}

type plannerFixture struct {
	svc      *PlannerService
	plans    *plannerPlanRepoStub
	sessions *plannerSessionRepoStub
	slots    *plannerSlotRepoStub
	detector *detectorStub
	mock     sqlmock.Sqlmock
}

func newPlannerFixture(t *testing.T, cfg plannerFixtureConfig) *plannerFixture {
	t.Helper()
	plans := &plannerPlanRepoStub{plan: cfg.plan}
	sessions := &plannerSessionRepoStub{sessions: cfg.sessions, equipment: cfg.equipment}
	slots := &plannerSlotRepoStub{placed: cfg.placed, seeded: cfg.seeded}
	detector := &detectorStub{}

	var mock sqlmock.Sqlmock
	tx := cfg.tx
	if tx == nil {
		tx, mock = newTxProviderMock(t)
	}

	svc := NewPlannerService(
		plans, sessions, slots,
		&trainerDirStub{trainers: cfg.trainers, windows: cfg.windows},
		&roomDirStub{rooms: cfg.rooms}, &equipmentDirStub{equipment: cfg.pools},
		&groupDirStub{groups: cfg.groups}, &prefSourceStub{prefs: cfg.prefs},
		detector, tx, nil, nil, zap.NewNop(), cfg.planner,
	)
	return &plannerFixture{svc: svc, plans: plans, sessions: sessions, slots: slots, detector: detector, mock: mock}
}

func inProgressPlan() *models.WeeklyPlan {
	return &models.WeeklyPlan{
		ID:        "plan-1",
		Name:      "Week of 2026-01-05",
		WeekStart: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Status:    models.PlanStatusInProgress,
	}
}

// --- tests ---

func TestGenerateRejectsNonMonday(t *testing.T) {
	f := newPlannerFixture(t, plannerFixtureConfig{tx: noopTxProvider{}})

	_, err := f.svc.Generate(context.Background(), dto.GeneratePlanRequest{WeekStart: "2026-01-06"})

	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidWeekStart.Code, appErr.Code)
}

func TestGenerateRefusesLockedPlan(t *testing.T) {
	plan := inProgressPlan()
	plan.Status = models.PlanStatusValidated
	f := newPlannerFixture(t, plannerFixtureConfig{plan: plan, tx: noopTxProvider{}})

	_, err := f.svc.Generate(context.Background(), dto.GeneratePlanRequest{WeekStart: "2026-01-05"})

	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestGeneratePlacesSessionsWithoutResourceOverlap(t *testing.T) {
	f := newPlannerFixture(t, plannerFixtureConfig{
		plan: inProgressPlan(),
		sessions: []models.Session{
			{ID: "s-1", PlanID: "plan-1", Title: "Go basics", TrainerID: strPtr("t-1")},
			{ID: "s-2", PlanID: "plan-1", Title: "Go advanced", TrainerID: strPtr("t-1")},
		},
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	resp, err := f.svc.Generate(context.Background(), dto.GeneratePlanRequest{WeekStart: "2026-01-05"})

	require.NoError(t, err)
	require.Len(t, resp.Placements, 2)
	assert.Equal(t, "plan-1", resp.PlanID)
	assert.Equal(t, 0, resp.ConflictCount)
	assert.Empty(t, resp.UnassignedIDs)
	assert.Greater(t, resp.GlobalScore, 0.0)

	// Both sessions share a trainer: their windows must not touch.
	a, b := resp.Placements[0], resp.Placements[1]
	if a.Date == b.Date {
		assert.False(t, overlapsInclusive(
			minutesOfDay(a.StartTime), minutesOfDay(a.EndTime),
			minutesOfDay(b.StartTime), minutesOfDay(b.EndTime),
		))
	}

	// The detector re-checks every placed session; the heuristic never
	// writes statuses itself.
	assert.ElementsMatch(t, []string{"s-1", "s-2"}, f.detector.detected)
	assert.Len(t, f.slots.inserted, 2)
	assert.NotEmpty(t, resp.Placements[0].SlotID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGenerateCreatesPlanWhenWeekIsNew(t *testing.T) {
	f := newPlannerFixture(t, plannerFixtureConfig{})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	resp, err := f.svc.Generate(context.Background(), dto.GeneratePlanRequest{WeekStart: "2026-01-05"})

	require.NoError(t, err)
	require.NotNil(t, f.plans.created)
	assert.Equal(t, "plan-new", resp.PlanID)
	assert.Equal(t, models.PlanStatusInProgress, f.plans.created.Status)
	assert.Equal(t, "Week of 2026-01-05", f.plans.created.Name)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGenerateSkipsAlreadyPlacedSessions(t *testing.T) {
	sessionID := "s-1"
	f := newPlannerFixture(t, plannerFixtureConfig{
		plan: inProgressPlan(),
		sessions: []models.Session{
			{ID: "s-1", PlanID: "plan-1", TrainerID: strPtr("t-1")},
			{ID: "s-2", PlanID: "plan-1", TrainerID: strPtr("t-1")},
		},
		placed: []models.TimeSlot{
			{
				ID:              "slot-existing",
				SessionID:       &sessionID,
				Date:            time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC),
				Weekday:         "TUESDAY",
				StartTime:       "10:00",
				EndTime:         "11:00",
				DurationMinutes: 60,
			},
		},
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	resp, err := f.svc.Generate(context.Background(), dto.GeneratePlanRequest{WeekStart: "2026-01-05"})

	require.NoError(t, err)
	require.Len(t, resp.Placements, 1)
	assert.Equal(t, "s-2", resp.Placements[0].SessionID)

	// The existing booking of t-1 stays reserved.
	if resp.Placements[0].Date == "2026-01-06" {
		assert.False(t, overlapsInclusive(
			minutesOfDay(resp.Placements[0].StartTime), minutesOfDay(resp.Placements[0].EndTime),
			600, 660,
		))
	}
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGenerateRelaxesThresholdForHardSessions(t *testing.T) {
	// An unavailable-everywhere trainer plus an over-capacity room pins every
	// window's score near 0.3: too low for a 0.35 greedy bar, acceptable on retry.
	windows := make([]models.AvailabilityWindow, 0, 5)
	for _, day := range []string{"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY"} {
		windows = append(windows, models.AvailabilityWindow{
			TrainerID: "t-1", Weekday: day, StartTime: "08:00", EndTime: "19:00", Available: false,
		})
	}
	f := newPlannerFixture(t, plannerFixtureConfig{
		plan: inProgressPlan(),
		sessions: []models.Session{
			{ID: "s-1", PlanID: "plan-1", TrainerID: strPtr("t-1"), RoomID: strPtr("r-1"), GroupID: strPtr("g-1")},
		},
		trainers: []models.Trainer{{ID: "t-1"}},
		windows:  windows,
		rooms:    []models.Room{{ID: "r-1", Capacity: 10}},
		groups:   []models.StudentGroup{{ID: "g-1", Size: 15}},
		planner:  PlannerConfig{GreedyThreshold: 0.35},
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	resp, err := f.svc.Generate(context.Background(), dto.GeneratePlanRequest{WeekStart: "2026-01-05"})

	require.NoError(t, err)
	require.Len(t, resp.Placements, 1)
	assert.True(t, resp.Placements[0].Relaxed)
	assert.Equal(t, 0, resp.Stats.GreedyAssigned)
	assert.Equal(t, 1, resp.Stats.RetryAssigned)
	assert.Empty(t, resp.UnassignedIDs)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSeedSlotsPersistsEveryCandidateWindow(t *testing.T) {
	f := newPlannerFixture(t, plannerFixtureConfig{})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	resp, err := f.svc.SeedSlots(context.Background(), dto.SeedSlotsRequest{WeekStart: "2026-01-05"})

	require.NoError(t, err)
	assert.Equal(t, 90, resp.Created)
	assert.Len(t, f.slots.inserted, 90)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSeedSlotsRejectsDoubleSeed(t *testing.T) {
	f := newPlannerFixture(t, plannerFixtureConfig{seeded: 12, tx: noopTxProvider{}})

	_, err := f.svc.SeedSlots(context.Background(), dto.SeedSlotsRequest{WeekStart: "2026-01-05"})

	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestGenerateHonorsSessionDuration(t *testing.T) {
	f := newPlannerFixture(t, plannerFixtureConfig{
		plan: inProgressPlan(),
		sessions: []models.Session{
			{ID: "s-1", PlanID: "plan-1", Title: "Long workshop", TrainerID: strPtr("t-1"), DurationMinutes: 120},
		},
		trainers: []models.Trainer{{ID: "t-1"}},
		windows: []models.AvailabilityWindow{
			{TrainerID: "t-1", Weekday: "TUESDAY", StartTime: "09:00", EndTime: "12:00", Available: true},
		},
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	resp, err := f.svc.Generate(context.Background(), dto.GeneratePlanRequest{WeekStart: "2026-01-05"})

	require.NoError(t, err)
	require.Len(t, resp.Placements, 1)
	pl := resp.Placements[0]
	assert.GreaterOrEqual(t, minutesOfDay(pl.EndTime)-minutesOfDay(pl.StartTime), 120)

	// Only one 120-minute window fits the declared Tuesday morning.
	assert.Equal(t, "2026-01-06", pl.Date)
	assert.Equal(t, "10:00", pl.StartTime)
	assert.Equal(t, "12:00", pl.EndTime)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGenerateAssignsMissingResources(t *testing.T) {
	f := newPlannerFixture(t, plannerFixtureConfig{
		plan: inProgressPlan(),
		sessions: []models.Session{
			{ID: "s-1", PlanID: "plan-1", Title: "Unstaffed"},
		},
		trainers: []models.Trainer{{ID: "t-1"}},
		rooms:    []models.Room{{ID: "r-1", Capacity: 20}},
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	resp, err := f.svc.Generate(context.Background(), dto.GeneratePlanRequest{WeekStart: "2026-01-05"})

	require.NoError(t, err)
	require.Len(t, resp.Placements, 1)
	pl := resp.Placements[0]
	require.NotNil(t, pl.TrainerID)
	require.NotNil(t, pl.RoomID)
	assert.Equal(t, "t-1", *pl.TrainerID)
	assert.Equal(t, "r-1", *pl.RoomID)

	// The chosen resources are persisted on the session row.
	assert.Equal(t, "t-1", f.sessions.assignedTrainer["s-1"])
	assert.Equal(t, "r-1", f.sessions.assignedRoom["s-1"])
	assert.ElementsMatch(t, []string{"s-1"}, f.detector.detected)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGenerateSharesEquipmentPoolUpToQuantity(t *testing.T) {
	f := newPlannerFixture(t, plannerFixtureConfig{
		plan: inProgressPlan(),
		sessions: []models.Session{
			{ID: "s-1", PlanID: "plan-1", TrainerID: strPtr("t-1")},
			{ID: "s-2", PlanID: "plan-1", TrainerID: strPtr("t-2")},
		},
		equipment: map[string][]string{"s-1": {"eq-1"}, "s-2": {"eq-1"}},
		pools:     []models.Equipment{{ID: "eq-1", Name: "Projector", Quantity: 2}},
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	resp, err := f.svc.Generate(context.Background(), dto.GeneratePlanRequest{WeekStart: "2026-01-05"})

	require.NoError(t, err)
	require.Len(t, resp.Placements, 2)

	// A two-unit pool carries both sessions at once, so nothing keeps the
	// second session off the top-scoring window.
	a, b := resp.Placements[0], resp.Placements[1]
	assert.Equal(t, a.Date, b.Date)
	assert.Equal(t, a.StartTime, b.StartTime)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReservationSetEquipmentHeadroom(t *testing.T) {
	eq := resourceKey{kind: "equipment", id: "eq-1"}
	trainer := resourceKey{kind: "trainer", id: "t-1"}
	set := newReservationSet(map[resourceKey]int{eq: 2})
	day := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)

	require.True(t, set.free([]resourceKey{eq}, day, 600, 720))
	set.reserve([]resourceKey{eq}, day, 600, 720)

	// One of two units is out: a concurrent use still fits.
	assert.True(t, set.free([]resourceKey{eq}, day, 600, 720))
	set.reserve([]resourceKey{eq}, day, 630, 690)

	// Both units busy at the same time.
	assert.False(t, set.free([]resourceKey{eq}, day, 600, 720))
	// A disjoint afternoon use of the pool is still fine.
	assert.True(t, set.free([]resourceKey{eq}, day, 780, 900))

	// Resources without a declared capacity stay exclusive.
	set.reserve([]resourceKey{trainer}, day, 600, 720)
	assert.False(t, set.free([]resourceKey{trainer}, day, 660, 780))
}

func TestLocalSearchSwapsWhilePairSumImproves(t *testing.T) {
	f := newPlannerFixture(t, plannerFixtureConfig{tx: noopTxProvider{}})
	pctx := &planningContext{
		trainers: map[string]*trainerSnapshot{
			"t-1": {
				Trainer: models.Trainer{ID: "t-1"},
				Prefs:   []models.Preference{{Type: models.PreferenceDay, Value: "TUESDAY", Priority: 5}},
			},
			"t-2": {
				Trainer: models.Trainer{ID: "t-2"},
				Prefs:   []models.Preference{{Type: models.PreferenceDay, Value: "MONDAY", Priority: 5}},
			},
		},
	}

	// Each trainer starts on the other's wished day.
	a := &placement{session: models.Session{ID: "s-1", TrainerID: strPtr("t-1")}, window: testWindow("MONDAY", 600, 120)}
	b := &placement{session: models.Session{ID: "s-2", TrainerID: strPtr("t-2")}, window: testWindow("TUESDAY", 600, 120)}
	a.score = pctx.scoreAssignment(a.session, a.window)
	b.score = pctx.scoreAssignment(b.session, b.window)
	before := a.score + b.score

	reservations := newReservationSet(nil)
	reservations.reserve(resourceKeysFor(a.session, nil), a.window.Date, a.window.Start, a.window.End)
	reservations.reserve(resourceKeysFor(b.session, nil), b.window.Date, b.window.Start, b.window.End)

	stats := dto.PlannerStats{}
	placements := []*placement{a, b}
	f.svc.localSearch(pctx, placements, reservations, map[string][]string{}, &stats)

	assert.Equal(t, "TUESDAY", a.window.Weekday)
	assert.Equal(t, "MONDAY", b.window.Weekday)
	assert.Equal(t, 1, stats.SwapCount)
	assert.Greater(t, a.score+b.score, before)

	// Local optimum: no remaining pair swap improves the combined score.
	for i := range placements {
		for j := i + 1; j < len(placements); j++ {
			x, y := placements[i], placements[j]
			assert.LessOrEqual(t,
				pctx.scoreAssignment(x.session, y.window)+pctx.scoreAssignment(y.session, x.window),
				x.score+y.score)
		}
	}
}

func TestSeedSlotsRejectsNonMonday(t *testing.T) {
	f := newPlannerFixture(t, plannerFixtureConfig{tx: noopTxProvider{}})

	_, err := f.svc.SeedSlots(context.Background(), dto.SeedSlotsRequest{WeekStart: "2026-01-10"})

	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidWeekStart.Code, appErr.Code)
}
