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

	"github.com/planforma/planforma-api/internal/models"
)

// --- detector stubs ---

type statusRecord struct {
	status       models.SessionStatus
	hasConflicts bool
}

type detectorSessionsStub struct {
	sessions        map[string]*models.Session
	equipment       map[string][]string
	trainerOverlaps []string
	roomOverlaps    []string
	groupOverlaps   []string
	concurrent      map[string]int
	statuses        map[string]statusRecord
}

func (s *detectorSessionsStub) FindByID(_ context.Context, id string) (*models.Session, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return session, nil
}

func (s *detectorSessionsStub) ListByPlan(_ context.Context, _ string) ([]models.Session, error) {
	out := make([]models.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, *session)
	}
	return out, nil
}

func (s *detectorSessionsStub) ListEquipmentIDs(_ context.Context, sessionID string) ([]string, error) {
	return s.equipment[sessionID], nil
}

func (s *detectorSessionsStub) SetStatus(_ context.Context, _ sqlx.ExtContext, id string, status models.SessionStatus, hasConflicts bool) error {
	if s.statuses == nil {
		s.statuses = make(map[string]statusRecord)
	}
	s.statuses[id] = statusRecord{status: status, hasConflicts: hasConflicts}
	return nil
}

func (s *detectorSessionsStub) ListTrainerOverlaps(_ context.Context, _ string, _ time.Time, _, _, _ string) ([]string, error) {
	return s.trainerOverlaps, nil
}

func (s *detectorSessionsStub) ListRoomOverlaps(_ context.Context, _ string, _ time.Time, _, _, _ string) ([]string, error) {
	return s.roomOverlaps, nil
}

func (s *detectorSessionsStub) ListGroupOverlaps(_ context.Context, _ string, _ time.Time, _, _, _ string) ([]string, error) {
	return s.groupOverlaps, nil
}

func (s *detectorSessionsStub) CountEquipmentOverlaps(_ context.Context, equipmentID string, _ time.Time, _, _, _ string) (int, error) {
	return s.concurrent[equipmentID], nil
}

type detectorSlotsStub struct {
	slots map[string][]models.TimeSlot
}

func (s *detectorSlotsStub) ListBySession(_ context.Context, sessionID string) ([]models.TimeSlot, error) {
	return s.slots[sessionID], nil
}

type storedConflict struct {
	conflict   models.Conflict
	sessionIDs []string
}

type detectorConflictsStub struct {
	created []storedConflict
	cleared []string
	listed  []models.ConflictDetail
}

func (s *detectorConflictsStub) Create(_ context.Context, _ sqlx.ExtContext, conflict *models.Conflict, sessionIDs []string) error {
	conflict.ID = fmt.Sprintf("c-%d", len(s.created)+1)
	s.created = append(s.created, storedConflict{conflict: *conflict, sessionIDs: sessionIDs})
	return nil
}

func (s *detectorConflictsStub) DeleteBySession(_ context.Context, _ sqlx.ExtContext, sessionID string) error {
	s.cleared = append(s.cleared, sessionID)
	return nil
}

func (s *detectorConflictsStub) ListBySession(_ context.Context, _ string) ([]models.ConflictDetail, error) {
	return s.listed, nil
}

type detectorPlansStub struct{ plan *models.WeeklyPlan }

func (s *detectorPlansStub) FindByID(_ context.Context, _ string) (*models.WeeklyPlan, error) {
	if s.plan == nil {
		return nil, sql.ErrNoRows
	}
	return s.plan, nil
}

type availabilityStub struct {
	windows map[string][]models.AvailabilityWindow
}

func (s *availabilityStub) ListAvailability(_ context.Context, trainerID string) ([]models.AvailabilityWindow, error) {
	return s.windows[trainerID], nil
}

type equipmentSourceStub struct {
	items map[string]*models.Equipment
}

func (s *equipmentSourceStub) FindByID(_ context.Context, id string) (*models.Equipment, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return item, nil
}

// --- fixture ---

type detectorFixtureConfig struct {
	session         *models.Session
	slots           []models.TimeSlot
	equipmentIDs    []string
	equipmentItems  map[string]*models.Equipment
	concurrent      map[string]int
	availability    map[string][]models.AvailabilityWindow
	trainerOverlaps []string
	roomOverlaps    []string
	groupOverlaps   []string
}

type detectorFixture struct {
	svc       *ConflictDetectorService
	sessions  *detectorSessionsStub
	conflicts *detectorConflictsStub
	mock      sqlmock.Sqlmock
}

func newDetectorFixture(t *testing.T, cfg detectorFixtureConfig) *detectorFixture {
	t.Helper()
	sessions := &detectorSessionsStub{
		sessions:        map[string]*models.Session{},
		equipment:       map[string][]string{},
		trainerOverlaps: cfg.trainerOverlaps,
		roomOverlaps:    cfg.roomOverlaps,
		groupOverlaps:   cfg.groupOverlaps,
		concurrent:      cfg.concurrent,
	}
	slots := &detectorSlotsStub{slots: map[string][]models.TimeSlot{}}
	if cfg.session != nil {
		sessions.sessions[cfg.session.ID] = cfg.session
		sessions.equipment[cfg.session.ID] = cfg.equipmentIDs
		slots.slots[cfg.session.ID] = cfg.slots
	}
	conflicts := &detectorConflictsStub{}
	tx, mock := newTxProviderMock(t)

	svc := NewConflictDetectorService(
		sessions, slots, conflicts,
		&detectorPlansStub{plan: inProgressPlan()},
		&availabilityStub{windows: cfg.availability},
		&equipmentSourceStub{items: cfg.equipmentItems},
		tx, nil, zap.NewNop(),
	)
	return &detectorFixture{svc: svc, sessions: sessions, conflicts: conflicts, mock: mock}
}

func tuesdaySlot(id string) models.TimeSlot {
	return models.TimeSlot{
		ID:              id,
		Date:            time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC),
		Weekday:         "TUESDAY",
		StartTime:       "10:00",
		EndTime:         "12:00",
		DurationMinutes: 120,
	}
}

// --- tests ---

func TestDetectSessionFlagsTrainerDoubleBooking(t *testing.T) {
	f := newDetectorFixture(t, detectorFixtureConfig{
		session:         &models.Session{ID: "s-1", PlanID: "plan-1", TrainerID: strPtr("t-1")},
		slots:           []models.TimeSlot{tuesdaySlot("sl-1")},
		trainerOverlaps: []string{"s-2"},
		availability: map[string][]models.AvailabilityWindow{
			"t-1": {{TrainerID: "t-1", Weekday: "TUESDAY", StartTime: "08:00", EndTime: "19:00", Available: true}},
		},
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	descriptors, err := f.svc.DetectSession(context.Background(), "s-1")

	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, string(models.ConflictTrainerClash), descriptors[0].Type)
	assert.Equal(t, models.SeverityDoubleBooking, descriptors[0].Severity)
	assert.True(t, descriptors[0].Blocking)
	assert.Equal(t, []string{"s-1", "s-2"}, descriptors[0].SessionIDs)

	assert.Equal(t, []string{"s-1"}, f.conflicts.cleared)
	assert.Equal(t, statusRecord{status: models.SessionStatusConflicted, hasConflicts: true}, f.sessions.statuses["s-1"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDetectSessionFlagsUnavailableTrainer(t *testing.T) {
	f := newDetectorFixture(t, detectorFixtureConfig{
		session: &models.Session{ID: "s-1", PlanID: "plan-1", TrainerID: strPtr("t-1")},
		slots:   []models.TimeSlot{tuesdaySlot("sl-1")},
		availability: map[string][]models.AvailabilityWindow{
			"t-1": {{TrainerID: "t-1", Weekday: "MONDAY", StartTime: "08:00", EndTime: "19:00", Available: true}},
		},
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	descriptors, err := f.svc.DetectSession(context.Background(), "s-1")

	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, string(models.ConflictTrainerClash), descriptors[0].Type)
	assert.Equal(t, models.SeverityAvailability, descriptors[0].Severity)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDetectSessionFlagsTrainerWithoutDeclarations(t *testing.T) {
	f := newDetectorFixture(t, detectorFixtureConfig{
		session: &models.Session{ID: "s-1", PlanID: "plan-1", TrainerID: strPtr("t-1")},
		slots:   []models.TimeSlot{tuesdaySlot("sl-1")},
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	descriptors, err := f.svc.DetectSession(context.Background(), "s-1")

	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, string(models.ConflictTrainerClash), descriptors[0].Type)
	assert.Equal(t, models.SeverityAvailability, descriptors[0].Severity)
	assert.True(t, descriptors[0].Blocking)
	assert.Equal(t, "trainer has not declared any availability", descriptors[0].Description)
	assert.Equal(t, statusRecord{status: models.SessionStatusConflicted, hasConflicts: true}, f.sessions.statuses["s-1"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDetectSessionKeepsPerEquipmentConflicts(t *testing.T) {
	f := newDetectorFixture(t, detectorFixtureConfig{
		session:      &models.Session{ID: "s-1", PlanID: "plan-1"},
		slots:        []models.TimeSlot{tuesdaySlot("sl-1")},
		equipmentIDs: []string{"e-warn", "e-over"},
		equipmentItems: map[string]*models.Equipment{
			"e-warn": {ID: "e-warn", Name: "Whiteboard", Quantity: 3},
			"e-over": {ID: "e-over", Name: "VR headset", Quantity: 1},
		},
		concurrent: map[string]int{"e-warn": 1, "e-over": 1},
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	descriptors, err := f.svc.DetectSession(context.Background(), "s-1")

	require.NoError(t, err)
	// The warning on one pool must not swallow the overbooking on the other.
	require.Len(t, descriptors, 2)
	severities := []int{descriptors[0].Severity, descriptors[1].Severity}
	assert.ElementsMatch(t, []int{models.SeverityWarning, models.SeverityOverbooking}, severities)
	assert.Equal(t, statusRecord{status: models.SessionStatusConflicted, hasConflicts: true}, f.sessions.statuses["s-1"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDetectSessionRunsAreIdempotent(t *testing.T) {
	f := newDetectorFixture(t, detectorFixtureConfig{
		session:         &models.Session{ID: "s-1", PlanID: "plan-1", TrainerID: strPtr("t-1")},
		slots:           []models.TimeSlot{tuesdaySlot("sl-1")},
		trainerOverlaps: []string{"s-2"},
		availability: map[string][]models.AvailabilityWindow{
			"t-1": {{TrainerID: "t-1", Weekday: "TUESDAY", StartTime: "08:00", EndTime: "19:00", Available: true}},
		},
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	first, err := f.svc.DetectSession(context.Background(), "s-1")
	require.NoError(t, err)
	second, err := f.svc.DetectSession(context.Background(), "s-1")
	require.NoError(t, err)

	// Each run clears the previous set and rebuilds the same conflicts.
	assert.Equal(t, []string{"s-1", "s-1"}, f.conflicts.cleared)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Type, second[0].Type)
	assert.Equal(t, first[0].Severity, second[0].Severity)
	assert.Equal(t, first[0].SessionIDs, second[0].SessionIDs)
	assert.Equal(t, statusRecord{status: models.SessionStatusConflicted, hasConflicts: true}, f.sessions.statuses["s-1"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDetectSessionEquipmentSeverities(t *testing.T) {
	cases := []struct {
		name       string
		concurrent int
		severity   int
		blocking   bool
	}{
		{name: "pool exhausted", concurrent: 2, severity: models.SeverityOverbooking, blocking: true},
		{name: "pool nearly exhausted", concurrent: 1, severity: models.SeverityWarning, blocking: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newDetectorFixture(t, detectorFixtureConfig{
				session:        &models.Session{ID: "s-1", PlanID: "plan-1"},
				slots:          []models.TimeSlot{tuesdaySlot("sl-1")},
				equipmentIDs:   []string{"e-1"},
				equipmentItems: map[string]*models.Equipment{"e-1": {ID: "e-1", Name: "Projector", Quantity: 2}},
				concurrent:     map[string]int{"e-1": tc.concurrent},
			})
			f.mock.ExpectBegin()
			f.mock.ExpectCommit()

			descriptors, err := f.svc.DetectSession(context.Background(), "s-1")

			require.NoError(t, err)
			require.Len(t, descriptors, 1)
			assert.Equal(t, string(models.ConflictEquipmentOverbook), descriptors[0].Type)
			assert.Equal(t, tc.severity, descriptors[0].Severity)
			assert.Equal(t, tc.blocking, descriptors[0].Blocking)

			record := f.sessions.statuses["s-1"]
			if tc.blocking {
				assert.Equal(t, models.SessionStatusConflicted, record.status)
			} else {
				// A warning alone leaves the session placeable.
				assert.Equal(t, models.SessionStatusValid, record.status)
				assert.False(t, record.hasConflicts)
			}
			assert.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestDetectSessionFlagsWeekdayMismatch(t *testing.T) {
	slot := tuesdaySlot("sl-1")
	slot.Weekday = "MONDAY"
	f := newDetectorFixture(t, detectorFixtureConfig{
		session: &models.Session{ID: "s-1", PlanID: "plan-1"},
		slots:   []models.TimeSlot{slot},
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	descriptors, err := f.svc.DetectSession(context.Background(), "s-1")

	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, string(models.ConflictConstraintViolation), descriptors[0].Type)
	assert.Equal(t, models.SeverityAvailability, descriptors[0].Severity)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDetectSessionFlagsDateOutsidePlanWeek(t *testing.T) {
	slot := tuesdaySlot("sl-1")
	slot.Date = time.Date(2026, 1, 13, 0, 0, 0, 0, time.UTC) // Tuesday of the next week
	f := newDetectorFixture(t, detectorFixtureConfig{
		session: &models.Session{ID: "s-1", PlanID: "plan-1"},
		slots:   []models.TimeSlot{slot},
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	descriptors, err := f.svc.DetectSession(context.Background(), "s-1")

	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, string(models.ConflictConstraintViolation), descriptors[0].Type)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDetectSessionFlagsOwnOverlappingSlots(t *testing.T) {
	second := tuesdaySlot("sl-2")
	second.StartTime = "11:00"
	second.EndTime = "13:00"
	f := newDetectorFixture(t, detectorFixtureConfig{
		session: &models.Session{ID: "s-1", PlanID: "plan-1"},
		slots:   []models.TimeSlot{tuesdaySlot("sl-1"), second},
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	descriptors, err := f.svc.DetectSession(context.Background(), "s-1")

	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, string(models.ConflictSessionOverlap), descriptors[0].Type)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDetectSessionCleanSessionTurnsValid(t *testing.T) {
	f := newDetectorFixture(t, detectorFixtureConfig{
		session: &models.Session{ID: "s-1", PlanID: "plan-1", TrainerID: strPtr("t-1"), Status: models.SessionStatusConflicted},
		slots:   []models.TimeSlot{tuesdaySlot("sl-1")},
		availability: map[string][]models.AvailabilityWindow{
			"t-1": {{TrainerID: "t-1", Weekday: "TUESDAY", StartTime: "08:00", EndTime: "19:00", Available: true}},
		},
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	descriptors, err := f.svc.DetectSession(context.Background(), "s-1")

	require.NoError(t, err)
	assert.Empty(t, descriptors)
	assert.Equal(t, statusRecord{status: models.SessionStatusValid, hasConflicts: false}, f.sessions.statuses["s-1"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDetectSessionWithoutSlotsStaysDraft(t *testing.T) {
	f := newDetectorFixture(t, detectorFixtureConfig{
		session: &models.Session{ID: "s-1", PlanID: "plan-1"},
	})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	descriptors, err := f.svc.DetectSession(context.Background(), "s-1")

	require.NoError(t, err)
	assert.Empty(t, descriptors)
	assert.Equal(t, models.SessionStatusDraft, f.sessions.statuses["s-1"].status)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDetectSessionUnknownSession(t *testing.T) {
	f := newDetectorFixture(t, detectorFixtureConfig{})

	_, err := f.svc.DetectSession(context.Background(), "missing")

	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", appErrorCode(err))
}
