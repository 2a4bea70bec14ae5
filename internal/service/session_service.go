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

type sessionStore interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	ListByPlan(ctx context.Context, planID string) ([]models.Session, error)
	ListByPlanAndStatus(ctx context.Context, planID string, status models.SessionStatus) ([]models.Session, error)
	Create(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error
	Update(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error
	Delete(ctx context.Context, id string) error
	ReplaceEquipment(ctx context.Context, exec sqlx.ExtContext, sessionID string, equipmentIDs []string) error
	ListEquipmentIDs(ctx context.Context, sessionID string) ([]string, error)
}

type sessionSlotStore interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.TimeSlot, error)
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimeSlot) error
	DeleteBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) error
}

type sessionPlanStore interface {
	FindByID(ctx context.Context, id string) (*models.WeeklyPlan, error)
}

// sessionConflictDetector re-runs detection after every session write.
type sessionConflictDetector interface {
	DetectSession(ctx context.Context, sessionID string) ([]dto.ConflictDescriptor, error)
	ListSessionConflicts(ctx context.Context, sessionID string) ([]dto.ConflictDescriptor, error)
}

// SessionService owns the session lifecycle. A write never fails because the
// session clashes with another one; it is stored, detection runs, and the
// session comes back flagged instead.
type SessionService struct {
	sessions sessionStore
	slots    sessionSlotStore
	plans    sessionPlanStore
	detector sessionConflictDetector
	tx       txProvider
	logger   *zap.Logger
	validate *validator.Validate
}

// NewSessionService wires session dependencies.
func NewSessionService(
	sessions sessionStore,
	slots sessionSlotStore,
	plans sessionPlanStore,
	detector sessionConflictDetector,
	tx txProvider,
	logger *zap.Logger,
) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions: sessions,
		slots:    slots,
		plans:    plans,
		detector: detector,
		tx:       tx,
		logger:   logger,
		validate: validator.New(),
	}
}

// Create stores a session with its slots and equipment, then runs detection.
func (s *SessionService) Create(ctx context.Context, req dto.CreateSessionRequest) (*models.SessionDetail, []dto.ConflictDescriptor, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session request")
	}
	plan, err := s.mutablePlan(ctx, req.PlanID)
	if err != nil {
		return nil, nil, err
	}

	slots, err := buildSlots(req.Slots)
	if err != nil {
		return nil, nil, err
	}

	session := &models.Session{
		PlanID:          plan.ID,
		Title:           req.Title,
		TrainerID:       req.TrainerID,
		RoomID:          req.RoomID,
		GroupID:         req.GroupID,
		DurationMinutes: sessionDuration(req.DurationMinutes, slots),
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.sessions.Create(ctx, tx, session); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session")
		return nil, nil, err
	}
	for i := range slots {
		slots[i].SessionID = &session.ID
	}
	if err = s.slots.InsertBatch(ctx, tx, slots); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session slots")
		return nil, nil, err
	}
	if len(req.EquipmentIDs) > 0 {
		if err = s.sessions.ReplaceEquipment(ctx, tx, session.ID, req.EquipmentIDs); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session equipment")
			return nil, nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit session")
		return nil, nil, err
	}

	conflicts, err := s.detector.DetectSession(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	detail, err := s.Get(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("session created",
		zap.String("sessionId", session.ID),
		zap.String("planId", plan.ID),
		zap.Int("conflicts", len(conflicts)))
	return detail, conflicts, nil
}

// Update rewrites a session's resources, slots and equipment, then re-runs
// detection.
func (s *SessionService) Update(ctx context.Context, sessionID string, req dto.UpdateSessionRequest) (*models.SessionDetail, []dto.ConflictDescriptor, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session request")
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if _, err = s.mutablePlan(ctx, session.PlanID); err != nil {
		return nil, nil, err
	}

	slots, err := buildSlots(req.Slots)
	if err != nil {
		return nil, nil, err
	}

	session.Title = req.Title
	session.TrainerID = req.TrainerID
	session.RoomID = req.RoomID
	session.GroupID = req.GroupID
	session.DurationMinutes = sessionDuration(req.DurationMinutes, slots)

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.sessions.Update(ctx, tx, session); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
		return nil, nil, err
	}
	if err = s.slots.DeleteBySession(ctx, tx, session.ID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear session slots")
		return nil, nil, err
	}
	for i := range slots {
		slots[i].SessionID = &session.ID
	}
	if err = s.slots.InsertBatch(ctx, tx, slots); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session slots")
		return nil, nil, err
	}
	if err = s.sessions.ReplaceEquipment(ctx, tx, session.ID, req.EquipmentIDs); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session equipment")
		return nil, nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit session")
		return nil, nil, err
	}

	conflicts, err := s.detector.DetectSession(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	detail, err := s.Get(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	return detail, conflicts, nil
}

// Get returns a session with its slots and equipment bookings.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.SessionDetail, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	slots, err := s.slots.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session slots")
	}
	equipmentIDs, err := s.sessions.ListEquipmentIDs(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session equipment")
	}
	return &models.SessionDetail{Session: *session, Slots: slots, EquipmentIDs: equipmentIDs}, nil
}

// List returns plan sessions, optionally filtered by status.
func (s *SessionService) List(ctx context.Context, query dto.SessionQuery) ([]models.Session, error) {
	if query.PlanID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "planId is required")
	}
	if query.Status != "" {
		return s.sessions.ListByPlanAndStatus(ctx, query.PlanID, models.SessionStatus(query.Status))
	}
	return s.sessions.ListByPlan(ctx, query.PlanID)
}

// Delete removes a session and everything attached to it.
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if _, err = s.mutablePlan(ctx, session.PlanID); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	return nil
}

// GetConflicts returns the stored conflicts of a session.
func (s *SessionService) GetConflicts(ctx context.Context, sessionID string) ([]dto.ConflictDescriptor, error) {
	if _, err := s.sessions.FindByID(ctx, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return s.detector.ListSessionConflicts(ctx, sessionID)
}

func (s *SessionService) mutablePlan(ctx context.Context, planID string) (*models.WeeklyPlan, error) {
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

// sessionDuration resolves the teaching duration: the declared value wins,
// otherwise the longest slot sets it.
func sessionDuration(declared int, slots []models.TimeSlot) int {
	if declared > 0 {
		return declared
	}
	longest := 0
	for _, slot := range slots {
		if slot.DurationMinutes > longest {
			longest = slot.DurationMinutes
		}
	}
	return longest
}

// buildSlots converts slot requests into models, normalising the weekday
// label and computing the duration. Inconsistent labels are stored as sent;
// detection flags them afterwards.
func buildSlots(requests []dto.SlotRequest) ([]models.TimeSlot, error) {
	slots := make([]models.TimeSlot, 0, len(requests))
	for _, req := range requests {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("slot date %s must use YYYY-MM-DD", req.Date))
		}
		start := minutesOfDay(req.StartTime)
		end := minutesOfDay(req.EndTime)
		if start < 0 || end < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "slot times must use HH:MM")
		}
		if end <= start {
			return nil, appErrors.Clone(appErrors.ErrValidation, "slot end must come after its start")
		}
		slots = append(slots, models.TimeSlot{
			Date:            date,
			Weekday:         normalizeWeekday(req.Weekday),
			StartTime:       formatMinutes(start),
			EndTime:         formatMinutes(end),
			DurationMinutes: end - start,
		})
	}
	return slots, nil
}
