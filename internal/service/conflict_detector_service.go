package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/planforma/planforma-api/internal/dto"
	"github.com/planforma/planforma-api/internal/models"
	appErrors "github.com/planforma/planforma-api/pkg/errors"
)

type detectorSessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	ListByPlan(ctx context.Context, planID string) ([]models.Session, error)
	ListEquipmentIDs(ctx context.Context, sessionID string) ([]string, error)
	SetStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SessionStatus, hasConflicts bool) error
	ListTrainerOverlaps(ctx context.Context, trainerID string, date time.Time, start, end, excludeSessionID string) ([]string, error)
	ListRoomOverlaps(ctx context.Context, roomID string, date time.Time, start, end, excludeSessionID string) ([]string, error)
	ListGroupOverlaps(ctx context.Context, groupID string, date time.Time, start, end, excludeSessionID string) ([]string, error)
	CountEquipmentOverlaps(ctx context.Context, equipmentID string, date time.Time, start, end, excludeSessionID string) (int, error)
}

type detectorSlotRepository interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.TimeSlot, error)
}

type detectorConflictRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, conflict *models.Conflict, sessionIDs []string) error
	DeleteBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) error
	ListBySession(ctx context.Context, sessionID string) ([]models.ConflictDetail, error)
}

type detectorPlanRepository interface {
	FindByID(ctx context.Context, id string) (*models.WeeklyPlan, error)
}

type detectorAvailabilitySource interface {
	ListAvailability(ctx context.Context, trainerID string) ([]models.AvailabilityWindow, error)
}

type detectorEquipmentSource interface {
	FindByID(ctx context.Context, id string) (*models.Equipment, error)
}

// ConflictDetectorService inspects a session's slots against every hard and
// soft constraint. Each run replaces the session's stored conflict set, so
// detection is idempotent and remains the single source of truth for the
// session status.
type ConflictDetectorService struct {
	sessions     detectorSessionRepository
	slots        detectorSlotRepository
	conflicts    detectorConflictRepository
	plans        detectorPlanRepository
	availability detectorAvailabilitySource
	equipment    detectorEquipmentSource
	tx           txProvider
	metrics      *MetricsService
	logger       *zap.Logger
}

// NewConflictDetectorService wires detector dependencies.
func NewConflictDetectorService(
	sessions detectorSessionRepository,
	slots detectorSlotRepository,
	conflicts detectorConflictRepository,
	plans detectorPlanRepository,
	availability detectorAvailabilitySource,
	equipment detectorEquipmentSource,
	tx txProvider,
	metrics *MetricsService,
	logger *zap.Logger,
) *ConflictDetectorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictDetectorService{
		sessions:     sessions,
		slots:        slots,
		conflicts:    conflicts,
		plans:        plans,
		availability: availability,
		equipment:    equipment,
		tx:           tx,
		metrics:      metrics,
		logger:       logger,
	}
}

// DetectSession re-runs every check for one session and persists the result.
func (s *ConflictDetectorService) DetectSession(ctx context.Context, sessionID string) ([]dto.ConflictDescriptor, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	plan, err := s.plans.FindByID(ctx, session.PlanID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	slots, err := s.slots.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session slots")
	}
	equipmentIDs, err := s.sessions.ListEquipmentIDs(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session equipment")
	}

	found, err := s.runChecks(ctx, session, plan, slots, equipmentIDs)
	if err != nil {
		return nil, err
	}

	if err := s.persist(ctx, session, slots, found); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordConflictsDetected(len(found))
	}

	descriptors := make([]dto.ConflictDescriptor, 0, len(found))
	for _, item := range found {
		descriptors = append(descriptors, dto.ConflictDescriptor{
			ID:          item.conflict.ID,
			PlanID:      item.conflict.PlanID,
			Type:        string(item.conflict.Type),
			Severity:    item.conflict.Severity,
			Blocking:    item.conflict.Blocking,
			Description: item.conflict.Description,
			SlotID:      item.conflict.SlotID,
			SessionIDs:  item.sessionIDs,
			DetectedAt:  item.conflict.DetectedAt,
		})
	}
	return descriptors, nil
}

// DetectPlan runs detection over every session of a plan.
func (s *ConflictDetectorService) DetectPlan(ctx context.Context, planID string) (int, error) {
	sessions, err := s.sessions.ListByPlan(ctx, planID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan sessions")
	}
	total := 0
	for _, session := range sessions {
		descriptors, err := s.DetectSession(ctx, session.ID)
		if err != nil {
			return total, err
		}
		total += len(descriptors)
	}
	return total, nil
}

// ListSessionConflicts returns the stored conflict set without re-detecting.
func (s *ConflictDetectorService) ListSessionConflicts(ctx context.Context, sessionID string) ([]dto.ConflictDescriptor, error) {
	details, err := s.conflicts.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list session conflicts")
	}
	descriptors := make([]dto.ConflictDescriptor, 0, len(details))
	for _, detail := range details {
		descriptors = append(descriptors, dto.ConflictDescriptor{
			ID:          detail.ID,
			PlanID:      detail.PlanID,
			Type:        string(detail.Type),
			Severity:    detail.Severity,
			Blocking:    detail.Blocking,
			Description: detail.Description,
			SlotID:      detail.SlotID,
			SessionIDs:  detail.SessionIDs,
			DetectedAt:  detail.DetectedAt,
		})
	}
	return descriptors, nil
}

type detectedConflict struct {
	conflict   models.Conflict
	sessionIDs []string
}

func (s *ConflictDetectorService) runChecks(
	ctx context.Context,
	session *models.Session,
	plan *models.WeeklyPlan,
	slots []models.TimeSlot,
	equipmentIDs []string,
) ([]detectedConflict, error) {
	found := make([]detectedConflict, 0)
	seen := make(map[string]bool)

	// qualifier keeps per-item checks (equipment) from shadowing each other
	// inside one slot.
	add := func(conflictType models.ConflictType, severity int, description string, slotID *string, others []string, qualifier string) {
		key := string(conflictType)
		if slotID != nil {
			key += ":" + *slotID
		}
		if qualifier != "" {
			key += ":" + qualifier
		}
		if seen[key] {
			return
		}
		seen[key] = true
		sessionIDs := append([]string{session.ID}, others...)
		found = append(found, detectedConflict{
			conflict: models.Conflict{
				PlanID:      session.PlanID,
				Type:        conflictType,
				Severity:    severity,
				Description: description,
				SlotID:      slotID,
				Blocking:    models.IsBlocking(severity),
				DetectedAt:  time.Now().UTC(),
			},
			sessionIDs: sessionIDs,
		})
	}

	var trainerWindows []models.AvailabilityWindow
	if session.TrainerID != nil && s.availability != nil {
		windows, err := s.availability.ListAvailability(ctx, *session.TrainerID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trainer availability")
		}
		trainerWindows = windows
	}

	for i := range slots {
		slot := slots[i]
		slotID := slot.ID
		start := minutesOfDay(slot.StartTime)
		end := minutesOfDay(slot.EndTime)
		if start < 0 || end < 0 || end <= start {
			add(models.ConflictConstraintViolation, models.SeverityAvailability,
				fmt.Sprintf("slot %s has an invalid time window", slot.ID), &slotID, nil, "")
			continue
		}

		if session.TrainerID != nil {
			// A trainer with no declaration at all is as unavailable as one
			// whose windows miss the slot.
			if !coveredByAvailability(trainerWindows, slot.Weekday, start, end) {
				description := "trainer is not available for this slot"
				if len(trainerWindows) == 0 {
					description = "trainer has not declared any availability"
				}
				add(models.ConflictTrainerClash, models.SeverityAvailability,
					description, &slotID, nil, "")
			}
			others, err := s.sessions.ListTrainerOverlaps(ctx, *session.TrainerID, slot.Date, slot.StartTime, slot.EndTime, session.ID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check trainer overlaps")
			}
			if len(others) > 0 {
				add(models.ConflictTrainerClash, models.SeverityDoubleBooking,
					"trainer is double-booked", &slotID, others, "")
			}
		}

		if session.RoomID != nil {
			others, err := s.sessions.ListRoomOverlaps(ctx, *session.RoomID, slot.Date, slot.StartTime, slot.EndTime, session.ID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room overlaps")
			}
			if len(others) > 0 {
				add(models.ConflictRoomClash, models.SeverityDoubleBooking,
					"room is double-booked", &slotID, others, "")
			}
		}

		if session.GroupID != nil {
			others, err := s.sessions.ListGroupOverlaps(ctx, *session.GroupID, slot.Date, slot.StartTime, slot.EndTime, session.ID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check group overlaps")
			}
			if len(others) > 0 {
				add(models.ConflictGroupClash, models.SeverityDoubleBooking,
					"group is double-booked", &slotID, others, "")
			}
		}

		for _, eqID := range equipmentIDs {
			eq, err := s.equipment.FindByID(ctx, eqID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					continue
				}
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load equipment")
			}
			concurrent, err := s.sessions.CountEquipmentOverlaps(ctx, eqID, slot.Date, slot.StartTime, slot.EndTime, session.ID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check equipment overlaps")
			}
			if concurrent >= eq.Quantity {
				add(models.ConflictEquipmentOverbook, models.SeverityOverbooking,
					fmt.Sprintf("equipment %s has no unit left for this slot", eq.Name), &slotID, nil, eqID)
			} else if concurrent > 0 {
				add(models.ConflictEquipmentOverbook, models.SeverityWarning,
					fmt.Sprintf("equipment %s pool is nearly exhausted", eq.Name), &slotID, nil, eqID)
			}
		}

		weekEnd := plan.WeekStart.AddDate(0, 0, 6)
		if slot.Date.Before(plan.WeekStart) || slot.Date.After(weekEnd) {
			add(models.ConflictConstraintViolation, models.SeverityAvailability,
				"slot date falls outside the plan week", &slotID, nil, "")
		}
		if weekdayLabel(slot.Date) != slot.Weekday {
			add(models.ConflictConstraintViolation, models.SeverityAvailability,
				fmt.Sprintf("weekday label %s does not match the slot date", slot.Weekday), &slotID, nil, "")
		}

		for j := i + 1; j < len(slots); j++ {
			other := slots[j]
			if !slot.Date.Equal(other.Date) {
				continue
			}
			otherStart := minutesOfDay(other.StartTime)
			otherEnd := minutesOfDay(other.EndTime)
			if overlapsStrict(start, end, otherStart, otherEnd) {
				add(models.ConflictSessionOverlap, models.SeverityDoubleBooking,
					"session slots overlap each other", &slotID, nil, "")
			}
		}
	}

	return found, nil
}

// persist replaces the session's conflict set and flips its status inside
// one transaction.
func (s *ConflictDetectorService) persist(ctx context.Context, session *models.Session, slots []models.TimeSlot, found []detectedConflict) error {
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

	if err = s.conflicts.DeleteBySession(ctx, tx, session.ID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear previous conflicts")
		return err
	}

	blocking := false
	for i := range found {
		if err = s.conflicts.Create(ctx, tx, &found[i].conflict, found[i].sessionIDs); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store conflict")
			return err
		}
		if found[i].conflict.Blocking {
			blocking = true
		}
	}

	status := session.Status
	hasConflicts := blocking
	switch {
	case blocking:
		status = models.SessionStatusConflicted
	case len(slots) > 0:
		status = models.SessionStatusValid
	default:
		status = models.SessionStatusDraft
	}
	if err = s.sessions.SetStatus(ctx, tx, session.ID, status, hasConflicts); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session status")
		return err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit detection")
		return err
	}
	return nil
}

// coveredByAvailability reports whether an available window fully covers the
// slot. A covering unavailable window, or no covering window at all, fails.
func coveredByAvailability(windows []models.AvailabilityWindow, weekday string, start, end int) bool {
	for _, window := range windows {
		if window.Weekday != weekday {
			continue
		}
		winStart := minutesOfDay(window.StartTime)
		winEnd := minutesOfDay(window.EndTime)
		if winStart < 0 || winEnd < 0 {
			continue
		}
		if winStart <= start && winEnd >= end {
			return window.Available
		}
	}
	return false
}
