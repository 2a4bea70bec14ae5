package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planforma/planforma-api/internal/models"
)

// SessionRepository persists sessions and their equipment bookings.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, plan_id, title, trainer_id, room_id, group_id, duration_minutes, status, has_conflicts, created_at, updated_at`

// FindByID returns a session by primary key.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListByPlan returns every non-cancelled session of a plan.
func (r *SessionRepository) ListByPlan(ctx context.Context, planID string) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE plan_id = $1 AND status <> 'CANCELLED' ORDER BY created_at`, sessionColumns)
	sessions := []models.Session{}
	if err := r.db.SelectContext(ctx, &sessions, query, planID); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListByPlanAndStatus filters plan sessions by status.
func (r *SessionRepository) ListByPlanAndStatus(ctx context.Context, planID string, status models.SessionStatus) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE plan_id = $1 AND status = $2 ORDER BY created_at`, sessionColumns)
	sessions := []models.Session{}
	if err := r.db.SelectContext(ctx, &sessions, query, planID, status); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Create inserts a session, usable inside a transaction via exec.
func (r *SessionRepository) Create(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusDraft
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	const query = `INSERT INTO sessions (id, plan_id, title, trainer_id, room_id, group_id, duration_minutes, status, has_conflicts, created_at, updated_at)
		VALUES (:id, :plan_id, :title, :trainer_id, :room_id, :group_id, :duration_minutes, :status, :has_conflicts, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, session); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Update mutates session resources.
func (r *SessionRepository) Update(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sessions
		SET title = :title, trainer_id = :trainer_id, room_id = :room_id, group_id = :group_id,
		    duration_minutes = :duration_minutes, status = :status, has_conflicts = :has_conflicts,
		    updated_at = :updated_at
		WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// SetStatus flips status and the conflict flag together.
func (r *SessionRepository) SetStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SessionStatus, hasConflicts bool) error {
	const query = `UPDATE sessions SET status = $2, has_conflicts = $3, updated_at = $4 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, id, status, hasConflicts, time.Now().UTC()); err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	return nil
}

// SetRoom reassigns the session room.
func (r *SessionRepository) SetRoom(ctx context.Context, exec sqlx.ExtContext, id, roomID string) error {
	const query = `UPDATE sessions SET room_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, id, roomID, time.Now().UTC()); err != nil {
		return fmt.Errorf("set session room: %w", err)
	}
	return nil
}

// AssignResources fills in planner-chosen resources. A resource the session
// already holds is kept.
func (r *SessionRepository) AssignResources(ctx context.Context, exec sqlx.ExtContext, id string, trainerID, roomID *string) error {
	const query = `UPDATE sessions
		SET trainer_id = COALESCE(trainer_id, $2), room_id = COALESCE(room_id, $3), updated_at = $4
		WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, id, trainerID, roomID, time.Now().UTC()); err != nil {
		return fmt.Errorf("assign session resources: %w", err)
	}
	return nil
}

// SetTrainer reassigns the session trainer.
func (r *SessionRepository) SetTrainer(ctx context.Context, exec sqlx.ExtContext, id, trainerID string) error {
	const query = `UPDATE sessions SET trainer_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, id, trainerID, time.Now().UTC()); err != nil {
		return fmt.Errorf("set session trainer: %w", err)
	}
	return nil
}

// Delete removes a session. Slots and conflict links cascade.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// ReplaceEquipment swaps the equipment bookings of a session.
func (r *SessionRepository) ReplaceEquipment(ctx context.Context, exec sqlx.ExtContext, sessionID string, equipmentIDs []string) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM session_equipment WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear session equipment: %w", err)
	}
	const query = `INSERT INTO session_equipment (session_id, equipment_id) VALUES ($1, $2)`
	for _, eqID := range equipmentIDs {
		if _, err := exec.ExecContext(ctx, query, sessionID, eqID); err != nil {
			return fmt.Errorf("insert session equipment: %w", err)
		}
	}
	return nil
}

// ListEquipmentIDs returns the equipment booked by a session.
func (r *SessionRepository) ListEquipmentIDs(ctx context.Context, sessionID string) ([]string, error) {
	ids := []string{}
	const query = `SELECT equipment_id FROM session_equipment WHERE session_id = $1 ORDER BY equipment_id`
	if err := r.db.SelectContext(ctx, &ids, query, sessionID); err != nil {
		return nil, err
	}
	return ids, nil
}

// overlapPredicate matches slots strictly overlapping the [start, end) window
// on the given date. Touching boundaries do not overlap.
const overlapPredicate = `ts.slot_date = $2 AND ts.start_time < $4 AND ts.end_time > $3`

// ListTrainerOverlaps returns ids of other sessions occupying the same trainer
// during the window.
func (r *SessionRepository) ListTrainerOverlaps(ctx context.Context, trainerID string, date time.Time, start, end, excludeSessionID string) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT s.id FROM sessions s
		JOIN time_slots ts ON ts.session_id = s.id
		WHERE s.trainer_id = $1 AND %s AND s.id <> $5 AND s.status <> 'CANCELLED'`, overlapPredicate)
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, trainerID, date, start, end, excludeSessionID); err != nil {
		return nil, err
	}
	return ids, nil
}

// ListRoomOverlaps returns ids of other sessions occupying the same room
// during the window.
func (r *SessionRepository) ListRoomOverlaps(ctx context.Context, roomID string, date time.Time, start, end, excludeSessionID string) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT s.id FROM sessions s
		JOIN time_slots ts ON ts.session_id = s.id
		WHERE s.room_id = $1 AND %s AND s.id <> $5 AND s.status <> 'CANCELLED'`, overlapPredicate)
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, roomID, date, start, end, excludeSessionID); err != nil {
		return nil, err
	}
	return ids, nil
}

// ListGroupOverlaps returns ids of other sessions occupying the same group
// during the window.
func (r *SessionRepository) ListGroupOverlaps(ctx context.Context, groupID string, date time.Time, start, end, excludeSessionID string) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT s.id FROM sessions s
		JOIN time_slots ts ON ts.session_id = s.id
		WHERE s.group_id = $1 AND %s AND s.id <> $5 AND s.status <> 'CANCELLED'`, overlapPredicate)
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, groupID, date, start, end, excludeSessionID); err != nil {
		return nil, err
	}
	return ids, nil
}

// CountEquipmentOverlaps counts concurrent bookings of an equipment pool
// during the window, excluding one session.
func (r *SessionRepository) CountEquipmentOverlaps(ctx context.Context, equipmentID string, date time.Time, start, end, excludeSessionID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(DISTINCT s.id) FROM sessions s
		JOIN session_equipment se ON se.session_id = s.id
		JOIN time_slots ts ON ts.session_id = s.id
		WHERE se.equipment_id = $1 AND %s AND s.id <> $5 AND s.status <> 'CANCELLED'`, overlapPredicate)
	var count int
	if err := r.db.GetContext(ctx, &count, query, equipmentID, date, start, end, excludeSessionID); err != nil {
		return 0, err
	}
	return count, nil
}
