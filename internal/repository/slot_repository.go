package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planforma/planforma-api/internal/models"
)

// SlotRepository persists time slots. A slot either belongs to a session or
// is a seeded free window (session_id NULL).
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs the repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

const slotColumns = `id, session_id, slot_date, weekday, start_time, end_time, duration_minutes, created_at, updated_at`

// FindByID returns a slot by primary key.
func (r *SlotRepository) FindByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM time_slots WHERE id = $1`, slotColumns)
	var slot models.TimeSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListBySession returns a session's slots ordered chronologically.
func (r *SlotRepository) ListBySession(ctx context.Context, sessionID string) ([]models.TimeSlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM time_slots WHERE session_id = $1 ORDER BY slot_date, start_time`, slotColumns)
	slots := []models.TimeSlot{}
	if err := r.db.SelectContext(ctx, &slots, query, sessionID); err != nil {
		return nil, err
	}
	return slots, nil
}

// ListByPlan returns every slot attached to a plan's sessions.
func (r *SlotRepository) ListByPlan(ctx context.Context, planID string) ([]models.TimeSlot, error) {
	const query = `SELECT ts.id, ts.session_id, ts.slot_date, ts.weekday, ts.start_time, ts.end_time, ts.duration_minutes, ts.created_at, ts.updated_at
		FROM time_slots ts
		JOIN sessions s ON s.id = ts.session_id
		WHERE s.plan_id = $1 AND s.status <> 'CANCELLED'
		ORDER BY ts.slot_date, ts.start_time`
	slots := []models.TimeSlot{}
	if err := r.db.SelectContext(ctx, &slots, query, planID); err != nil {
		return nil, err
	}
	return slots, nil
}

// InsertBatch stores slots, usable inside a transaction via exec.
func (r *SlotRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimeSlot) error {
	const query = `INSERT INTO time_slots (id, session_id, slot_date, weekday, start_time, end_time, duration_minutes, created_at, updated_at)
		VALUES (:id, :session_id, :slot_date, :weekday, :start_time, :end_time, :duration_minutes, :created_at, :updated_at)`
	now := time.Now().UTC()
	for i := range slots {
		if slots[i].ID == "" {
			slots[i].ID = uuid.NewString()
		}
		if slots[i].CreatedAt.IsZero() {
			slots[i].CreatedAt = now
		}
		slots[i].UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, exec, query, slots[i]); err != nil {
			return fmt.Errorf("insert time slot: %w", err)
		}
	}
	return nil
}

// UpdateTiming rewrites the temporal coordinates of a slot.
func (r *SlotRepository) UpdateTiming(ctx context.Context, exec sqlx.ExtContext, id string, date time.Time, weekday, start, end string, durationMinutes int) error {
	const query = `UPDATE time_slots
		SET slot_date = $2, weekday = $3, start_time = $4, end_time = $5, duration_minutes = $6, updated_at = $7
		WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, id, date, weekday, start, end, durationMinutes, time.Now().UTC()); err != nil {
		return fmt.Errorf("update slot timing: %w", err)
	}
	return nil
}

// DeleteBySession clears a session's slots.
func (r *SlotRepository) DeleteBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM time_slots WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session slots: %w", err)
	}
	return nil
}

// CountSeededForWeek counts free windows already stored for a week.
func (r *SlotRepository) CountSeededForWeek(ctx context.Context, weekStart, weekEnd time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM time_slots WHERE session_id IS NULL AND slot_date >= $1 AND slot_date <= $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, weekStart, weekEnd); err != nil {
		return 0, err
	}
	return count, nil
}
