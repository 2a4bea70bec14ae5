package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planforma/planforma-api/internal/models"
)

// TrainerRepository persists trainers and their availability windows.
type TrainerRepository struct {
	db *sqlx.DB
}

// NewTrainerRepository constructs the repository.
func NewTrainerRepository(db *sqlx.DB) *TrainerRepository {
	return &TrainerRepository{db: db}
}

const trainerColumns = `id, email, full_name, specialty, active, created_at, updated_at`

// FindByID returns a trainer by primary key.
func (r *TrainerRepository) FindByID(ctx context.Context, id string) (*models.Trainer, error) {
	query := fmt.Sprintf(`SELECT %s FROM trainers WHERE id = $1`, trainerColumns)
	var trainer models.Trainer
	if err := r.db.GetContext(ctx, &trainer, query, id); err != nil {
		return nil, err
	}
	return &trainer, nil
}

// List returns all active trainers ordered by name.
func (r *TrainerRepository) List(ctx context.Context) ([]models.Trainer, error) {
	query := fmt.Sprintf(`SELECT %s FROM trainers WHERE active ORDER BY full_name`, trainerColumns)
	trainers := []models.Trainer{}
	if err := r.db.SelectContext(ctx, &trainers, query); err != nil {
		return nil, err
	}
	return trainers, nil
}

// Create inserts a trainer.
func (r *TrainerRepository) Create(ctx context.Context, trainer *models.Trainer) error {
	if trainer.ID == "" {
		trainer.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	trainer.CreatedAt = now
	trainer.UpdatedAt = now

	const query = `INSERT INTO trainers (id, email, full_name, specialty, active, created_at, updated_at)
		VALUES (:id, :email, :full_name, :specialty, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, trainer); err != nil {
		return fmt.Errorf("insert trainer: %w", err)
	}
	return nil
}

// Update mutates trainer attributes.
func (r *TrainerRepository) Update(ctx context.Context, trainer *models.Trainer) error {
	trainer.UpdatedAt = time.Now().UTC()
	const query = `UPDATE trainers
		SET email = :email, full_name = :full_name, specialty = :specialty, active = :active, updated_at = :updated_at
		WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, trainer); err != nil {
		return fmt.Errorf("update trainer: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a trainer.
func (r *TrainerRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE trainers SET active = false, updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate trainer: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("trainer %s not found", id)
	}
	return nil
}

// ListAvailability returns declared windows for a trainer.
func (r *TrainerRepository) ListAvailability(ctx context.Context, trainerID string) ([]models.AvailabilityWindow, error) {
	const query = `SELECT id, trainer_id, weekday, start_time, end_time, available, created_at, updated_at
		FROM trainer_availabilities WHERE trainer_id = $1 ORDER BY weekday, start_time`
	windows := []models.AvailabilityWindow{}
	if err := r.db.SelectContext(ctx, &windows, query, trainerID); err != nil {
		return nil, err
	}
	return windows, nil
}

// ListAllAvailability loads every window grouped by trainer, used by planner snapshots.
func (r *TrainerRepository) ListAllAvailability(ctx context.Context) ([]models.AvailabilityWindow, error) {
	const query = `SELECT id, trainer_id, weekday, start_time, end_time, available, created_at, updated_at
		FROM trainer_availabilities ORDER BY trainer_id, weekday, start_time`
	windows := []models.AvailabilityWindow{}
	if err := r.db.SelectContext(ctx, &windows, query); err != nil {
		return nil, err
	}
	return windows, nil
}

// ReplaceAvailability swaps the trainer's full declaration atomically via exec.
func (r *TrainerRepository) ReplaceAvailability(ctx context.Context, exec sqlx.ExtContext, trainerID string, windows []models.AvailabilityWindow) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM trainer_availabilities WHERE trainer_id = $1`, trainerID); err != nil {
		return fmt.Errorf("clear trainer availability: %w", err)
	}
	return r.InsertAvailability(ctx, exec, trainerID, windows)
}

// InsertAvailability appends windows for a trainer.
func (r *TrainerRepository) InsertAvailability(ctx context.Context, exec sqlx.ExtContext, trainerID string, windows []models.AvailabilityWindow) error {
	const query = `INSERT INTO trainer_availabilities (id, trainer_id, weekday, start_time, end_time, available, created_at, updated_at)
		VALUES (:id, :trainer_id, :weekday, :start_time, :end_time, :available, :created_at, :updated_at)`
	now := time.Now().UTC()
	for i := range windows {
		windows[i].TrainerID = trainerID
		if windows[i].ID == "" {
			windows[i].ID = uuid.NewString()
		}
		if windows[i].CreatedAt.IsZero() {
			windows[i].CreatedAt = now
		}
		windows[i].UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, exec, query, windows[i]); err != nil {
			return fmt.Errorf("insert trainer availability: %w", err)
		}
	}
	return nil
}
