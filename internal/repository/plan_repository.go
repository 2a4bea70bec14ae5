package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planforma/planforma-api/internal/models"
)

// PlanRepository persists weekly plans.
type PlanRepository struct {
	db *sqlx.DB
}

// NewPlanRepository constructs the repository.
func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, name, week_start, status, global_score, validated_by, validated_at, published_at, created_at, updated_at`

// FindByID returns a plan by primary key.
func (r *PlanRepository) FindByID(ctx context.Context, id string) (*models.WeeklyPlan, error) {
	query := fmt.Sprintf(`SELECT %s FROM weekly_plans WHERE id = $1`, planColumns)
	var plan models.WeeklyPlan
	if err := r.db.GetContext(ctx, &plan, query, id); err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindByWeekStart returns the plan covering a week, if any.
func (r *PlanRepository) FindByWeekStart(ctx context.Context, weekStart time.Time) (*models.WeeklyPlan, error) {
	query := fmt.Sprintf(`SELECT %s FROM weekly_plans WHERE week_start = $1`, planColumns)
	var plan models.WeeklyPlan
	if err := r.db.GetContext(ctx, &plan, query, weekStart); err != nil {
		return nil, err
	}
	return &plan, nil
}

// List returns plans, optionally filtered by status, newest week first.
func (r *PlanRepository) List(ctx context.Context, status string, limit, offset int) ([]models.WeeklyPlan, error) {
	plans := []models.WeeklyPlan{}
	if status != "" {
		query := fmt.Sprintf(`SELECT %s FROM weekly_plans WHERE status = $1 ORDER BY week_start DESC LIMIT $2 OFFSET $3`, planColumns)
		if err := r.db.SelectContext(ctx, &plans, query, status, limit, offset); err != nil {
			return nil, err
		}
		return plans, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM weekly_plans ORDER BY week_start DESC LIMIT $1 OFFSET $2`, planColumns)
	if err := r.db.SelectContext(ctx, &plans, query, limit, offset); err != nil {
		return nil, err
	}
	return plans, nil
}

// Create inserts a plan, usable inside a transaction via exec.
func (r *PlanRepository) Create(ctx context.Context, exec sqlx.ExtContext, plan *models.WeeklyPlan) error {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.Status == "" {
		plan.Status = models.PlanStatusInProgress
	}
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	const query = `INSERT INTO weekly_plans (id, name, week_start, status, global_score, validated_by, validated_at, published_at, created_at, updated_at)
		VALUES (:id, :name, :week_start, :status, :global_score, :validated_by, :validated_at, :published_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, plan); err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

// UpdateScore stores the global allocation score.
func (r *PlanRepository) UpdateScore(ctx context.Context, exec sqlx.ExtContext, id string, score float64) error {
	const query = `UPDATE weekly_plans SET global_score = $2, updated_at = $3 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, id, score, time.Now().UTC()); err != nil {
		return fmt.Errorf("update plan score: %w", err)
	}
	return nil
}

// MarkValidated transitions a plan to VALIDATED and records the validator.
func (r *PlanRepository) MarkValidated(ctx context.Context, id, validatedBy string) error {
	now := time.Now().UTC()
	const query = `UPDATE weekly_plans SET status = $2, validated_by = $3, validated_at = $4, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.PlanStatusValidated, validatedBy, now); err != nil {
		return fmt.Errorf("mark plan validated: %w", err)
	}
	return nil
}

// MarkPublished transitions a plan to PUBLISHED.
func (r *PlanRepository) MarkPublished(ctx context.Context, id string) error {
	now := time.Now().UTC()
	const query = `UPDATE weekly_plans SET status = $2, published_at = $3, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.PlanStatusPublished, now); err != nil {
		return fmt.Errorf("mark plan published: %w", err)
	}
	return nil
}

// Delete removes a plan. Sessions, slots and conflicts cascade at the schema level.
func (r *PlanRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM weekly_plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("plan %s not found", id)
	}
	return nil
}
