package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planforma/planforma-api/internal/models"
)

// ConflictRepository persists detected conflicts and their session links.
type ConflictRepository struct {
	db *sqlx.DB
}

// NewConflictRepository constructs the repository.
func NewConflictRepository(db *sqlx.DB) *ConflictRepository {
	return &ConflictRepository{db: db}
}

const conflictColumns = `id, plan_id, type, severity, description, slot_id, blocking, detected_at, created_at, updated_at`

// FindByID returns a conflict with its participating session ids.
func (r *ConflictRepository) FindByID(ctx context.Context, id string) (*models.ConflictDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM conflicts WHERE id = $1`, conflictColumns)
	var conflict models.Conflict
	if err := r.db.GetContext(ctx, &conflict, query, id); err != nil {
		return nil, err
	}
	sessionIDs, err := r.sessionIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.ConflictDetail{Conflict: conflict, SessionIDs: sessionIDs}, nil
}

// ListByPlan returns a plan's conflicts ordered by severity descending, so
// the hardest ones resolve first.
func (r *ConflictRepository) ListByPlan(ctx context.Context, planID string) ([]models.ConflictDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM conflicts WHERE plan_id = $1 ORDER BY severity DESC, detected_at`, conflictColumns)
	conflicts := []models.Conflict{}
	if err := r.db.SelectContext(ctx, &conflicts, query, planID); err != nil {
		return nil, err
	}
	return r.attachSessions(ctx, conflicts)
}

// ListBySession returns the conflicts a session participates in.
func (r *ConflictRepository) ListBySession(ctx context.Context, sessionID string) ([]models.ConflictDetail, error) {
	const query = `SELECT c.id, c.plan_id, c.type, c.severity, c.description, c.slot_id, c.blocking, c.detected_at, c.created_at, c.updated_at
		FROM conflicts c
		JOIN conflict_sessions cs ON cs.conflict_id = c.id
		WHERE cs.session_id = $1 ORDER BY c.severity DESC, c.detected_at`
	conflicts := []models.Conflict{}
	if err := r.db.SelectContext(ctx, &conflicts, query, sessionID); err != nil {
		return nil, err
	}
	return r.attachSessions(ctx, conflicts)
}

// Create stores a conflict and links its sessions, usable in a transaction.
func (r *ConflictRepository) Create(ctx context.Context, exec sqlx.ExtContext, conflict *models.Conflict, sessionIDs []string) error {
	if conflict.ID == "" {
		conflict.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if conflict.DetectedAt.IsZero() {
		conflict.DetectedAt = now
	}
	conflict.CreatedAt = now
	conflict.UpdatedAt = now

	const query = `INSERT INTO conflicts (id, plan_id, type, severity, description, slot_id, blocking, detected_at, created_at, updated_at)
		VALUES (:id, :plan_id, :type, :severity, :description, :slot_id, :blocking, :detected_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, conflict); err != nil {
		return fmt.Errorf("insert conflict: %w", err)
	}
	for _, sessionID := range sessionIDs {
		if _, err := exec.ExecContext(ctx, `INSERT INTO conflict_sessions (conflict_id, session_id) VALUES ($1, $2)`, conflict.ID, sessionID); err != nil {
			return fmt.Errorf("link conflict session: %w", err)
		}
	}
	return nil
}

// Delete removes a resolved conflict. Session links cascade.
func (r *ConflictRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM conflicts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete conflict: %w", err)
	}
	return nil
}

// DeleteBySession drops every conflict a session participates in. Used before
// re-detection so the stored set always mirrors the latest run.
func (r *ConflictRepository) DeleteBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) error {
	const query = `DELETE FROM conflicts WHERE id IN (SELECT conflict_id FROM conflict_sessions WHERE session_id = $1)`
	if _, err := exec.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("delete session conflicts: %w", err)
	}
	return nil
}

// CountBlockingBySession counts the remaining hard conflicts of a session.
func (r *ConflictRepository) CountBlockingBySession(ctx context.Context, sessionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM conflicts c
		JOIN conflict_sessions cs ON cs.conflict_id = c.id
		WHERE cs.session_id = $1 AND c.blocking`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sessionID); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ConflictRepository) sessionIDs(ctx context.Context, conflictID string) ([]string, error) {
	ids := []string{}
	const query = `SELECT session_id FROM conflict_sessions WHERE conflict_id = $1 ORDER BY session_id`
	if err := r.db.SelectContext(ctx, &ids, query, conflictID); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *ConflictRepository) attachSessions(ctx context.Context, conflicts []models.Conflict) ([]models.ConflictDetail, error) {
	details := make([]models.ConflictDetail, 0, len(conflicts))
	for _, conflict := range conflicts {
		sessionIDs, err := r.sessionIDs(ctx, conflict.ID)
		if err != nil {
			return nil, err
		}
		details = append(details, models.ConflictDetail{Conflict: conflict, SessionIDs: sessionIDs})
	}
	return details, nil
}
