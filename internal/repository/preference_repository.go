package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planforma/planforma-api/internal/models"
)

// PreferenceRepository stores weighted wishes for trainers and groups.
// The owner id points at either a trainer or a student group.
type PreferenceRepository struct {
	db *sqlx.DB
}

// NewPreferenceRepository constructs the repository.
func NewPreferenceRepository(db *sqlx.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// ListByOwner returns the preferences declared by one owner.
func (r *PreferenceRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Preference, error) {
	const query = `SELECT id, owner_id, type, value, priority, created_at, updated_at
		FROM preferences WHERE owner_id = $1 ORDER BY priority DESC, created_at`
	prefs := []models.Preference{}
	if err := r.db.SelectContext(ctx, &prefs, query, ownerID); err != nil {
		return nil, err
	}
	return prefs, nil
}

// ListAll loads every preference, used by planner snapshots.
func (r *PreferenceRepository) ListAll(ctx context.Context) ([]models.Preference, error) {
	const query = `SELECT id, owner_id, type, value, priority, created_at, updated_at
		FROM preferences ORDER BY owner_id, priority DESC`
	prefs := []models.Preference{}
	if err := r.db.SelectContext(ctx, &prefs, query); err != nil {
		return nil, err
	}
	return prefs, nil
}

// Create inserts a preference.
func (r *PreferenceRepository) Create(ctx context.Context, pref *models.Preference) error {
	if pref.ID == "" {
		pref.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	pref.CreatedAt = now
	pref.UpdatedAt = now

	const query = `INSERT INTO preferences (id, owner_id, type, value, priority, created_at, updated_at)
		VALUES (:id, :owner_id, :type, :value, :priority, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, pref); err != nil {
		return fmt.Errorf("insert preference: %w", err)
	}
	return nil
}

// Delete removes a preference owned by ownerID.
func (r *PreferenceRepository) Delete(ctx context.Context, ownerID, prefID string) error {
	const query = `DELETE FROM preferences WHERE id = $1 AND owner_id = $2`
	res, err := r.db.ExecContext(ctx, query, prefID, ownerID)
	if err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("preference %s not found", prefID)
	}
	return nil
}
