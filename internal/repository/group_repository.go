package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planforma/planforma-api/internal/models"
)

// GroupRepository persists student groups.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// FindByID returns a group by primary key.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*models.StudentGroup, error) {
	const query = `SELECT id, name, size, created_at, updated_at FROM student_groups WHERE id = $1`
	var group models.StudentGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// List returns every group.
func (r *GroupRepository) List(ctx context.Context) ([]models.StudentGroup, error) {
	const query = `SELECT id, name, size, created_at, updated_at FROM student_groups ORDER BY name`
	groups := []models.StudentGroup{}
	if err := r.db.SelectContext(ctx, &groups, query); err != nil {
		return nil, err
	}
	return groups, nil
}

// Create inserts a group.
func (r *GroupRepository) Create(ctx context.Context, group *models.StudentGroup) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now

	const query = `INSERT INTO student_groups (id, name, size, created_at, updated_at)
		VALUES (:id, :name, :size, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// Delete removes a group.
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM student_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("group %s not found", id)
	}
	return nil
}
