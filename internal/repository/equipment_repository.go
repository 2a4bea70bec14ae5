package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planforma/planforma-api/internal/models"
)

// EquipmentRepository persists equipment pools.
type EquipmentRepository struct {
	db *sqlx.DB
}

// NewEquipmentRepository constructs the repository.
func NewEquipmentRepository(db *sqlx.DB) *EquipmentRepository {
	return &EquipmentRepository{db: db}
}

// FindByID returns an equipment pool by primary key.
func (r *EquipmentRepository) FindByID(ctx context.Context, id string) (*models.Equipment, error) {
	const query = `SELECT id, name, quantity, created_at, updated_at FROM equipment WHERE id = $1`
	var eq models.Equipment
	if err := r.db.GetContext(ctx, &eq, query, id); err != nil {
		return nil, err
	}
	return &eq, nil
}

// List returns every equipment pool.
func (r *EquipmentRepository) List(ctx context.Context) ([]models.Equipment, error) {
	const query = `SELECT id, name, quantity, created_at, updated_at FROM equipment ORDER BY name`
	items := []models.Equipment{}
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, err
	}
	return items, nil
}

// Create inserts an equipment pool.
func (r *EquipmentRepository) Create(ctx context.Context, eq *models.Equipment) error {
	if eq.ID == "" {
		eq.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	eq.CreatedAt = now
	eq.UpdatedAt = now

	const query = `INSERT INTO equipment (id, name, quantity, created_at, updated_at)
		VALUES (:id, :name, :quantity, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, eq); err != nil {
		return fmt.Errorf("insert equipment: %w", err)
	}
	return nil
}

// UpdateQuantity resizes a pool.
func (r *EquipmentRepository) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	const query = `UPDATE equipment SET quantity = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, quantity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update equipment quantity: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("equipment %s not found", id)
	}
	return nil
}
