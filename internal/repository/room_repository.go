package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planforma/planforma-api/internal/models"
)

// RoomRepository persists rooms.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs the repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

const roomColumns = `id, name, building, capacity, active, created_at, updated_at`

// FindByID returns a room by primary key.
func (r *RoomRepository) FindByID(ctx context.Context, id string) (*models.Room, error) {
	query := fmt.Sprintf(`SELECT %s FROM rooms WHERE id = $1`, roomColumns)
	var room models.Room
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		return nil, err
	}
	return &room, nil
}

// List returns all active rooms ordered by capacity ascending, so the
// smallest room that fits wins when scanning for reassignment targets.
func (r *RoomRepository) List(ctx context.Context) ([]models.Room, error) {
	query := fmt.Sprintf(`SELECT %s FROM rooms WHERE active ORDER BY capacity, name`, roomColumns)
	rooms := []models.Room{}
	if err := r.db.SelectContext(ctx, &rooms, query); err != nil {
		return nil, err
	}
	return rooms, nil
}

// ListWithMinCapacity returns active rooms that hold at least size people.
func (r *RoomRepository) ListWithMinCapacity(ctx context.Context, size int) ([]models.Room, error) {
	query := fmt.Sprintf(`SELECT %s FROM rooms WHERE active AND capacity >= $1 ORDER BY capacity, name`, roomColumns)
	rooms := []models.Room{}
	if err := r.db.SelectContext(ctx, &rooms, query, size); err != nil {
		return nil, err
	}
	return rooms, nil
}

// Create inserts a room.
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	room.CreatedAt = now
	room.UpdatedAt = now

	const query = `INSERT INTO rooms (id, name, building, capacity, active, created_at, updated_at)
		VALUES (:id, :name, :building, :capacity, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a room.
func (r *RoomRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE rooms SET active = false, updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate room: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("room %s not found", id)
	}
	return nil
}
