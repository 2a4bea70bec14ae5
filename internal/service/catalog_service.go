package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/planforma/planforma-api/internal/dto"
	"github.com/planforma/planforma-api/internal/models"
	appErrors "github.com/planforma/planforma-api/pkg/errors"
)

type catalogTrainerRepository interface {
	FindByID(ctx context.Context, id string) (*models.Trainer, error)
	List(ctx context.Context) ([]models.Trainer, error)
	Create(ctx context.Context, trainer *models.Trainer) error
	Update(ctx context.Context, trainer *models.Trainer) error
	Deactivate(ctx context.Context, id string) error
	ListAvailability(ctx context.Context, trainerID string) ([]models.AvailabilityWindow, error)
	ReplaceAvailability(ctx context.Context, exec sqlx.ExtContext, trainerID string, windows []models.AvailabilityWindow) error
}

type catalogRoomRepository interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
	List(ctx context.Context) ([]models.Room, error)
	Create(ctx context.Context, room *models.Room) error
	Deactivate(ctx context.Context, id string) error
}

type catalogEquipmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Equipment, error)
	List(ctx context.Context) ([]models.Equipment, error)
	Create(ctx context.Context, eq *models.Equipment) error
	UpdateQuantity(ctx context.Context, id string, quantity int) error
}

type catalogGroupRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentGroup, error)
	List(ctx context.Context) ([]models.StudentGroup, error)
	Create(ctx context.Context, group *models.StudentGroup) error
	Delete(ctx context.Context, id string) error
}

type catalogPreferenceRepository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]models.Preference, error)
	Create(ctx context.Context, pref *models.Preference) error
	Delete(ctx context.Context, ownerID, prefID string) error
}

// CatalogService manages the scheduling resources: trainers with their
// availability and preferences, rooms, equipment pools and student groups.
type CatalogService struct {
	trainers    catalogTrainerRepository
	rooms       catalogRoomRepository
	equipment   catalogEquipmentRepository
	groups      catalogGroupRepository
	preferences catalogPreferenceRepository
	tx          txProvider
	logger      *zap.Logger
	validate    *validator.Validate
}

// NewCatalogService wires catalog dependencies.
func NewCatalogService(
	trainers catalogTrainerRepository,
	rooms catalogRoomRepository,
	equipment catalogEquipmentRepository,
	groups catalogGroupRepository,
	preferences catalogPreferenceRepository,
	tx txProvider,
	logger *zap.Logger,
) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		trainers:    trainers,
		rooms:       rooms,
		equipment:   equipment,
		groups:      groups,
		preferences: preferences,
		tx:          tx,
		logger:      logger,
		validate:    validator.New(),
	}
}

// CreateTrainer registers a trainer, active by default.
func (s *CatalogService) CreateTrainer(ctx context.Context, req dto.CreateTrainerRequest) (*models.Trainer, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trainer request")
	}
	trainer := &models.Trainer{
		Email:     req.Email,
		FullName:  req.FullName,
		Specialty: req.Specialty,
		Active:    true,
	}
	if err := s.trainers.Create(ctx, trainer); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store trainer")
	}
	return trainer, nil
}

// UpdateTrainer mutates trainer attributes.
func (s *CatalogService) UpdateTrainer(ctx context.Context, trainerID string, req dto.UpdateTrainerRequest) (*models.Trainer, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trainer request")
	}
	trainer, err := s.trainers.FindByID(ctx, trainerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "trainer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trainer")
	}
	trainer.Email = req.Email
	trainer.FullName = req.FullName
	trainer.Specialty = req.Specialty
	if req.Active != nil {
		trainer.Active = *req.Active
	}
	if err := s.trainers.Update(ctx, trainer); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update trainer")
	}
	return trainer, nil
}

// ListTrainers returns the active teaching staff.
func (s *CatalogService) ListTrainers(ctx context.Context) ([]models.Trainer, error) {
	trainers, err := s.trainers.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list trainers")
	}
	return trainers, nil
}

// GetTrainer returns one trainer.
func (s *CatalogService) GetTrainer(ctx context.Context, trainerID string) (*models.Trainer, error) {
	trainer, err := s.trainers.FindByID(ctx, trainerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "trainer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trainer")
	}
	return trainer, nil
}

// DeactivateTrainer retires a trainer from future planning.
func (s *CatalogService) DeactivateTrainer(ctx context.Context, trainerID string) error {
	if err := s.trainers.Deactivate(ctx, trainerID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate trainer")
	}
	return nil
}

// ListAvailability returns a trainer's weekly availability declaration.
func (s *CatalogService) ListAvailability(ctx context.Context, trainerID string) ([]models.AvailabilityWindow, error) {
	if _, err := s.GetTrainer(ctx, trainerID); err != nil {
		return nil, err
	}
	windows, err := s.trainers.ListAvailability(ctx, trainerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability")
	}
	return windows, nil
}

// ReplaceAvailability swaps a trainer's full availability declaration in one
// transaction.
func (s *CatalogService) ReplaceAvailability(ctx context.Context, trainerID string, req dto.ReplaceAvailabilityRequest) ([]models.AvailabilityWindow, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability request")
	}
	if _, err := s.GetTrainer(ctx, trainerID); err != nil {
		return nil, err
	}

	windows := make([]models.AvailabilityWindow, 0, len(req.Windows))
	for _, window := range req.Windows {
		if weekdayOffset(window.Weekday) < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown weekday label "+window.Weekday)
		}
		start := minutesOfDay(window.StartTime)
		end := minutesOfDay(window.EndTime)
		if start < 0 || end < 0 || end <= start {
			return nil, appErrors.Clone(appErrors.ErrValidation, "availability windows must use HH:MM and end after they start")
		}
		windows = append(windows, models.AvailabilityWindow{
			Weekday:   normalizeWeekday(window.Weekday),
			StartTime: formatMinutes(start),
			EndTime:   formatMinutes(end),
			Available: window.Available,
		})
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.trainers.ReplaceAvailability(ctx, tx, trainerID, windows); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace availability")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit availability")
		return nil, err
	}
	return s.trainers.ListAvailability(ctx, trainerID)
}

// ListPreferences returns the wishes attached to a trainer or group.
func (s *CatalogService) ListPreferences(ctx context.Context, ownerID string) ([]models.Preference, error) {
	prefs, err := s.preferences.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list preferences")
	}
	return prefs, nil
}

// CreatePreference attaches a weighted wish to a trainer or group.
func (s *CatalogService) CreatePreference(ctx context.Context, ownerID string, req dto.PreferenceRequest) (*models.Preference, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid preference request")
	}
	pref := &models.Preference{
		OwnerID:  ownerID,
		Type:     models.PreferenceType(req.Type),
		Value:    req.Value,
		Priority: req.Priority,
	}
	if err := s.preferences.Create(ctx, pref); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store preference")
	}
	return pref, nil
}

// DeletePreference removes one wish.
func (s *CatalogService) DeletePreference(ctx context.Context, ownerID, prefID string) error {
	if err := s.preferences.Delete(ctx, ownerID, prefID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete preference")
	}
	return nil
}

// CreateRoom registers a room, active by default.
func (s *CatalogService) CreateRoom(ctx context.Context, req dto.CreateRoomRequest) (*models.Room, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room request")
	}
	room := &models.Room{
		Name:     req.Name,
		Building: req.Building,
		Capacity: req.Capacity,
		Active:   true,
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store room")
	}
	return room, nil
}

// ListRooms returns active rooms ordered by capacity.
func (s *CatalogService) ListRooms(ctx context.Context) ([]models.Room, error) {
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	return rooms, nil
}

// DeactivateRoom retires a room from future planning.
func (s *CatalogService) DeactivateRoom(ctx context.Context, roomID string) error {
	if err := s.rooms.Deactivate(ctx, roomID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate room")
	}
	return nil
}

// CreateEquipment registers an equipment pool.
func (s *CatalogService) CreateEquipment(ctx context.Context, req dto.CreateEquipmentRequest) (*models.Equipment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid equipment request")
	}
	eq := &models.Equipment{Name: req.Name, Quantity: req.Quantity}
	if err := s.equipment.Create(ctx, eq); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store equipment")
	}
	return eq, nil
}

// ListEquipment returns every equipment pool.
func (s *CatalogService) ListEquipment(ctx context.Context) ([]models.Equipment, error) {
	pools, err := s.equipment.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list equipment")
	}
	return pools, nil
}

// UpdateEquipmentQuantity resizes an equipment pool.
func (s *CatalogService) UpdateEquipmentQuantity(ctx context.Context, equipmentID string, quantity int) (*models.Equipment, error) {
	if quantity < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "quantity cannot be negative")
	}
	if err := s.equipment.UpdateQuantity(ctx, equipmentID, quantity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resize equipment pool")
	}
	eq, err := s.equipment.FindByID(ctx, equipmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "equipment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load equipment")
	}
	return eq, nil
}

// CreateGroup registers a student group.
func (s *CatalogService) CreateGroup(ctx context.Context, req dto.CreateGroupRequest) (*models.StudentGroup, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group request")
	}
	group := &models.StudentGroup{Name: req.Name, Size: req.Size}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store group")
	}
	return group, nil
}

// ListGroups returns every student group.
func (s *CatalogService) ListGroups(ctx context.Context) ([]models.StudentGroup, error) {
	groups, err := s.groups.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	return groups, nil
}

// DeleteGroup removes a student group.
func (s *CatalogService) DeleteGroup(ctx context.Context, groupID string) error {
	if err := s.groups.Delete(ctx, groupID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete group")
	}
	return nil
}
