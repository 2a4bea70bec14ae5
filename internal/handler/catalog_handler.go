package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/planforma/planforma-api/internal/dto"
	"github.com/planforma/planforma-api/internal/models"
	"github.com/planforma/planforma-api/internal/service"
	appErrors "github.com/planforma/planforma-api/pkg/errors"
	"github.com/planforma/planforma-api/pkg/response"
)

type catalogManager interface {
	CreateTrainer(ctx context.Context, req dto.CreateTrainerRequest) (*models.Trainer, error)
	UpdateTrainer(ctx context.Context, trainerID string, req dto.UpdateTrainerRequest) (*models.Trainer, error)
	GetTrainer(ctx context.Context, trainerID string) (*models.Trainer, error)
	ListTrainers(ctx context.Context) ([]models.Trainer, error)
	DeactivateTrainer(ctx context.Context, trainerID string) error
	ListAvailability(ctx context.Context, trainerID string) ([]models.AvailabilityWindow, error)
	ReplaceAvailability(ctx context.Context, trainerID string, req dto.ReplaceAvailabilityRequest) ([]models.AvailabilityWindow, error)
	ListPreferences(ctx context.Context, ownerID string) ([]models.Preference, error)
	CreatePreference(ctx context.Context, ownerID string, req dto.PreferenceRequest) (*models.Preference, error)
	DeletePreference(ctx context.Context, ownerID, prefID string) error
	CreateRoom(ctx context.Context, req dto.CreateRoomRequest) (*models.Room, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	DeactivateRoom(ctx context.Context, roomID string) error
	CreateEquipment(ctx context.Context, req dto.CreateEquipmentRequest) (*models.Equipment, error)
	ListEquipment(ctx context.Context) ([]models.Equipment, error)
	UpdateEquipmentQuantity(ctx context.Context, equipmentID string, quantity int) (*models.Equipment, error)
	CreateGroup(ctx context.Context, req dto.CreateGroupRequest) (*models.StudentGroup, error)
	ListGroups(ctx context.Context) ([]models.StudentGroup, error)
	DeleteGroup(ctx context.Context, groupID string) error
}

// CatalogHandler exposes resource management endpoints.
type CatalogHandler struct {
	service catalogManager
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(svc *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{service: svc}
}

// CreateTrainer godoc
// @Summary Register a trainer
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.CreateTrainerRequest true "Trainer payload"
// @Success 201 {object} response.Envelope
// @Router /trainers [post]
func (h *CatalogHandler) CreateTrainer(c *gin.Context) {
	var req dto.CreateTrainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid trainer payload"))
		return
	}
	trainer, err := h.service.CreateTrainer(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, trainer)
}

// UpdateTrainer godoc
// @Summary Update a trainer
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Trainer ID"
// @Param payload body dto.UpdateTrainerRequest true "Trainer payload"
// @Success 200 {object} response.Envelope
// @Router /trainers/{id} [put]
func (h *CatalogHandler) UpdateTrainer(c *gin.Context) {
	var req dto.UpdateTrainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid trainer payload"))
		return
	}
	trainer, err := h.service.UpdateTrainer(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trainer, nil)
}

// GetTrainer godoc
// @Summary Get a trainer
// @Tags Catalog
// @Produce json
// @Param id path string true "Trainer ID"
// @Success 200 {object} response.Envelope
// @Router /trainers/{id} [get]
func (h *CatalogHandler) GetTrainer(c *gin.Context) {
	trainer, err := h.service.GetTrainer(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trainer, nil)
}

// ListTrainers godoc
// @Summary List active trainers
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /trainers [get]
func (h *CatalogHandler) ListTrainers(c *gin.Context) {
	trainers, err := h.service.ListTrainers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trainers, nil)
}

// DeactivateTrainer godoc
// @Summary Deactivate a trainer
// @Tags Catalog
// @Param id path string true "Trainer ID"
// @Success 204
// @Router /trainers/{id} [delete]
func (h *CatalogHandler) DeactivateTrainer(c *gin.Context) {
	if err := h.service.DeactivateTrainer(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListAvailability godoc
// @Summary List a trainer's availability windows
// @Tags Catalog
// @Produce json
// @Param id path string true "Trainer ID"
// @Success 200 {object} response.Envelope
// @Router /trainers/{id}/availability [get]
func (h *CatalogHandler) ListAvailability(c *gin.Context) {
	windows, err := h.service.ListAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, windows, nil)
}

// ReplaceAvailability godoc
// @Summary Replace a trainer's availability declaration
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Trainer ID"
// @Param payload body dto.ReplaceAvailabilityRequest true "Availability payload"
// @Success 200 {object} response.Envelope
// @Router /trainers/{id}/availability [put]
func (h *CatalogHandler) ReplaceAvailability(c *gin.Context) {
	var req dto.ReplaceAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability payload"))
		return
	}
	windows, err := h.service.ReplaceAvailability(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, windows, nil)
}

// ListPreferences godoc
// @Summary List the preferences of a trainer or group
// @Tags Catalog
// @Produce json
// @Param id path string true "Owner ID"
// @Success 200 {object} response.Envelope
// @Router /preferences/{id} [get]
func (h *CatalogHandler) ListPreferences(c *gin.Context) {
	prefs, err := h.service.ListPreferences(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prefs, nil)
}

// CreatePreference godoc
// @Summary Attach a preference to a trainer or group
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Owner ID"
// @Param payload body dto.PreferenceRequest true "Preference payload"
// @Success 201 {object} response.Envelope
// @Router /preferences/{id} [post]
func (h *CatalogHandler) CreatePreference(c *gin.Context) {
	var req dto.PreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid preference payload"))
		return
	}
	pref, err := h.service.CreatePreference(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pref)
}

// DeletePreference godoc
// @Summary Delete a preference
// @Tags Catalog
// @Param id path string true "Owner ID"
// @Param prefId path string true "Preference ID"
// @Success 204
// @Router /preferences/{id}/{prefId} [delete]
func (h *CatalogHandler) DeletePreference(c *gin.Context) {
	if err := h.service.DeletePreference(c.Request.Context(), c.Param("id"), c.Param("prefId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CreateRoom godoc
// @Summary Register a room
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.CreateRoomRequest true "Room payload"
// @Success 201 {object} response.Envelope
// @Router /rooms [post]
func (h *CatalogHandler) CreateRoom(c *gin.Context) {
	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid room payload"))
		return
	}
	room, err := h.service.CreateRoom(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, room)
}

// ListRooms godoc
// @Summary List active rooms
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /rooms [get]
func (h *CatalogHandler) ListRooms(c *gin.Context) {
	rooms, err := h.service.ListRooms(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rooms, nil)
}

// DeactivateRoom godoc
// @Summary Deactivate a room
// @Tags Catalog
// @Param id path string true "Room ID"
// @Success 204
// @Router /rooms/{id} [delete]
func (h *CatalogHandler) DeactivateRoom(c *gin.Context) {
	if err := h.service.DeactivateRoom(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CreateEquipment godoc
// @Summary Register an equipment pool
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.CreateEquipmentRequest true "Equipment payload"
// @Success 201 {object} response.Envelope
// @Router /equipment [post]
func (h *CatalogHandler) CreateEquipment(c *gin.Context) {
	var req dto.CreateEquipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid equipment payload"))
		return
	}
	eq, err := h.service.CreateEquipment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, eq)
}

// ListEquipment godoc
// @Summary List equipment pools
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /equipment [get]
func (h *CatalogHandler) ListEquipment(c *gin.Context) {
	pools, err := h.service.ListEquipment(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pools, nil)
}

// UpdateEquipmentQuantity godoc
// @Summary Resize an equipment pool
// @Tags Catalog
// @Produce json
// @Param id path string true "Equipment ID"
// @Param quantity query int true "New pool size"
// @Success 200 {object} response.Envelope
// @Router /equipment/{id} [patch]
func (h *CatalogHandler) UpdateEquipmentQuantity(c *gin.Context) {
	quantity, err := strconv.Atoi(c.Query("quantity"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "quantity must be an integer"))
		return
	}
	eq, err := h.service.UpdateEquipmentQuantity(c.Request.Context(), c.Param("id"), quantity)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, eq, nil)
}

// CreateGroup godoc
// @Summary Register a student group
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.CreateGroupRequest true "Group payload"
// @Success 201 {object} response.Envelope
// @Router /groups [post]
func (h *CatalogHandler) CreateGroup(c *gin.Context) {
	var req dto.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid group payload"))
		return
	}
	group, err := h.service.CreateGroup(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// ListGroups godoc
// @Summary List student groups
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /groups [get]
func (h *CatalogHandler) ListGroups(c *gin.Context) {
	groups, err := h.service.ListGroups(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// DeleteGroup godoc
// @Summary Delete a student group
// @Tags Catalog
// @Param id path string true "Group ID"
// @Success 204
// @Router /groups/{id} [delete]
func (h *CatalogHandler) DeleteGroup(c *gin.Context) {
	if err := h.service.DeleteGroup(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
