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

type sessionManager interface {
	Create(ctx context.Context, req dto.CreateSessionRequest) (*models.SessionDetail, []dto.ConflictDescriptor, error)
	Update(ctx context.Context, sessionID string, req dto.UpdateSessionRequest) (*models.SessionDetail, []dto.ConflictDescriptor, error)
	Get(ctx context.Context, sessionID string) (*models.SessionDetail, error)
	List(ctx context.Context, query dto.SessionQuery) ([]models.Session, error)
	Delete(ctx context.Context, sessionID string) error
	GetConflicts(ctx context.Context, sessionID string) ([]dto.ConflictDescriptor, error)
}

type sessionWriteResponse struct {
	Session   *models.SessionDetail    `json:"session"`
	Conflicts []dto.ConflictDescriptor `json:"conflicts"`
}

// SessionHandler exposes session CRUD and conflict lookups.
type SessionHandler struct {
	service sessionManager
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(svc *service.SessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// Create godoc
// @Summary Create a session inside a weekly plan
// @Description A clashing session is stored anyway and comes back flagged with its conflicts.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	detail, conflicts, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sessionWriteResponse{Session: detail, Conflicts: conflicts})
}

// Update godoc
// @Summary Update a session and re-run detection
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.UpdateSessionRequest true "Session payload"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [put]
func (h *SessionHandler) Update(c *gin.Context) {
	var req dto.UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	detail, conflicts, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessionWriteResponse{Session: detail, Conflicts: conflicts}, nil)
}

// Get godoc
// @Summary Get a session with its slots and equipment
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// List godoc
// @Summary List the sessions of a plan
// @Tags Sessions
// @Produce json
// @Param planId query string true "Plan ID"
// @Param status query string false "Session status filter"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	query := dto.SessionQuery{
		PlanID: c.Query("planId"),
		Status: c.Query("status"),
		Page:   page,
		Limit:  limit,
	}
	sessions, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Delete godoc
// @Summary Delete a session
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GetConflicts godoc
// @Summary List the stored conflicts of a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/conflicts [get]
func (h *SessionHandler) GetConflicts(c *gin.Context) {
	conflicts, err := h.service.GetConflicts(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil)
}
