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

type planManager interface {
	Get(ctx context.Context, planID string) (*models.WeeklyPlan, error)
	List(ctx context.Context, query dto.PlanQuery) ([]models.WeeklyPlan, error)
	Validate(ctx context.Context, planID, validatedBy string) (*models.WeeklyPlan, error)
	Publish(ctx context.Context, planID string) (*models.WeeklyPlan, error)
	Delete(ctx context.Context, planID string) error
}

// PlanHandler exposes the weekly plan lifecycle.
type PlanHandler struct {
	service planManager
}

// NewPlanHandler constructs the handler.
func NewPlanHandler(svc *service.PlanService) *PlanHandler {
	return &PlanHandler{service: svc}
}

// Get godoc
// @Summary Get a weekly plan
// @Tags Plans
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Router /plans/{id} [get]
func (h *PlanHandler) Get(c *gin.Context) {
	plan, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// List godoc
// @Summary List weekly plans
// @Tags Plans
// @Produce json
// @Param status query string false "Plan status filter"
// @Success 200 {object} response.Envelope
// @Router /plans [get]
func (h *PlanHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	query := dto.PlanQuery{
		Status: c.Query("status"),
		Page:   page,
		Limit:  limit,
	}
	plans, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plans, nil)
}

// Validate godoc
// @Summary Validate a plan once no blocking conflict remains
// @Tags Plans
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Router /plans/{id}/validate [post]
func (h *PlanHandler) Validate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	plan, err := h.service.Validate(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// Publish godoc
// @Summary Publish a validated plan
// @Tags Plans
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Router /plans/{id}/publish [post]
func (h *PlanHandler) Publish(c *gin.Context) {
	plan, err := h.service.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// Delete godoc
// @Summary Delete an unpublished plan
// @Tags Plans
// @Param id path string true "Plan ID"
// @Success 204
// @Router /plans/{id} [delete]
func (h *PlanHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
