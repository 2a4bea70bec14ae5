package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/planforma/planforma-api/internal/dto"
	"github.com/planforma/planforma-api/internal/service"
	appErrors "github.com/planforma/planforma-api/pkg/errors"
	"github.com/planforma/planforma-api/pkg/response"
)

type weekPlanner interface {
	Generate(ctx context.Context, req dto.GeneratePlanRequest) (*dto.GeneratePlanResponse, error)
	SeedSlots(ctx context.Context, req dto.SeedSlotsRequest) (*dto.SeedSlotsResponse, error)
}

// PlannerHandler exposes the automatic timetable generator.
type PlannerHandler struct {
	service weekPlanner
}

// NewPlannerHandler constructs the handler.
func NewPlannerHandler(svc *service.PlannerService) *PlannerHandler {
	return &PlannerHandler{service: svc}
}

// Generate godoc
// @Summary Generate a weekly timetable
// @Description Places every unplaced session of the week using scored heuristics. Sessions that cannot be placed are reported, not rejected.
// @Tags Planner
// @Accept json
// @Produce json
// @Param payload body dto.GeneratePlanRequest true "Generation payload"
// @Success 200 {object} response.Envelope
// @Router /planner/generate [post]
func (h *PlannerHandler) Generate(c *gin.Context) {
	var req dto.GeneratePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generation payload"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SeedSlots godoc
// @Summary Seed the free candidate windows of a week
// @Description Stores the canonical Monday-to-Friday window grid for a week. Seeding the same week twice is rejected.
// @Tags Planner
// @Accept json
// @Produce json
// @Param payload body dto.SeedSlotsRequest true "Seeding payload"
// @Success 201 {object} response.Envelope
// @Router /planner/seed-slots [post]
func (h *PlannerHandler) SeedSlots(c *gin.Context) {
	var req dto.SeedSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid seeding payload"))
		return
	}
	result, err := h.service.SeedSlots(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
