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

type conflictResolver interface {
	ResolveAll(ctx context.Context, planID string) (*dto.ResolveAllResponse, error)
	ApplyRemedy(ctx context.Context, req dto.ApplyRemedyRequest) (*dto.ResolutionOutcome, error)
	ProposeRemedies(ctx context.Context, conflictID string) ([]dto.RemedyProposal, error)
	Summary(ctx context.Context, planID string) (*dto.PlanSummary, error)
}

// ResolutionHandler exposes the conflict resolution engine.
type ResolutionHandler struct {
	service conflictResolver
}

// NewResolutionHandler constructs the handler.
func NewResolutionHandler(svc *service.ConflictResolutionService) *ResolutionHandler {
	return &ResolutionHandler{service: svc}
}

// ResolveAll godoc
// @Summary Resolve every conflict of a plan
// @Description Walks conflicts hardest first and applies the cheapest remedy that works. Unresolvable conflicts stay stored.
// @Tags Resolution
// @Produce json
// @Param planId path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Router /resolution/resolve-all/{planId} [post]
func (h *ResolutionHandler) ResolveAll(c *gin.Context) {
	result, err := h.service.ResolveAll(c.Request.Context(), c.Param("planId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Apply godoc
// @Summary Apply one chosen remedy to one conflict
// @Tags Resolution
// @Accept json
// @Produce json
// @Param payload body dto.ApplyRemedyRequest true "Remedy payload"
// @Success 200 {object} response.Envelope
// @Router /resolution/apply [post]
func (h *ResolutionHandler) Apply(c *gin.Context) {
	var req dto.ApplyRemedyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid remedy payload"))
		return
	}
	outcome, err := h.service.ApplyRemedy(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// Proposals godoc
// @Summary List applicable remedies for a conflict
// @Tags Resolution
// @Produce json
// @Param id path string true "Conflict ID"
// @Success 200 {object} response.Envelope
// @Router /resolution/conflicts/{id}/remedies [get]
func (h *ResolutionHandler) Proposals(c *gin.Context) {
	proposals, err := h.service.ProposeRemedies(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposals, nil)
}

// Summary godoc
// @Summary Summarise a plan's conflicts by type and severity
// @Tags Resolution
// @Produce json
// @Param planId path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Router /resolution/summary/{planId} [get]
func (h *ResolutionHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), c.Param("planId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
