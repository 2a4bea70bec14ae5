package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/planforma/planforma-api/internal/dto"
	"github.com/planforma/planforma-api/internal/models"
	appErrors "github.com/planforma/planforma-api/pkg/errors"
)

type planStore interface {
	FindByID(ctx context.Context, id string) (*models.WeeklyPlan, error)
	List(ctx context.Context, status string, limit, offset int) ([]models.WeeklyPlan, error)
	MarkValidated(ctx context.Context, id, validatedBy string) error
	MarkPublished(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type planConflictCounter interface {
	ListByPlan(ctx context.Context, planID string) ([]models.ConflictDetail, error)
}

// PlanService drives the weekly plan lifecycle. A plan only advances to
// VALIDATED once no blocking conflict remains, and only a VALIDATED plan
// can be published.
type PlanService struct {
	plans     planStore
	conflicts planConflictCounter
	logger    *zap.Logger
}

// NewPlanService wires plan dependencies.
func NewPlanService(plans planStore, conflicts planConflictCounter, logger *zap.Logger) *PlanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanService{plans: plans, conflicts: conflicts, logger: logger}
}

// Get returns a plan by id.
func (s *PlanService) Get(ctx context.Context, planID string) (*models.WeeklyPlan, error) {
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	return plan, nil
}

// List returns plans, newest week first.
func (s *PlanService) List(ctx context.Context, query dto.PlanQuery) ([]models.WeeklyPlan, error) {
	limit := query.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := 0
	if query.Page > 1 {
		offset = (query.Page - 1) * limit
	}
	plans, err := s.plans.List(ctx, query.Status, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plans")
	}
	return plans, nil
}

// Validate freezes an IN_PROGRESS plan once every blocking conflict is gone.
func (s *PlanService) Validate(ctx context.Context, planID, validatedBy string) (*models.WeeklyPlan, error) {
	plan, err := s.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != models.PlanStatusInProgress {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("plan is already %s", plan.Status))
	}
	details, err := s.conflicts.ListByPlan(ctx, planID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plan conflicts")
	}
	blocking := 0
	for _, detail := range details {
		if detail.Blocking {
			blocking++
		}
	}
	if blocking > 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("%d blocking conflicts remain", blocking))
	}
	if err := s.plans.MarkValidated(ctx, planID, validatedBy); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate plan")
	}
	s.logger.Info("plan validated", zap.String("planId", planID), zap.String("validatedBy", validatedBy))
	return s.Get(ctx, planID)
}

// Publish makes a VALIDATED plan visible to everyone.
func (s *PlanService) Publish(ctx context.Context, planID string) (*models.WeeklyPlan, error) {
	plan, err := s.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != models.PlanStatusValidated {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("plan is %s, only a validated plan can be published", plan.Status))
	}
	if err := s.plans.MarkPublished(ctx, planID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish plan")
	}
	s.logger.Info("plan published", zap.String("planId", planID))
	return s.Get(ctx, planID)
}

// Delete drops a plan. Published plans are immutable history.
func (s *PlanService) Delete(ctx context.Context, planID string) error {
	plan, err := s.Get(ctx, planID)
	if err != nil {
		return err
	}
	if plan.Status == models.PlanStatusPublished {
		return appErrors.Clone(appErrors.ErrPlanLocked, "a published plan cannot be deleted")
	}
	if err := s.plans.Delete(ctx, planID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete plan")
	}
	return nil
}
