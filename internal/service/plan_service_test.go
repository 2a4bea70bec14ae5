package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planforma/planforma-api/internal/dto"
	"github.com/planforma/planforma-api/internal/models"
	appErrors "github.com/planforma/planforma-api/pkg/errors"
)

type planStoreStub struct {
	plan        *models.WeeklyPlan
	listed      []models.WeeklyPlan
	limit       int
	offset      int
	validatedBy string
	published   bool
	deleted     bool
}

func (s *planStoreStub) FindByID(_ context.Context, _ string) (*models.WeeklyPlan, error) {
	if s.plan == nil {
		return nil, sql.ErrNoRows
	}
	return s.plan, nil
}

func (s *planStoreStub) List(_ context.Context, _ string, limit, offset int) ([]models.WeeklyPlan, error) {
	s.limit = limit
	s.offset = offset
	return s.listed, nil
}

func (s *planStoreStub) MarkValidated(_ context.Context, _, validatedBy string) error {
	s.validatedBy = validatedBy
	s.plan.Status = models.PlanStatusValidated
	return nil
}

func (s *planStoreStub) MarkPublished(_ context.Context, _ string) error {
	s.published = true
	s.plan.Status = models.PlanStatusPublished
	return nil
}

func (s *planStoreStub) Delete(_ context.Context, _ string) error {
	s.deleted = true
	return nil
}

type planConflictCounterStub struct {
	details []models.ConflictDetail
}

func (s *planConflictCounterStub) ListByPlan(_ context.Context, _ string) ([]models.ConflictDetail, error) {
	return s.details, nil
}

func newPlanFixture(plan *models.WeeklyPlan, details []models.ConflictDetail) (*PlanService, *planStoreStub) {
	store := &planStoreStub{plan: plan}
	return NewPlanService(store, &planConflictCounterStub{details: details}, zap.NewNop()), store
}

func TestPlanValidateSucceedsWithoutBlockingConflicts(t *testing.T) {
	slotID := "sl-1"
	svc, store := newPlanFixture(inProgressPlan(), []models.ConflictDetail{
		conflictDetail("c-1", models.ConflictEquipmentOverbook, models.SeverityWarning, &slotID, "s-1"),
	})

	plan, err := svc.Validate(context.Background(), "plan-1", "user-7")

	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusValidated, plan.Status)
	assert.Equal(t, "user-7", store.validatedBy)
}

func TestPlanValidateRefusesBlockingConflicts(t *testing.T) {
	slotID := "sl-1"
	svc, store := newPlanFixture(inProgressPlan(), []models.ConflictDetail{
		conflictDetail("c-1", models.ConflictTrainerClash, models.SeverityDoubleBooking, &slotID, "s-1"),
	})

	_, err := svc.Validate(context.Background(), "plan-1", "user-7")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrorCode(err))
	assert.Empty(t, store.validatedBy)
}

func TestPlanValidateRefusesNonInProgressPlan(t *testing.T) {
	plan := inProgressPlan()
	plan.Status = models.PlanStatusValidated
	svc, _ := newPlanFixture(plan, nil)

	_, err := svc.Validate(context.Background(), "plan-1", "user-7")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrorCode(err))
}

func TestPlanPublishRequiresValidatedPlan(t *testing.T) {
	svc, store := newPlanFixture(inProgressPlan(), nil)

	_, err := svc.Publish(context.Background(), "plan-1")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrorCode(err))
	assert.False(t, store.published)
}

func TestPlanPublishValidatedPlan(t *testing.T) {
	plan := inProgressPlan()
	plan.Status = models.PlanStatusValidated
	svc, store := newPlanFixture(plan, nil)

	published, err := svc.Publish(context.Background(), "plan-1")

	require.NoError(t, err)
	assert.True(t, store.published)
	assert.Equal(t, models.PlanStatusPublished, published.Status)
}

func TestPlanDeleteRefusesPublishedPlan(t *testing.T) {
	plan := inProgressPlan()
	plan.Status = models.PlanStatusPublished
	svc, store := newPlanFixture(plan, nil)

	err := svc.Delete(context.Background(), "plan-1")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPlanLocked.Code, appErrorCode(err))
	assert.False(t, store.deleted)
}

func TestPlanListClampsPagination(t *testing.T) {
	svc, store := newPlanFixture(inProgressPlan(), nil)

	_, err := svc.List(context.Background(), dto.PlanQuery{Page: 3, Limit: 500})

	require.NoError(t, err)
	assert.Equal(t, 20, store.limit)
	assert.Equal(t, 40, store.offset)
}

func TestPlanGetUnknownPlan(t *testing.T) {
	svc, _ := newPlanFixture(nil, nil)

	_, err := svc.Get(context.Background(), "missing")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrorCode(err))
}
