package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/planforma/planforma-api/internal/dto"
	internalmiddleware "github.com/planforma/planforma-api/internal/middleware"
	"github.com/planforma/planforma-api/internal/models"
	appErrors "github.com/planforma/planforma-api/pkg/errors"
)

type weekPlannerMock struct {
	captured    dto.GeneratePlanRequest
	generateErr error
}

func (m *weekPlannerMock) Generate(_ context.Context, req dto.GeneratePlanRequest) (*dto.GeneratePlanResponse, error) {
	m.captured = req
	if m.generateErr != nil {
		return nil, m.generateErr
	}
	return &dto.GeneratePlanResponse{PlanID: "plan-1", WeekStart: req.WeekStart}, nil
}

func (m *weekPlannerMock) SeedSlots(_ context.Context, req dto.SeedSlotsRequest) (*dto.SeedSlotsResponse, error) {
	return &dto.SeedSlotsResponse{WeekStart: req.WeekStart, Created: 90}, nil
}

func TestPlannerGenerateSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &weekPlannerMock{}
	handler := &PlannerHandler{service: mockSvc}
	req, _ := http.NewRequest(http.MethodPost, "/planner/generate", bytes.NewReader([]byte(`{"weekStart":"2026-01-05"}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.Generate(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "2026-01-05", mockSvc.captured.WeekStart)
}

func TestPlannerGenerateBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &PlannerHandler{service: &weekPlannerMock{}}
	req, _ := http.NewRequest(http.MethodPost, "/planner/generate", bytes.NewReader([]byte(`{"weekStart":`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.Generate(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlannerGenerateMapsDomainError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &weekPlannerMock{generateErr: appErrors.Clone(appErrors.ErrInvalidWeekStart, "")}
	handler := &PlannerHandler{service: mockSvc}
	req, _ := http.NewRequest(http.MethodPost, "/planner/generate", bytes.NewReader([]byte(`{"weekStart":"2026-01-06"}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.Generate(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "INVALID_WEEK_START")
}

func TestPlannerSeedSlotsCreated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &PlannerHandler{service: &weekPlannerMock{}}
	req, _ := http.NewRequest(http.MethodPost, "/planner/seed-slots", bytes.NewReader([]byte(`{"weekStart":"2026-01-05"}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.SeedSlots(c)

	require.Equal(t, http.StatusCreated, w.Code)
}

func TestPlannerGenerateUnauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &PlannerHandler{service: &weekPlannerMock{}}
	router := gin.New()
	router.POST("/planner/generate", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RolePlanner)), handler.Generate)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/planner/generate", bytes.NewReader([]byte(`{"weekStart":"2026-01-05"}`)))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPlannerGenerateForbiddenForTrainer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &PlannerHandler{service: &weekPlannerMock{}}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{UserID: "trainer-1", Role: models.RoleTrainer})
		c.Next()
	})
	router.POST("/planner/generate", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RolePlanner)), handler.Generate)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/planner/generate", bytes.NewReader([]byte(`{"weekStart":"2026-01-05"}`)))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}
