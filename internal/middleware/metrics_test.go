package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRouteLabelUsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	router := gin.New()

	var label string
	router.GET("/plans/:id", func(c *gin.Context) {
		label = routeLabel(c)
		c.Status(http.StatusNoContent)
	})
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/plans/plan-1", nil))

	if label != "/plans/:id" {
		t.Fatalf("unexpected route label: %s", label)
	}
}

func TestRouteLabelCollapsesUnmatchedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/no/such/route/with-an-id-7391", nil)

	if got := routeLabel(c); got != unmatchedRoute {
		t.Fatalf("unexpected route label: %s", got)
	}
}
