package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/planforma/planforma-api/internal/service"
)

// unmatchedRoute is the shared label for requests hitting no registered
// route. Raw URL paths would blow up metric cardinality.
const unmatchedRoute = "unmatched"

// Metrics records method, route and latency for every request.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		metricsSvc.ObserveHTTPRequest(c.Request.Method, routeLabel(c), c.Writer.Status(), time.Since(start))
	}
}

func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}
