package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presence-api/internal/service"
)

// Metrics records request duration and count per route. The route template
// is used as the label so attendance IDs do not explode cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
