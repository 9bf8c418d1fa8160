package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agoramesh/agora-backend/internal/economy/metrics"
)

// MetricsMiddleware records request counts and latencies per route. The
// route template is used as the endpoint label so path parameters do not
// explode cardinality.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
