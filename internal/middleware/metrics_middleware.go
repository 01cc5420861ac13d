package middleware

import (
	"strconv"
	"time"

	"marketplace-chat/internal/observability"

	"github.com/gin-gonic/gin"
)

// MetricsMiddleware records request counts and latency labelled by route
// template, never by raw path.
func MetricsMiddleware(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
