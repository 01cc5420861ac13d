package middleware

import (
	"time"

	"marketplace-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func LoggingMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= 500:
			l.ErrorCtx(c.Request.Context(), "request", fields...)
		case status >= 400:
			l.WarnCtx(c.Request.Context(), "request", fields...)
		default:
			l.InfoCtx(c.Request.Context(), "request", fields...)
		}
	}
}
