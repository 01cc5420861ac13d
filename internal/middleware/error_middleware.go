package middleware

import (
	"net/http"

	"marketplace-chat/internal/transport/httpdto"
	"marketplace-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler logs errors handlers attached with c.Error and writes a
// generic 500 when the handler left the response empty.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		l.ErrorCtx(c.Request.Context(), "request error",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err))

		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", "INTERNAL_ERROR"))
		}
	}
}

// Recovery turns panics into a logged 500.
func Recovery(l *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		l.ErrorCtx(c.Request.Context(), "panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", "INTERNAL_ERROR"))
	})
}
