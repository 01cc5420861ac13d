package handler

import (
	"net/http"
	"strconv"

	"marketplace-chat/internal/services"
	"marketplace-chat/internal/transport/httpdto"
	marketplace_errors "marketplace-chat/pkg/errors"

	"github.com/gin-gonic/gin"
)

func parseID(value string) (uint, error) {
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, marketplace_errors.BadRequest("invalid id")
	}
	return uint(parsed), nil
}

func currentUser(c *gin.Context) (uint, bool) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return 0, false
	}
	return userID, true
}

// writeError maps a service error onto the envelope. Unexpected errors are
// attached to the context so the error middleware logs them.
func writeError(c *gin.Context, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, httpdto.NewErrorResponse(marketplace_errors.Message(err), services.ErrorCode(err)))
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(message, "INVALID_REQUEST"))
}

func bindPage(c *gin.Context) (httpdto.PageQuery, bool) {
	var q httpdto.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid pagination")
		return q, false
	}
	return q, true
}
