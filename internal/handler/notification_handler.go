package handler

import (
	"net/http"

	"marketplace-chat/internal/services"
	"marketplace-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	service *services.NotificationService
}

func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

func (h *NotificationHandler) List(c *gin.Context) {
	q, ok := bindPage(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	page, err := h.service.GetNotificationsByUserID(c.Request.Context(), userID, q.Page, q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessMessage("Notifications retrieved successfully", page))
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	count, err := h.service.GetUnreadCount(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessMessage("Unread count retrieved successfully",
		httpdto.NotificationUnreadCountResponse{UnreadCount: count}))
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid notification id")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	n, err := h.service.MarkAsRead(c.Request.Context(), id, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessMessage("Notification marked as read", n))
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	updated, err := h.service.MarkAllAsRead(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessMessage("All notifications marked as read",
		httpdto.MarkAllReadResponse{Updated: updated}))
}

func (h *NotificationHandler) UpdateFCMToken(c *gin.Context) {
	var req httpdto.UpdateFCMTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "fcmToken is required")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.service.UpdateFCMToken(c.Request.Context(), userID, req.DeviceID, req.FCMToken); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessMessage[any]("FCM token updated successfully", nil))
}

// RemoveFCMToken accepts an optional body; without a device id every token
// of the user is removed.
func (h *NotificationHandler) RemoveFCMToken(c *gin.Context) {
	var req httpdto.RemoveFCMTokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	removed, err := h.service.RemoveFCMToken(c.Request.Context(), userID, req.DeviceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessMessage("FCM token removed successfully",
		httpdto.RemoveFCMTokenResponse{Removed: removed}))
}
