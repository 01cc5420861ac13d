package handler

import (
	"net/http"

	"marketplace-chat/internal/domain/chat"
	"marketplace-chat/internal/services"
	"marketplace-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// MessageBroadcaster pushes HTTP side effects to connected sockets.
// *websocket.ChatGateway implements it.
type MessageBroadcaster interface {
	BroadcastMessage(sent services.SentMessage)
	BroadcastRead(c chat.Chat, readerID uint)
}

type ChatHandler struct {
	service     *services.ChatService
	broadcaster MessageBroadcaster
}

func NewChatHandler(service *services.ChatService, broadcaster MessageBroadcaster) *ChatHandler {
	return &ChatHandler{service: service, broadcaster: broadcaster}
}

func (h *ChatHandler) Initiate(c *gin.Context) {
	var req httpdto.InitiateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "productId and userBId are required")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	result, created, err := h.service.InitiateChat(c.Request.Context(), req.ProductID, req.UserBID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, httpdto.NewSuccessMessage("Chat initiated successfully", result))
}

func (h *ChatHandler) Heads(c *gin.Context) {
	q, ok := bindPage(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	page, err := h.service.GetChatHeads(c.Request.Context(), userID, q.Page, q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessMessage("Chat heads retrieved successfully", page))
}

func (h *ChatHandler) UnreadCount(c *gin.Context) {
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
		httpdto.ChatUnreadCountResponse{Count: count}))
}

func (h *ChatHandler) Get(c *gin.Context) {
	chatID, err := parseID(c.Param("chatId"))
	if err != nil {
		badRequest(c, "invalid chatId")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	result, err := h.service.GetChatByID(c.Request.Context(), chatID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessMessage("Chat retrieved successfully", result))
}

func (h *ChatHandler) Messages(c *gin.Context) {
	chatID, err := parseID(c.Param("chatId"))
	if err != nil {
		badRequest(c, "invalid chatId")
		return
	}
	q, ok := bindPage(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	page, err := h.service.GetMessages(c.Request.Context(), chatID, userID, q.Page, q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessMessage("Messages retrieved successfully", page))
}

func (h *ChatHandler) Send(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "chatId and content (at most 5000 characters) are required")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	sent, err := h.service.SendMessage(c.Request.Context(), req.ChatID, userID, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.broadcaster != nil {
		h.broadcaster.BroadcastMessage(sent)
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessMessage("Message sent successfully", sent.Message))
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	var req httpdto.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "chatId is required")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	result, err := h.service.MarkMessagesAsRead(c.Request.Context(), req.ChatID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.broadcaster != nil {
		h.broadcaster.BroadcastRead(result, userID)
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessMessage[any]("Messages marked as read", nil))
}
