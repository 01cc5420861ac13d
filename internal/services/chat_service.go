package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"marketplace-chat/internal/background"
	"marketplace-chat/internal/domain/chat"
	"marketplace-chat/internal/domain/notification"
	"marketplace-chat/internal/events"
	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/repository"
	marketplace_errors "marketplace-chat/pkg/errors"
	"marketplace-chat/pkg/logger"

	"go.uber.org/zap"
)

const (
	defaultChatHeadsLimit = 20
	defaultMessagesLimit  = 50
)

// Notifier deposits in-app notifications. NotificationService implements it.
type Notifier interface {
	CreateNotification(ctx context.Context, in CreateNotificationInput) (notification.Notification, error)
}

type ChatService struct {
	chats     repository.ChatRepository
	messages  repository.MessageRepository
	users     repository.UserRepository
	products  repository.ProductRepository
	notifier  Notifier
	publisher events.Publisher
	runner    background.Runner
	logger    *logger.Logger
	metrics   *observability.Metrics
}

type ChatServiceDeps struct {
	Chats     repository.ChatRepository
	Messages  repository.MessageRepository
	Users     repository.UserRepository
	Products  repository.ProductRepository
	Notifier  Notifier
	Publisher events.Publisher
	Runner    background.Runner
	Logger    *logger.Logger
	Metrics   *observability.Metrics
}

func NewChatService(d ChatServiceDeps) *ChatService {
	if d.Publisher == nil {
		d.Publisher = events.NoopPublisher{}
	}
	return &ChatService{
		chats:     d.Chats,
		messages:  d.Messages,
		users:     d.Users,
		products:  d.Products,
		notifier:  d.Notifier,
		publisher: d.Publisher,
		runner:    d.Runner,
		logger:    d.Logger.Named("chat"),
		metrics:   d.Metrics,
	}
}

type ChatPage struct {
	Chats      []chat.Chat `json:"chats"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"totalPages"`
}

type MessagePage struct {
	Messages   []chat.Message `json:"messages"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

// SentMessage is the persisted message plus the chat as it looks after the
// send.
type SentMessage struct {
	Message chat.Message
	Chat    chat.Chat
}

func (s SentMessage) RecipientID() uint {
	return s.Chat.OtherParticipant(s.Message.SenderID)
}

// InitiateChat returns the chat between the product owner and userBID about
// productID, creating it on first use. created reports whether a row was
// inserted.
func (s *ChatService) InitiateChat(ctx context.Context, productID, userBID, requesterID uint) (c chat.Chat, created bool, err error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return chat.Chat{}, false, notFoundOr(err, "Product not found")
	}
	if _, err := s.users.GetUserByID(ctx, userBID); err != nil {
		return chat.Chat{}, false, notFoundOr(err, "User not found")
	}
	if p.UserID == userBID {
		return chat.Chat{}, false, marketplace_errors.BadRequest("You cannot chat with yourself")
	}
	if requesterID != p.UserID && requesterID != userBID {
		return chat.Chat{}, false, marketplace_errors.Forbidden("You can only start chats you take part in")
	}

	existing, err := s.chats.FindByParticipants(ctx, productID, p.UserID, userBID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, marketplace_errors.ErrNotFound) {
		return chat.Chat{}, false, err
	}

	c = chat.Chat{
		ProductID: productID,
		UserAID:   p.UserID,
		UserBID:   userBID,
		Status:    chat.StatusActive,
	}
	if err := s.chats.Create(ctx, &c); err != nil {
		if errors.Is(err, marketplace_errors.ErrAlreadyExists) {
			// lost a race with a concurrent initiate for the same triple
			existing, err := s.chats.FindByParticipants(ctx, productID, p.UserID, userBID)
			return existing, false, err
		}
		return chat.Chat{}, false, err
	}

	s.publish(events.EventTypeChatCreated, c.ID, events.ChatCreated{
		ChatID:    c.ID,
		ProductID: c.ProductID,
		UserAID:   c.UserAID,
		UserBID:   c.UserBID,
	})
	return c, true, nil
}

func (s *ChatService) GetChatHeads(ctx context.Context, userID uint, page, limit int) (ChatPage, error) {
	page, limit = normalizePage(page, limit, defaultChatHeadsLimit)
	chats, total, err := s.chats.ListByUser(ctx, userID, page, limit)
	if err != nil {
		return ChatPage{}, err
	}
	if chats == nil {
		chats = []chat.Chat{}
	}
	return ChatPage{
		Chats:      chats,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}, nil
}

func (s *ChatService) GetChatByID(ctx context.Context, chatID, userID uint) (chat.Chat, error) {
	return s.authorizedChat(ctx, chatID, userID)
}

// GetMessages pages by recency but returns each page oldest first.
func (s *ChatService) GetMessages(ctx context.Context, chatID, userID uint, page, limit int) (MessagePage, error) {
	if _, err := s.authorizedChat(ctx, chatID, userID); err != nil {
		return MessagePage{}, err
	}

	page, limit = normalizePage(page, limit, defaultMessagesLimit)
	messages, total, err := s.messages.ListByChat(ctx, chatID, page, limit)
	if err != nil {
		return MessagePage{}, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return MessagePage{
		Messages:   messages,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}, nil
}

func (s *ChatService) SendMessage(ctx context.Context, chatID, senderID uint, content string) (SentMessage, error) {
	c, err := s.authorizedChat(ctx, chatID, senderID)
	if err != nil {
		return SentMessage{}, err
	}
	if strings.TrimSpace(content) == "" {
		return SentMessage{}, marketplace_errors.BadRequest("Message content is required")
	}
	if utf8.RuneCountInString(content) > chat.MaxContentLength {
		return SentMessage{}, marketplace_errors.BadRequest("Message content is too long")
	}
	if !c.IsActive() {
		return SentMessage{}, marketplace_errors.BadRequest("Chat is no longer active")
	}

	now := time.Now()
	m := chat.Message{
		ChatID:    c.ID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.chats.RecordMessage(ctx, c, &m); err != nil {
		return SentMessage{}, err
	}
	s.metrics.MessageSent()

	preview := chat.Truncate(content, chat.PreviewLength)
	c.LastMessage = &preview
	c.LastMessageAt = &m.CreatedAt
	if c.UserAID == senderID {
		c.UnreadCountUserB++
	} else {
		c.UnreadCountUserA++
	}

	sent := SentMessage{Message: m, Chat: c}
	s.runner.Go("chat.notify_recipient", func(ctx context.Context) error {
		return s.notifyRecipient(ctx, sent)
	})
	s.publish(events.EventTypeMessageCreated, c.ID, events.MessageCreated{
		MessageID:   m.ID,
		ChatID:      c.ID,
		ProductID:   c.ProductID,
		SenderID:    senderID,
		RecipientID: sent.RecipientID(),
		Preview:     preview,
		CreatedAt:   m.CreatedAt,
	})
	return sent, nil
}

// MarkMessagesAsRead flags the other participant's unread messages and
// zeroes the caller's counter. It returns the chat so callers can address
// the other participant.
func (s *ChatService) MarkMessagesAsRead(ctx context.Context, chatID, userID uint) (chat.Chat, error) {
	c, err := s.authorizedChat(ctx, chatID, userID)
	if err != nil {
		return chat.Chat{}, err
	}

	now := time.Now()
	flipped, err := s.chats.MarkRead(ctx, c, userID, now)
	if err != nil {
		return chat.Chat{}, err
	}
	if c.UserAID == userID {
		c.UnreadCountUserA = 0
	} else {
		c.UnreadCountUserB = 0
	}

	if flipped > 0 {
		s.publish(events.EventTypeMessagesRead, c.ID, events.MessagesRead{
			ChatID: c.ID,
			ReadBy: userID,
			Count:  flipped,
			ReadAt: now,
		})
	}
	return c, nil
}

func (s *ChatService) GetUnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.chats.SumUnread(ctx, userID)
}

// DeactivateProductChats closes every chat about a completed product. Called
// by the product lifecycle.
func (s *ChatService) DeactivateProductChats(ctx context.Context, productID uint) (int64, error) {
	n, err := s.chats.DeactivateByProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("chats deactivated", zap.Uint("product_id", productID), zap.Int64("count", n))
	}
	return n, nil
}

func (s *ChatService) authorizedChat(ctx context.Context, chatID, userID uint) (chat.Chat, error) {
	c, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return chat.Chat{}, notFoundOr(err, "Chat not found")
	}
	if !c.IsParticipant(userID) {
		return chat.Chat{}, marketplace_errors.Forbidden("You are not part of this chat")
	}
	return c, nil
}

func (s *ChatService) notifyRecipient(ctx context.Context, sent SentMessage) error {
	if s.notifier == nil {
		return nil
	}
	senderID := sent.Message.SenderID
	senderName := "Someone"
	if u, err := s.users.GetUserByID(ctx, senderID); err == nil {
		if name := u.DisplayName(); name != "" {
			senderName = name
		}
	}

	_, err := s.notifier.CreateNotification(ctx, CreateNotificationInput{
		UserID:     sent.RecipientID(),
		Title:      "New Message",
		Message:    "You have a new message from " + senderName,
		Module:     notification.ModuleMessage,
		ResourceID: &senderID,
		Payload: map[string]interface{}{
			"chatId":         sent.Chat.ID,
			"senderId":       senderID,
			"senderName":     senderName,
			"messageContent": chat.Truncate(sent.Message.Content, chat.PreviewLength),
			"productId":      sent.Chat.ProductID,
		},
	})
	return err
}

func (s *ChatService) publish(eventType string, chatID uint, payload interface{}) {
	s.runner.Go("chat.publish_event", func(ctx context.Context) error {
		env, err := events.NewEnvelope(eventType, "chat", strconv.FormatUint(uint64(chatID), 10), payload)
		if err != nil {
			return err
		}
		return s.publisher.Publish(ctx, env)
	})
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, marketplace_errors.ErrNotFound) {
		return marketplace_errors.NotFound(message)
	}
	return err
}
