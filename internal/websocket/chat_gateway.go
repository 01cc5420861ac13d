package websocket

import (
	"context"

	"marketplace-chat/internal/domain/chat"
	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/redis"
	"marketplace-chat/internal/services"
	marketplace_errors "marketplace-chat/pkg/errors"
	"marketplace-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ChatNamespace = "chat"

// ChatOperations is the part of services.ChatService the gateway drives.
type ChatOperations interface {
	SendMessage(ctx context.Context, chatID, senderID uint, content string) (services.SentMessage, error)
	GetChatByID(ctx context.Context, chatID, userID uint) (chat.Chat, error)
	MarkMessagesAsRead(ctx context.Context, chatID, userID uint) (chat.Chat, error)
}

// MessageLimiter throttles message sends per user.
type MessageLimiter interface {
	AllowMessage(ctx context.Context, userID uint) (*redis.RateLimitResult, error)
}

type ChatGateway struct {
	*gateway
	chats       ChatOperations
	sendLimiter MessageLimiter
}

type ChatGatewayDeps struct {
	Auth           TokenVerifier
	Registry       Registry
	Chats          ChatOperations
	ConnectLimiter ConnectLimiter
	MessageLimiter MessageLimiter
	Logger         *logger.Logger
	Metrics        *observability.Metrics
}

func NewChatGateway(d ChatGatewayDeps) *ChatGateway {
	g := &ChatGateway{
		gateway: newGateway(ChatNamespace, "Connected to chat server",
			d.Auth, d.Registry, d.ConnectLimiter, d.Logger, d.Metrics),
		chats:       d.Chats,
		sendLimiter: d.MessageLimiter,
	}
	return g
}

// Handle upgrades GET /ws/chat.
func (g *ChatGateway) Handle(c *gin.Context) {
	g.serve(c, g.dispatch)
}

func (g *ChatGateway) Registry() Registry {
	return g.registry
}

func (g *ChatGateway) dispatch(client *Client, frame ClientFrame) {
	ev, err := DecodeEvent(frame)
	if err != nil {
		client.Fail(frame.ID, err)
		g.record(client, frame.Event, err)
		return
	}

	ctx, cancel := eventContext(client)
	defer cancel()

	var ack Ack
	switch e := ev.(type) {
	case SendMessageEvent:
		ack, err = g.handleSendMessage(ctx, client, e)
	case JoinChatEvent:
		ack, err = g.handleJoinChat(ctx, client, e)
	case LeaveChatEvent:
		g.registry.Leave(ChatRoom(e.ChatID), client)
		ack = Ack{"success": true, "chatId": e.ChatID}
	case TypingEvent:
		ack, err = g.handleTyping(ctx, client, e)
	case MarkAsReadEvent:
		ack, err = g.handleMarkAsRead(ctx, client, e)
	case CheckOnlineStatusEvent:
		ack = g.handleCheckOnlineStatus(e)
	case PingEvent:
		g.handlePing(client, frame)
		return
	default:
		err = marketplace_errors.BadRequest("Unknown event")
	}

	if err != nil {
		client.Fail(frame.ID, err)
	} else {
		client.Ack(frame.ID, ack)
	}
	g.record(client, frame.Event, err)
}

func (g *ChatGateway) handleSendMessage(ctx context.Context, client *Client, e SendMessageEvent) (Ack, error) {
	if err := g.allowSend(ctx, client.UserID()); err != nil {
		return nil, err
	}
	sent, err := g.chats.SendMessage(ctx, e.ChatID, client.UserID(), e.Content)
	if err != nil {
		return nil, err
	}
	g.BroadcastMessage(sent)
	return Ack{"success": true, "message": sent.Message}, nil
}

func (g *ChatGateway) allowSend(ctx context.Context, userID uint) error {
	if g.sendLimiter == nil {
		return nil
	}
	res, err := g.sendLimiter.AllowMessage(ctx, userID)
	if err != nil {
		g.logger.Warn("message rate limit check failed", userID, "", zap.Error(err))
		return nil
	}
	if !res.Allowed {
		return marketplace_errors.New(marketplace_errors.ErrRateLimited, "You are sending messages too fast")
	}
	return nil
}

// BroadcastMessage fans a stored message out to every device of both
// participants. The HTTP send endpoint uses it too.
func (g *ChatGateway) BroadcastMessage(sent services.SentMessage) {
	m := sent.Message
	rooms := []string{UserRoom(m.SenderID), UserRoom(sent.RecipientID())}
	update := ChatUpdatedPayload{
		ChatID:        m.ChatID,
		LastMessage:   chat.Truncate(m.Content, chat.PreviewLength),
		LastMessageAt: m.CreatedAt,
	}
	for _, room := range rooms {
		g.emit(room, EventNewMessage, NewMessagePayload{Message: m, ChatID: m.ChatID})
		g.emit(room, EventChatUpdated, update)
	}
}

// BroadcastRead tells the other participant that readerID has read the chat.
func (g *ChatGateway) BroadcastRead(c chat.Chat, readerID uint) {
	g.emit(UserRoom(c.OtherParticipant(readerID)), EventMessagesRead,
		MessagesReadPayload{ChatID: c.ID, ReadBy: readerID})
}

func (g *ChatGateway) handleJoinChat(ctx context.Context, client *Client, e JoinChatEvent) (Ack, error) {
	if _, err := g.chats.GetChatByID(ctx, e.ChatID, client.UserID()); err != nil {
		return nil, err
	}
	g.registry.Join(ChatRoom(e.ChatID), client)
	return Ack{"success": true, "chatId": e.ChatID}, nil
}

func (g *ChatGateway) handleTyping(ctx context.Context, client *Client, e TypingEvent) (Ack, error) {
	c, err := g.chats.GetChatByID(ctx, e.ChatID, client.UserID())
	if err != nil {
		return nil, err
	}
	g.emit(UserRoom(c.OtherParticipant(client.UserID())), EventUserTyping, UserTypingPayload{
		ChatID:   e.ChatID,
		UserID:   client.UserID(),
		IsTyping: e.IsTyping,
	})
	return Ack{"success": true}, nil
}

func (g *ChatGateway) handleMarkAsRead(ctx context.Context, client *Client, e MarkAsReadEvent) (Ack, error) {
	c, err := g.chats.MarkMessagesAsRead(ctx, e.ChatID, client.UserID())
	if err != nil {
		return nil, err
	}
	g.BroadcastRead(c, client.UserID())
	return Ack{"success": true}, nil
}

func (g *ChatGateway) handleCheckOnlineStatus(e CheckOnlineStatusEvent) Ack {
	status := make(map[uint]bool, len(e.UserIDs))
	for _, id := range e.UserIDs {
		status[id] = g.registry.IsOnline(id)
	}
	return Ack{"success": true, "onlineStatus": status}
}

func (g *ChatGateway) emit(room, event string, data interface{}) {
	if _, err := g.registry.Emit(room, event, data); err != nil {
		g.logger.Error("emit failed", 0, "", err, zap.String("room", room), zap.String("server_event", event))
	}
}
