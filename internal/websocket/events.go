package websocket

import (
	"encoding/json"
	"strings"
	"time"

	"marketplace-chat/internal/domain/chat"
	"marketplace-chat/internal/domain/notification"
	marketplace_errors "marketplace-chat/pkg/errors"
)

// Client events.
const (
	EventSendMessage       = "sendMessage"
	EventJoinChat          = "joinChat"
	EventLeaveChat         = "leaveChat"
	EventTyping            = "typing"
	EventMarkAsRead        = "markAsRead"
	EventCheckOnlineStatus = "checkOnlineStatus"
	EventPing              = "ping"
)

// Server events.
const (
	EventConnected            = "connected"
	EventError                = "error"
	EventAck                  = "ack"
	EventPong                 = "pong"
	EventNewMessage           = "newMessage"
	EventChatUpdated          = "chatUpdated"
	EventUserTyping           = "userTyping"
	EventMessagesRead         = "messagesRead"
	EventNewNotification      = "newNotification"
	EventNotificationRead     = "notificationRead"
	EventAllNotificationsRead = "allNotificationsRead"
)

// ClientFrame is one inbound text frame. ID is echoed on the ack.
type ClientFrame struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerFrame is one outbound text frame.
type ServerFrame struct {
	Event string      `json:"event"`
	ID    string      `json:"id,omitempty"`
	Data  interface{} `json:"data"`
}

func encodeFrame(event, id string, data interface{}) ([]byte, error) {
	return json.Marshal(ServerFrame{Event: event, ID: id, Data: data})
}

// Inbound payloads. Each is validated before it reaches a service.

type SendMessageEvent struct {
	ChatID  uint   `json:"chatId"`
	Content string `json:"content"`
}

func (e SendMessageEvent) validate() error {
	if e.ChatID == 0 {
		return marketplace_errors.BadRequest("chatId is required")
	}
	if strings.TrimSpace(e.Content) == "" {
		return marketplace_errors.BadRequest("Message content is required")
	}
	return nil
}

type JoinChatEvent struct {
	ChatID uint `json:"chatId"`
}

type LeaveChatEvent struct {
	ChatID uint `json:"chatId"`
}

type MarkAsReadEvent struct {
	ChatID uint `json:"chatId"`
}

type TypingEvent struct {
	ChatID   uint `json:"chatId"`
	IsTyping bool `json:"isTyping"`
}

type CheckOnlineStatusEvent struct {
	UserIDs []uint `json:"userIds"`
}

func (e CheckOnlineStatusEvent) validate() error {
	if e.UserIDs == nil {
		return marketplace_errors.BadRequest("userIds is required")
	}
	return nil
}

type PingEvent struct{}

func requireChatID(id uint) error {
	if id == 0 {
		return marketplace_errors.BadRequest("chatId is required")
	}
	return nil
}

// DecodeEvent turns a frame into one of the typed events above.
func DecodeEvent(f ClientFrame) (interface{}, error) {
	var (
		ev  interface{}
		err error
	)
	switch f.Event {
	case EventSendMessage:
		var e SendMessageEvent
		if err = unmarshalData(f.Data, &e); err == nil {
			err = e.validate()
		}
		ev = e
	case EventJoinChat:
		var e JoinChatEvent
		if err = unmarshalData(f.Data, &e); err == nil {
			err = requireChatID(e.ChatID)
		}
		ev = e
	case EventLeaveChat:
		var e LeaveChatEvent
		if err = unmarshalData(f.Data, &e); err == nil {
			err = requireChatID(e.ChatID)
		}
		ev = e
	case EventMarkAsRead:
		var e MarkAsReadEvent
		if err = unmarshalData(f.Data, &e); err == nil {
			err = requireChatID(e.ChatID)
		}
		ev = e
	case EventTyping:
		var e TypingEvent
		if err = unmarshalData(f.Data, &e); err == nil {
			err = requireChatID(e.ChatID)
		}
		ev = e
	case EventCheckOnlineStatus:
		var e CheckOnlineStatusEvent
		if err = unmarshalData(f.Data, &e); err == nil {
			err = e.validate()
		}
		ev = e
	case EventPing:
		ev = PingEvent{}
	default:
		return nil, marketplace_errors.BadRequest("Unknown event")
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func unmarshalData(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return marketplace_errors.BadRequest("Event payload is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return marketplace_errors.BadRequest("Malformed event payload")
	}
	return nil
}

// Outbound payloads.

type ConnectedPayload struct {
	UserID  uint   `json:"userId"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type NewMessagePayload struct {
	Message chat.Message `json:"message"`
	ChatID  uint         `json:"chatId"`
}

type ChatUpdatedPayload struct {
	ChatID        uint      `json:"chatId"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

type UserTypingPayload struct {
	ChatID   uint `json:"chatId"`
	UserID   uint `json:"userId"`
	IsTyping bool `json:"isTyping"`
}

type MessagesReadPayload struct {
	ChatID uint `json:"chatId"`
	ReadBy uint `json:"readBy"`
}

type NewNotificationPayload struct {
	Notification notification.Notification `json:"notification"`
	Timestamp    string                    `json:"timestamp"`
}

type NotificationReadPayload struct {
	NotificationID uint   `json:"notificationId"`
	Timestamp      string `json:"timestamp"`
}

type AllNotificationsReadPayload struct {
	Timestamp string `json:"timestamp"`
}

// Ack is the reply to a client event carrying an id. Fields beyond Success
// depend on the event.
type Ack map[string]interface{}

func ackFailure(message string) Ack {
	return Ack{"success": false, "error": message}
}

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

func timestamp(t time.Time) string {
	return t.UTC().Format(isoMillis)
}
