package events

import "time"

const (
	EventTypeMessageCreated = "message.created"
	EventTypeMessagesRead   = "message.read"
	EventTypeChatCreated    = "chat.created"
)

type MessageCreated struct {
	MessageID   uint      `json:"message_id"`
	ChatID      uint      `json:"chat_id"`
	ProductID   uint      `json:"product_id"`
	SenderID    uint      `json:"sender_id"`
	RecipientID uint      `json:"recipient_id"`
	Preview     string    `json:"preview"`
	CreatedAt   time.Time `json:"created_at"`
}

type MessagesRead struct {
	ChatID uint      `json:"chat_id"`
	ReadBy uint      `json:"read_by"`
	Count  int64     `json:"count"`
	ReadAt time.Time `json:"read_at"`
}

type ChatCreated struct {
	ChatID    uint `json:"chat_id"`
	ProductID uint `json:"product_id"`
	UserAID   uint `json:"user_a_id"`
	UserBID   uint `json:"user_b_id"`
}
