package chat

import (
	"time"
	"unicode/utf8"
)

const (
	StatusInactive = 0
	StatusActive   = 1

	// PreviewLength bounds Chat.LastMessage and the notification preview.
	PreviewLength = 100
	// MaxContentLength bounds Message.Content.
	MaxContentLength = 5000
)

// Chat represents the chats table. UserAID is the product owner.
type Chat struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	ProductID        uint       `gorm:"not null;uniqueIndex:idx_chats_product_users,priority:1" json:"productId"`
	UserAID          uint       `gorm:"not null;uniqueIndex:idx_chats_product_users,priority:2;index" json:"userAId"`
	UserBID          uint       `gorm:"not null;uniqueIndex:idx_chats_product_users,priority:3;index" json:"userBId"`
	LastMessage      *string    `gorm:"type:text" json:"lastMessage"`
	LastMessageAt    *time.Time `json:"lastMessageAt"`
	UnreadCountUserA int        `gorm:"not null;default:0" json:"unreadCountUserA"`
	UnreadCountUserB int        `gorm:"not null;default:0" json:"unreadCountUserB"`
	Status           int        `gorm:"not null;default:1" json:"status"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Message represents the messages table
type Message struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	ChatID    uint       `gorm:"not null;index:idx_messages_chat_created,priority:1" json:"chatId"`
	SenderID  uint       `gorm:"not null;index" json:"senderId"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	IsRead    bool       `gorm:"not null;default:false" json:"isRead"`
	ReadAt    *time.Time `json:"readAt"`
	CreatedAt time.Time  `gorm:"index:idx_messages_chat_created,priority:2" json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (Chat) TableName() string {
	return "chats"
}

func (Message) TableName() string {
	return "messages"
}

func (c Chat) IsParticipant(userID uint) bool {
	return userID != 0 && (c.UserAID == userID || c.UserBID == userID)
}

// OtherParticipant returns the participant that is not userID. The result is
// only meaningful when IsParticipant(userID) holds.
func (c Chat) OtherParticipant(userID uint) uint {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

// UnreadFor returns the unread counter that belongs to userID's role.
func (c Chat) UnreadFor(userID uint) int {
	if c.UserAID == userID {
		return c.UnreadCountUserA
	}
	return c.UnreadCountUserB
}

// UnreadColumn names the counter column for userID's role in the chat.
func (c Chat) UnreadColumn(userID uint) string {
	if c.UserAID == userID {
		return "unread_count_user_a"
	}
	return "unread_count_user_b"
}

func (c Chat) IsActive() bool {
	return c.Status == StatusActive
}

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
