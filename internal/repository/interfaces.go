package repository

import (
	"context"
	"time"

	"marketplace-chat/internal/domain/chat"
	"marketplace-chat/internal/domain/notification"
	"marketplace-chat/internal/domain/product"
	"marketplace-chat/internal/domain/user"
)

type ChatRepository interface {
	Create(ctx context.Context, c *chat.Chat) error
	GetByID(ctx context.Context, id uint) (chat.Chat, error)
	FindByParticipants(ctx context.Context, productID, userAID, userBID uint) (chat.Chat, error)
	ListByUser(ctx context.Context, userID uint, page, limit int) ([]chat.Chat, int64, error)
	SumUnread(ctx context.Context, userID uint) (int64, error)

	// RecordMessage inserts m and updates the chat's preview and the
	// recipient's unread counter in one transaction.
	RecordMessage(ctx context.Context, c chat.Chat, m *chat.Message) error
	// MarkRead flags every unread message not sent by readerID and zeroes
	// readerID's counter in one transaction. It returns the number of
	// messages flipped.
	MarkRead(ctx context.Context, c chat.Chat, readerID uint, at time.Time) (int64, error)
	DeactivateByProduct(ctx context.Context, productID uint) (int64, error)
}

type MessageRepository interface {
	GetByID(ctx context.Context, id uint) (chat.Message, error)
	// ListByChat returns one page ordered newest first.
	ListByChat(ctx context.Context, chatID uint, page, limit int) ([]chat.Message, int64, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *notification.Notification) error
	GetForUser(ctx context.Context, id, userID uint) (notification.Notification, error)
	ListByUser(ctx context.Context, userID uint, page, limit int) ([]notification.Notification, int64, error)
	MarkRead(ctx context.Context, id, userID uint) error
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
	CountUnread(ctx context.Context, userID uint) (int64, error)
}

type UserRepository interface {
	GetUserByID(ctx context.Context, id uint) (user.User, error)
}

type ProductRepository interface {
	GetByID(ctx context.Context, id uint) (product.Product, error)
	// GetSummaries loads the notification projection for every id in one
	// round of queries.
	GetSummaries(ctx context.Context, ids []uint) (map[uint]product.Summary, error)
}

type UserTokenRepository interface {
	Upsert(ctx context.Context, deviceID, fcmToken string, userID *uint) error
	DeleteForUser(ctx context.Context, userID uint, deviceID string) (int64, error)
	DeleteTokens(ctx context.Context, tokens []string) (int64, error)
	ListTokensByUser(ctx context.Context, userID uint) ([]string, error)
	// ListTokensExcept returns tokens bound to any user not in excludeUserIDs.
	ListTokensExcept(ctx context.Context, excludeUserIDs []uint) ([]string, error)
}
