package repository

import (
	"context"
	"errors"
	"time"

	"marketplace-chat/internal/domain/chat"
	marketplace_errors "marketplace-chat/pkg/errors"

	"gorm.io/gorm"
)

type PostgresChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &PostgresChatRepository{db: db}
}

func (r *PostgresChatRepository) Create(ctx context.Context, c *chat.Chat) error {
	res := r.db.WithContext(ctx).Create(c)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return marketplace_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresChatRepository) GetByID(ctx context.Context, id uint) (chat.Chat, error) {
	var c chat.Chat
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Chat{}, marketplace_errors.ErrNotFound
		}
		return chat.Chat{}, err
	}
	return c, nil
}

func (r *PostgresChatRepository) FindByParticipants(ctx context.Context, productID, userAID, userBID uint) (chat.Chat, error) {
	var c chat.Chat
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND user_a_id = ? AND user_b_id = ?", productID, userAID, userBID).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Chat{}, marketplace_errors.ErrNotFound
		}
		return chat.Chat{}, err
	}
	return c, nil
}

func (r *PostgresChatRepository) ListByUser(ctx context.Context, userID uint, page, limit int) ([]chat.Chat, int64, error) {
	var chats []chat.Chat
	var total int64

	q := r.db.WithContext(ctx).
		Model(&chat.Chat{}).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Chats without messages go last, then newest activity first.
	err := q.Order("CASE WHEN last_message_at IS NULL THEN 1 ELSE 0 END").
		Order("last_message_at DESC").
		Order("created_at DESC").
		Order("id DESC").
		Offset(pageOffset(page, limit)).
		Limit(limit).
		Find(&chats).Error
	if err != nil {
		return nil, 0, err
	}
	return chats, total, nil
}

func (r *PostgresChatRepository) SumUnread(ctx context.Context, userID uint) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&chat.Chat{}).
		Select("COALESCE(SUM(CASE WHEN user_a_id = ? THEN unread_count_user_a ELSE unread_count_user_b END), 0)", userID).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *PostgresChatRepository) RecordMessage(ctx context.Context, c chat.Chat, m *chat.Message) error {
	counter := c.UnreadColumn(c.OtherParticipant(m.SenderID))

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}

		res := tx.Model(&chat.Chat{}).
			Where("id = ?", c.ID).
			Update(counter, gorm.Expr(counter+" + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return marketplace_errors.ErrNotFound
		}

		// A racing send that committed a newer message keeps its preview.
		preview := chat.Truncate(m.Content, chat.PreviewLength)
		return tx.Model(&chat.Chat{}).
			Where("id = ? AND (last_message_at IS NULL OR last_message_at <= ?)", c.ID, m.CreatedAt).
			Updates(map[string]interface{}{
				"last_message":    preview,
				"last_message_at": m.CreatedAt,
			}).Error
	})
}

func (r *PostgresChatRepository) MarkRead(ctx context.Context, c chat.Chat, readerID uint, at time.Time) (int64, error) {
	var flipped int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&chat.Message{}).
			Where("chat_id = ? AND sender_id <> ? AND is_read = ?", c.ID, readerID, false).
			Updates(map[string]interface{}{
				"is_read": true,
				"read_at": at,
			})
		if res.Error != nil {
			return res.Error
		}
		flipped = res.RowsAffected

		return tx.Model(&chat.Chat{}).
			Where("id = ?", c.ID).
			Update(c.UnreadColumn(readerID), 0).Error
	})
	if err != nil {
		return 0, err
	}
	return flipped, nil
}

func (r *PostgresChatRepository) DeactivateByProduct(ctx context.Context, productID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&chat.Chat{}).
		Where("product_id = ? AND status = ?", productID, chat.StatusActive).
		Update("status", chat.StatusInactive)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
