package repository

import (
	"context"
	"errors"

	"marketplace-chat/internal/domain/chat"
	marketplace_errors "marketplace-chat/pkg/errors"

	"gorm.io/gorm"
)

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uint) (chat.Message, error) {
	var m chat.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Message{}, marketplace_errors.ErrNotFound
		}
		return chat.Message{}, err
	}
	return m, nil
}

func (r *PostgresMessageRepository) ListByChat(ctx context.Context, chatID uint, page, limit int) ([]chat.Message, int64, error) {
	var messages []chat.Message
	var total int64

	q := r.db.WithContext(ctx).
		Model(&chat.Message{}).
		Where("chat_id = ?", chatID)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Order("created_at DESC").
		Order("id DESC").
		Offset(pageOffset(page, limit)).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}
