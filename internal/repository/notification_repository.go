package repository

import (
	"context"
	"errors"

	"marketplace-chat/internal/domain/notification"
	marketplace_errors "marketplace-chat/pkg/errors"

	"gorm.io/gorm"
)

type PostgresNotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

func (r *PostgresNotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *PostgresNotificationRepository) GetForUser(ctx context.Context, id, userID uint) (notification.Notification, error) {
	var n notification.Notification
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notification.Notification{}, marketplace_errors.ErrNotFound
		}
		return notification.Notification{}, err
	}
	return n, nil
}

func (r *PostgresNotificationRepository) ListByUser(ctx context.Context, userID uint, page, limit int) ([]notification.Notification, int64, error) {
	var items []notification.Notification
	var total int64

	q := r.db.WithContext(ctx).
		Model(&notification.Notification{}).
		Where("user_id = ?", userID)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Order("created_at DESC").
		Order("id DESC").
		Offset(pageOffset(page, limit)).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, id, userID uint) error {
	res := r.db.WithContext(ctx).
		Model(&notification.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return marketplace_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresNotificationRepository) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&notification.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *PostgresNotificationRepository) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&notification.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}
