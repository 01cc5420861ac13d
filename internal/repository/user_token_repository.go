package repository

import (
	"context"
	"time"

	"marketplace-chat/internal/domain/user"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresUserTokenRepository struct {
	db *gorm.DB
}

func NewUserTokenRepository(db *gorm.DB) UserTokenRepository {
	return &PostgresUserTokenRepository{db: db}
}

// Upsert binds fcmToken to deviceID, moving the device to userID if it was
// registered by someone else.
func (r *PostgresUserTokenRepository) Upsert(ctx context.Context, deviceID, fcmToken string, userID *uint) error {
	now := time.Now()
	t := user.UserToken{
		DeviceID:  deviceID,
		FCMToken:  fcmToken,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"fcm_token", "user_id", "updated_at"}),
		}).
		Create(&t).Error
}

// DeleteForUser removes one device of userID, or all of them when deviceID is
// empty.
func (r *PostgresUserTokenRepository) DeleteForUser(ctx context.Context, userID uint, deviceID string) (int64, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if deviceID != "" {
		q = q.Where("device_id = ?", deviceID)
	}
	res := q.Delete(&user.UserToken{})
	return res.RowsAffected, res.Error
}

func (r *PostgresUserTokenRepository) DeleteTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("fcm_token IN ?", tokens).Delete(&user.UserToken{})
	return res.RowsAffected, res.Error
}

func (r *PostgresUserTokenRepository) ListTokensByUser(ctx context.Context, userID uint) ([]string, error) {
	var tokens []string
	err := r.db.WithContext(ctx).
		Model(&user.UserToken{}).
		Where("user_id = ?", userID).
		Order("id ASC").
		Pluck("fcm_token", &tokens).Error
	return tokens, err
}

func (r *PostgresUserTokenRepository) ListTokensExcept(ctx context.Context, excludeUserIDs []uint) ([]string, error) {
	var tokens []string
	q := r.db.WithContext(ctx).
		Model(&user.UserToken{}).
		Where("user_id IS NOT NULL")
	if len(excludeUserIDs) > 0 {
		q = q.Where("user_id NOT IN ?", excludeUserIDs)
	}
	err := q.Order("id ASC").Pluck("fcm_token", &tokens).Error
	return tokens, err
}
