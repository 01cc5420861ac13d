package repository

import (
	"context"
	"errors"

	"marketplace-chat/internal/domain/user"
	marketplace_errors "marketplace-chat/pkg/errors"

	"gorm.io/gorm"
)

type PostgresUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) GetUserByID(ctx context.Context, id uint) (user.User, error) {
	var u user.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user.User{}, marketplace_errors.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}
