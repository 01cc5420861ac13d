package repository

import (
	"fmt"

	"marketplace-chat/internal/domain/chat"
	"marketplace-chat/internal/domain/notification"
	"marketplace-chat/internal/domain/product"
	"marketplace-chat/internal/domain/user"

	"gorm.io/gorm"
)

// Models lists every table in dependency order.
func Models() []interface{} {
	return []interface{}{
		&user.User{},
		&user.UserToken{},
		&product.Product{},
		&product.Media{},
		&chat.Chat{},
		&chat.Message{},
		&notification.Notification{},
	}
}

// InitSchema runs gorm auto-migration for all tables.
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// DropSchema drops every table. Used by the migrate CLI reset command.
func DropSchema(db *gorm.DB) error {
	models := Models()
	for i := len(models) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(models[i]); err != nil {
			return fmt.Errorf("drop table: %w", err)
		}
	}
	return nil
}
