// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"

	"marketplace-chat/internal/domain/product"
	"marketplace-chat/internal/domain/user"
	"marketplace-chat/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database with the full schema.
// A single connection keeps the database alive and serialises writers.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.InitSchema(db))
	return db
}

func SeedUser(t *testing.T, db *gorm.DB, id uint, first, last string) user.User {
	t.Helper()
	u := user.User{ID: id, FirstName: first, LastName: last, Email: uuid.NewString() + "@example.com"}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func SeedProduct(t *testing.T, db *gorm.DB, id, ownerID uint, name string) product.Product {
	t.Helper()
	slug := uuid.NewString()
	p := product.Product{ID: id, Name: name, NameSlug: &slug, UserID: ownerID, Status: product.StatusActive}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func SeedMedia(t *testing.T, db *gorm.DB, productID uint, url string, sortOrder int) {
	t.Helper()
	require.NoError(t, db.Create(&product.Media{ProductID: productID, URL: url, SortOrder: sortOrder}).Error)
}
