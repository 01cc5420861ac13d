package product

import "time"

const (
	StatusActive    = 1
	StatusCompleted = 3
)

// Product represents the products table. Only the columns chat needs are
// mapped; the catalog subsystem owns the rest.
type Product struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	NameSlug  *string   `gorm:"size:255;uniqueIndex" json:"nameSlug"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	Status    int       `gorm:"not null;default:1" json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Media represents the product_media table
type Media struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProductID uint      `gorm:"not null;index" json:"productId"`
	URL       string    `gorm:"size:500;not null" json:"url"`
	Type      string    `gorm:"size:16;not null;default:image" json:"type"`
	SortOrder int       `gorm:"not null;default:0" json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary is the projection attached to product notifications.
type Summary struct {
	ID    uint    `json:"id"`
	Name  string  `json:"name"`
	Slug  *string `json:"slug"`
	Image *string `json:"image"`
}

func (Product) TableName() string {
	return "products"
}

func (Media) TableName() string {
	return "product_media"
}
