package notification

import (
	"time"

	"gorm.io/datatypes"
)

type Module string

const (
	ModuleOrder   Module = "order"
	ModuleProduct Module = "product"
	ModuleVideo   Module = "video"
	ModuleGeneral Module = "general"
	ModuleMessage Module = "message"
)

func (m Module) Valid() bool {
	switch m {
	case ModuleOrder, ModuleProduct, ModuleVideo, ModuleGeneral, ModuleMessage:
		return true
	}
	return false
}

// Notification represents the notifications table
type Notification struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	UserID     uint              `gorm:"not null;index:idx_notifications_user_created,priority:1" json:"userId"`
	Title      string            `gorm:"size:255;not null" json:"title"`
	Message    string            `gorm:"type:text;not null" json:"message"`
	Module     Module            `gorm:"size:32;not null;default:general" json:"module"`
	ResourceID *uint             `json:"resourceId"`
	Payload    datatypes.JSONMap `json:"payload"`
	IsRead     bool              `gorm:"not null;default:false" json:"isRead"`
	CreatedAt  time.Time         `gorm:"index:idx_notifications_user_created,priority:2" json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

func (Notification) TableName() string {
	return "notifications"
}
