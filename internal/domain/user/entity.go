package user

import (
	"strings"
	"time"
)

// User represents the users table. Accounts are owned by the auth subsystem;
// chat only reads them.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FirstName string    `gorm:"size:50" json:"firstName"`
	LastName  string    `gorm:"size:50" json:"lastName"`
	Name      string    `gorm:"size:100" json:"name"`
	Email     string    `gorm:"size:100;uniqueIndex" json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserToken represents the user_tokens table: one push token per device. A
// device may register before login, so UserID is nullable.
type UserToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	DeviceID  string    `gorm:"size:255;not null;uniqueIndex" json:"deviceId"`
	FCMToken  string    `gorm:"column:fcm_token;type:text;not null" json:"fcmToken"`
	UserID    *uint     `gorm:"index" json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

func (UserToken) TableName() string {
	return "user_tokens"
}

// DisplayName is "first last", falling back to Name.
func (u User) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	return strings.TrimSpace(u.Name)
}
