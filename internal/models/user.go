// Package models contains data structures for the application's domain models.
package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// User represents a Sameem Chat account.
type User struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Username         string          `gorm:"unique;not null" json:"username"`
	Email            string          `gorm:"unique;not null" json:"email"`
	Password         string          `gorm:"not null" json:"-"`
	DisplayName      string          `json:"display_name"`
	Avatar           string          `json:"avatar"`
	IsAdmin          bool            `gorm:"default:false" json:"is_admin"`
	Suspended        bool            `gorm:"default:false" json:"suspended"`
	FCMToken         string          `json:"-"`
	Settings         json.RawMessage `gorm:"type:json" json:"settings,omitempty"`
	MessagesSent     int64           `gorm:"default:0" json:"messages_sent"`
	MessagesReceived int64           `gorm:"default:0" json:"messages_received"`
	LastActiveAt     *time.Time      `json:"last_active_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`
}

// UserBlock records that UserID has blocked BlockedID.
type UserBlock struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	BlockedID uint      `gorm:"primaryKey;autoIncrement:false" json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
}

// UsernameReservation holds the canonical lowercase handle for a user.
// The primary key makes a rename an atomic create-if-absent: a concurrent
// rename to the same handle fails on the insert instead of racing a
// read-then-write check.
type UsernameReservation struct {
	Name      string    `gorm:"primaryKey;size:64" json:"name"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (UsernameReservation) TableName() string {
	return "username_reservations"
}

// UserSettings is the decoded shape of User.Settings.
type UserSettings struct {
	Notifications struct {
		Enabled bool `json:"enabled"`
		Sound   bool `json:"sound"`
	} `json:"notifications"`
	Appearance struct {
		MessageBubbleColor         string `json:"message_bubble_color,omitempty"`
		ReceivedMessageBubbleColor string `json:"received_message_bubble_color,omitempty"`
		ChatBackgroundColor        string `json:"chat_background_color,omitempty"`
	} `json:"appearance"`
}
