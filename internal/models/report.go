package models

import "time"

// ReportStatus values.
const (
	ReportStatusPending     = "pending"
	ReportStatusDismissed   = "dismissed"
	ReportStatusActionTaken = "action_taken"
)

// Report is a user-filed complaint about a specific message.
type Report struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ConversationKey string    `gorm:"size:64;not null;index" json:"conversation_key"`
	MessageID       uint      `gorm:"not null;index" json:"message_id"`
	MessageText     string    `gorm:"type:text" json:"message_text"`
	ReportedID      uint      `gorm:"not null;index" json:"reported_id"`
	ReporterID      uint      `gorm:"not null" json:"reporter_id"`
	Reason          string    `gorm:"type:text;not null" json:"reason"`
	Status          string    `gorm:"size:16;default:'pending';index" json:"status"`
	ResolvedBy      *uint     `json:"resolved_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Reported *User `gorm:"foreignKey:ReportedID" json:"reported,omitempty"`
	Reporter *User `gorm:"foreignKey:ReporterID" json:"reporter,omitempty"`
}
