package models

import (
	"encoding/json"
	"time"
)

// Call media types.
const (
	CallTypeVideo = "video"
	CallTypeVoice = "voice"
)

// Call directions, from the perspective of the record's owner.
const (
	CallDirectionIncoming = "incoming"
	CallDirectionOutgoing = "outgoing"
)

// Signaling roles. Each role appends ICE candidates only to its own list.
const (
	CallRoleCaller = "caller"
	CallRoleCallee = "callee"
)

// CallSession is the ephemeral signaling record created by the caller under
// the callee's inbox. It is mutated exactly once (the callee's answer) and
// removed by whichever side tears the call down.
type CallSession struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	FromID       uint            `json:"from_id"`
	FromUsername string          `json:"from_username"`
	Offer        json.RawMessage `json:"offer"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CallLog is a per-user call history entry. Both sides of a call write their
// own independent record, so one call yields two asymmetric rows.
type CallLog struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"not null;index" json:"user_id"`
	PartnerID       uint       `gorm:"not null" json:"partner_id"`
	PartnerUsername string     `json:"partner_username"`
	Type            string     `gorm:"size:8" json:"type"`
	Direction       string     `gorm:"size:10" json:"direction"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
