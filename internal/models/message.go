package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Message status values. A message is "delivered" only when the recipient
// was online at send time, and flips to "read" when the recipient's client
// reconciles the conversation.
const (
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
)

// Message types beyond plain text.
const (
	MessageTypeText           = "text"
	MessageTypeGameInvitation = "game_invitation"
	MessageTypeGameResult     = "game_result"
)

// Game invitation states carried on game_invitation messages.
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationDeclined = "declined"
)

// DeletedMessageText replaces the body of a message deleted for everyone.
const DeletedMessageText = "This message was deleted"

// ConversationKey derives the shared conversation identifier for two users.
// IDs are ordered ascending before joining so both sides compute the same
// key no matter who asks.
func ConversationKey(a, b uint) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%d_%d", a, b)
}

// ReplyRef is the denormalized preview of the message being replied to.
type ReplyRef struct {
	MessageID      uint   `json:"message_id"`
	AuthorID       uint   `json:"author_id"`
	AuthorUsername string `json:"author_username"`
	Text           string `json:"text"`
}

// GameResult is carried on game_result messages.
type GameResult struct {
	Result         string `json:"result"` // "win" or "draw"
	WinnerUsername string `json:"winner_username,omitempty"`
}

// Message represents a direct message in a two-party conversation.
type Message struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	ConversationKey  string          `gorm:"size:64;not null;index" json:"conversation_key"`
	FromID           uint            `gorm:"not null;index" json:"from_id"`
	ToID             uint            `gorm:"not null;index" json:"to_id"`
	Text             string          `gorm:"type:text;not null" json:"text"`
	Status           string          `gorm:"size:16;default:'sent'" json:"status"`
	Type             string          `gorm:"size:24;default:'text'" json:"type"`
	EditedAt         *time.Time      `json:"edited_at,omitempty"`
	IsDeleted        bool            `gorm:"default:false" json:"is_deleted"`
	ReplyTo          json.RawMessage `gorm:"type:json" json:"reply_to,omitempty"`
	InvitationStatus string          `gorm:"size:16" json:"invitation_status,omitempty"`
	GameResult       json.RawMessage `gorm:"type:json" json:"game_result,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`

	From *User `gorm:"foreignKey:FromID" json:"from,omitempty"`
	To   *User `gorm:"foreignKey:ToID" json:"to,omitempty"`
}

// Redact tombstones the message for every viewer.
func (m *Message) Redact() {
	m.IsDeleted = true
	m.Text = DeletedMessageText
}

// PreviewText is what reply previews and contact lists show for the message.
func (m *Message) PreviewText() string {
	if m.IsDeleted {
		return DeletedMessageText
	}
	return m.Text
}

// SetReplyTo stores the denormalized reply preview.
func (m *Message) SetReplyTo(ref ReplyRef) error {
	raw, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	m.ReplyTo = raw
	return nil
}

// GetReplyTo decodes the reply preview, if any.
func (m *Message) GetReplyTo() (*ReplyRef, error) {
	if len(m.ReplyTo) == 0 {
		return nil, nil
	}
	var ref ReplyRef
	if err := json.Unmarshal(m.ReplyTo, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// SetGameResult stores the result payload on a game_result message.
func (m *Message) SetGameResult(res GameResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	m.GameResult = raw
	return nil
}

// MessageHide records a "delete for me": the message stays in the log but is
// filtered out of this user's reads.
type MessageHide struct {
	MessageID uint      `gorm:"primaryKey;autoIncrement:false" json:"message_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
