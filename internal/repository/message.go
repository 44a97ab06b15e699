package repository

import (
	"context"
	"errors"
	"time"

	"sameem/internal/models"

	"gorm.io/gorm"
)

// MessageRepository defines persistence operations for direct messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	ListConversation(ctx context.Context, conversationKey string, viewerID uint, limit int, beforeID uint) ([]models.Message, error)
	LatestVisible(ctx context.Context, conversationKey string, viewerID uint) (*models.Message, error)
	MarkRead(ctx context.Context, conversationKey string, readerID uint) (int64, error)
	EditText(ctx context.Context, id uint, text string, editedAt time.Time) error
	Tombstone(ctx context.Context, id uint) error
	Hide(ctx context.Context, messageID, userID uint) error
	UpdateInvitationStatus(ctx context.Context, id uint, status string) error
	DeleteConversation(ctx context.Context, conversationKey string) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository returns a new MessageRepository implementation.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Message", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &msg, nil
}

// ListConversation returns messages oldest-first, skipping messages the
// viewer has hidden for themselves. beforeID of 0 means newest page.
func (r *messageRepository) ListConversation(ctx context.Context, conversationKey string, viewerID uint, limit int, beforeID uint) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	q := r.db.WithContext(ctx).
		Joins("LEFT JOIN message_hides h ON h.message_id = messages.id AND h.user_id = ?", viewerID).
		Where("messages.conversation_key = ? AND h.message_id IS NULL", conversationKey)
	if beforeID > 0 {
		q = q.Where("messages.id < ?", beforeID)
	}

	var msgs []models.Message
	if err := q.Order("messages.id DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *messageRepository) LatestVisible(ctx context.Context, conversationKey string, viewerID uint) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Joins("LEFT JOIN message_hides h ON h.message_id = messages.id AND h.user_id = ?", viewerID).
		Where("messages.conversation_key = ? AND h.message_id IS NULL", conversationKey).
		Order("messages.id DESC").
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &msg, nil
}

// MarkRead flips every partner-authored message that is not yet read. It is
// level-triggered: calling it again when nothing is unread updates zero rows.
func (r *messageRepository) MarkRead(ctx context.Context, conversationKey string, readerID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_key = ? AND to_id = ? AND status <> ?",
			conversationKey, readerID, models.MessageStatusRead).
		Update("status", models.MessageStatusRead)
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *messageRepository) EditText(ctx context.Context, id uint, text string, editedAt time.Time) error {
	if err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"text": text, "edited_at": editedAt}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Tombstone replaces the message for everyone: the row stays so the
// conversation timeline keeps its slot, but the text is gone.
func (r *messageRepository) Tombstone(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"text":       models.DeletedMessageText,
		}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *messageRepository) Hide(ctx context.Context, messageID, userID uint) error {
	hide := models.MessageHide{MessageID: messageID, UserID: userID}
	if err := r.db.WithContext(ctx).Create(&hide).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil // already hidden
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *messageRepository) UpdateInvitationStatus(ctx context.Context, id uint, status string) error {
	if err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", id).
		Update("invitation_status", status).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *messageRepository) DeleteConversation(ctx context.Context, conversationKey string) error {
	if err := r.db.WithContext(ctx).
		Where("conversation_key = ?", conversationKey).
		Delete(&models.Message{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
