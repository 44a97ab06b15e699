package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"sameem/internal/cache"
	"sameem/internal/models"
	"sameem/internal/observability"
	"sameem/internal/repository"
)

// Presence reports realtime online status. The websocket hub implements it.
type Presence interface {
	IsOnline(userID uint) bool
}

// ChatEvents publishes realtime chat events across instances.
type ChatEvents interface {
	PublishChatMessage(ctx context.Context, conversationKey string, payload string) error
	PublishUser(ctx context.Context, userID uint, payload string) error
}

// ChatService provides direct-message business logic.
type ChatService struct {
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	reportRepo  repository.ReportRepository
	presence    Presence
	events      ChatEvents
}

// SendMessageInput is the input for sending a message.
type SendMessageInput struct {
	FromID    uint
	ToID      uint
	Text      string
	ReplyToID uint
}

// ReportMessageInput is the input for reporting a message.
type ReportMessageInput struct {
	ReporterID uint
	MessageID  uint
	Reason     string
}

// NewChatService returns a new ChatService.
func NewChatService(
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	reportRepo repository.ReportRepository,
	presence Presence,
	events ChatEvents,
) *ChatService {
	return &ChatService{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		reportRepo:  reportRepo,
		presence:    presence,
		events:      events,
	}
}

const maxMessageTextLen = 10000 // 10K characters

// editWindow bounds how long a sender may edit a message after sending it.
const editWindow = 15 * time.Minute

// SendMessage stores and fans out a direct message. The message is marked
// delivered only when the recipient is online at send time; otherwise it
// stays sent until the recipient's client reconciles.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (*models.Message, error) {
	if in.Text == "" {
		return nil, models.NewValidationError("Message text is required")
	}
	if len(in.Text) > maxMessageTextLen {
		return nil, models.NewValidationError("Message text too long (max 10000 characters)")
	}
	if in.FromID == in.ToID {
		return nil, models.NewValidationError("Cannot message yourself")
	}

	recipient, err := s.userRepo.GetByID(ctx, in.ToID)
	if err != nil {
		return nil, err
	}

	blocked, err := s.userRepo.IsBlockedEitherWay(ctx, in.FromID, in.ToID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, models.NewForbiddenError("Messaging is blocked between these users")
	}

	key := models.ConversationKey(in.FromID, in.ToID)

	status := models.MessageStatusSent
	if s.presence != nil && s.presence.IsOnline(in.ToID) {
		status = models.MessageStatusDelivered
	}

	message := &models.Message{
		ConversationKey: key,
		FromID:          in.FromID,
		ToID:            in.ToID,
		Text:            in.Text,
		Status:          status,
		Type:            models.MessageTypeText,
	}

	if in.ReplyToID != 0 {
		parent, err := s.messageRepo.GetByID(ctx, in.ReplyToID)
		if err != nil {
			return nil, err
		}
		if parent.ConversationKey != key {
			return nil, models.NewValidationError("Replied-to message belongs to another conversation")
		}
		authorName := ""
		if author, err := s.userRepo.GetByID(ctx, parent.FromID); err == nil {
			authorName = author.Username
		}
		if err := message.SetReplyTo(models.ReplyRef{
			MessageID:      parent.ID,
			AuthorID:       parent.FromID,
			AuthorUsername: authorName,
			Text:           parent.PreviewText(),
		}); err != nil {
			return nil, models.NewInternalError(err)
		}
	}

	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	if err := s.userRepo.IncrementMessageCounters(ctx, in.FromID, in.ToID); err != nil {
		return nil, err
	}
	s.incrementUnread(ctx, in.ToID, key)

	observability.MessagesTotal.WithLabelValues(message.Type, status).Inc()

	if sender, err := s.userRepo.GetByID(ctx, in.FromID); err == nil {
		message.From = sender
	}
	message.To = recipient

	s.publishConversation(ctx, key, "message", message)
	s.notifyUser(ctx, in.ToID, "new_message", message)

	return message, nil
}

// GetHistory returns the conversation page visible to the viewer, oldest
// first. beforeID pages backwards; zero means the latest page.
func (s *ChatService) GetHistory(ctx context.Context, viewerID, partnerID uint, limit int, beforeID uint) ([]models.Message, error) {
	if _, err := s.userRepo.GetByID(ctx, partnerID); err != nil {
		return nil, err
	}
	key := models.ConversationKey(viewerID, partnerID)
	return s.messageRepo.ListConversation(ctx, key, viewerID, limit, beforeID)
}

// MarkRead flips every unread inbound message in the conversation to read and
// clears the unread counter. Calling it with nothing unread is a no-op, so
// clients can fire it on every conversation open.
func (s *ChatService) MarkRead(ctx context.Context, readerID, partnerID uint) (int64, error) {
	key := models.ConversationKey(readerID, partnerID)
	rows, err := s.messageRepo.MarkRead(ctx, key, readerID)
	if err != nil {
		return 0, err
	}

	cache.Invalidate(ctx, cache.UnreadKey(readerID, key))

	if rows > 0 {
		s.publishConversation(ctx, key, "messages_read", map[string]interface{}{
			"conversation_key": key,
			"reader_id":        readerID,
		})
	}
	return rows, nil
}

// EditMessage rewrites the text of the sender's own message. Edits are only
// accepted inside the edit window, measured from the original send time.
func (s *ChatService) EditMessage(ctx context.Context, userID, messageID uint, text string) (*models.Message, error) {
	if text == "" {
		return nil, models.NewValidationError("Message text is required")
	}
	if len(text) > maxMessageTextLen {
		return nil, models.NewValidationError("Message text too long (max 10000 characters)")
	}

	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.FromID != userID {
		return nil, models.NewForbiddenError("You can only edit your own messages")
	}
	if message.IsDeleted {
		return nil, models.NewValidationError("Cannot edit a deleted message")
	}
	if message.Type != models.MessageTypeText {
		return nil, models.NewValidationError("Only text messages can be edited")
	}
	if time.Since(message.CreatedAt) > editWindow {
		return nil, models.NewValidationError("Messages can only be edited within 15 minutes of sending")
	}

	now := time.Now().UTC()
	if err := s.messageRepo.EditText(ctx, messageID, text, now); err != nil {
		return nil, err
	}

	message.Text = text
	message.EditedAt = &now

	s.publishConversation(ctx, message.ConversationKey, "message_edited", message)
	return message, nil
}

// DeleteForEveryone tombstones the sender's own message for both viewers. The
// row survives so the conversation shows a deletion marker in place.
func (s *ChatService) DeleteForEveryone(ctx context.Context, userID, messageID uint) (*models.Message, error) {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.FromID != userID {
		return nil, models.NewForbiddenError("You can only delete your own messages for everyone")
	}

	if err := s.messageRepo.Tombstone(ctx, messageID); err != nil {
		return nil, err
	}
	message.Redact()

	s.publishConversation(ctx, message.ConversationKey, "message_deleted", map[string]interface{}{
		"conversation_key": message.ConversationKey,
		"message_id":       message.ID,
		"text":             message.Text,
	})
	return message, nil
}

// DeleteForMe hides the message from the calling user only. Either party in
// the conversation may hide any message; the other side is unaffected.
func (s *ChatService) DeleteForMe(ctx context.Context, userID, messageID uint) error {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if message.FromID != userID && message.ToID != userID {
		return models.NewForbiddenError("You are not part of this conversation")
	}
	return s.messageRepo.Hide(ctx, messageID, userID)
}

// UnreadCount returns the unread counter for one conversation.
func (s *ChatService) UnreadCount(ctx context.Context, userID, partnerID uint) int64 {
	key := models.ConversationKey(userID, partnerID)
	return unreadCount(ctx, userID, key)
}

// ReportMessage files a moderation report, snapshotting the message text so
// the complaint stays reviewable even if the message is later deleted.
func (s *ChatService) ReportMessage(ctx context.Context, in ReportMessageInput) (*models.Report, error) {
	if in.Reason == "" {
		return nil, models.NewValidationError("A reason is required")
	}

	message, err := s.messageRepo.GetByID(ctx, in.MessageID)
	if err != nil {
		return nil, err
	}
	if message.FromID != in.ReporterID && message.ToID != in.ReporterID {
		return nil, models.NewForbiddenError("You are not part of this conversation")
	}
	if message.FromID == in.ReporterID {
		return nil, models.NewValidationError("You cannot report your own message")
	}

	report := &models.Report{
		ConversationKey: message.ConversationKey,
		MessageID:       message.ID,
		MessageText:     message.PreviewText(),
		ReportedID:      message.FromID,
		ReporterID:      in.ReporterID,
		Reason:          in.Reason,
		Status:          models.ReportStatusPending,
	}
	if err := s.reportRepo.Create(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *ChatService) publishConversation(ctx context.Context, key, eventType string, payload interface{}) {
	if s.events == nil {
		return
	}
	raw, err := json.Marshal(map[string]interface{}{
		"type":             eventType,
		"conversation_key": key,
		"payload":          payload,
	})
	if err != nil {
		return
	}
	_ = s.events.PublishChatMessage(ctx, key, string(raw))
}

func (s *ChatService) notifyUser(ctx context.Context, userID uint, eventType string, payload interface{}) {
	if s.events == nil {
		return
	}
	raw, err := json.Marshal(map[string]interface{}{
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		return
	}
	_ = s.events.PublishUser(ctx, userID, string(raw))
}

func (s *ChatService) incrementUnread(ctx context.Context, userID uint, key string) {
	rdb := cache.GetClient()
	if rdb == nil {
		return
	}
	unread := cache.UnreadKey(userID, key)
	if err := rdb.Incr(ctx, unread).Err(); err == nil {
		rdb.Expire(ctx, unread, 30*24*time.Hour)
	}
}

func unreadCount(ctx context.Context, userID uint, key string) int64 {
	rdb := cache.GetClient()
	if rdb == nil {
		return 0
	}
	val, err := rdb.Get(ctx, cache.UnreadKey(userID, key)).Result()
	if err != nil {
		return 0
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
