package service

import (
	"context"
	"strings"

	"sameem/internal/models"
	"sameem/internal/repository"
)

// FriendService provides friend-request and contact-list business logic.
type FriendService struct {
	friendRepo  repository.FriendRepository
	userRepo    repository.UserRepository
	messageRepo repository.MessageRepository
	presence    Presence
}

// Contact is one entry in the user's contact list, enriched with the
// realtime and conversation state the client renders next to the name.
type Contact struct {
	User            models.User     `json:"user"`
	ConversationKey string          `json:"conversation_key"`
	Online          bool            `json:"online"`
	LastMessage     *models.Message `json:"last_message,omitempty"`
	UnreadCount     int64           `json:"unread_count"`
}

// NewFriendService returns a new FriendService.
func NewFriendService(
	friendRepo repository.FriendRepository,
	userRepo repository.UserRepository,
	messageRepo repository.MessageRepository,
	presence Presence,
) *FriendService {
	return &FriendService{
		friendRepo:  friendRepo,
		userRepo:    userRepo,
		messageRepo: messageRepo,
		presence:    presence,
	}
}

// SendFriendRequest sends a friend request addressed by username.
func (s *FriendService) SendFriendRequest(ctx context.Context, userID uint, targetUsername string) (*models.Friendship, error) {
	target, err := s.userRepo.GetByUsername(ctx, strings.ToLower(strings.TrimSpace(targetUsername)))
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, models.NewNotFoundError("User", targetUsername)
	}
	if target.ID == userID {
		return nil, models.NewValidationError("Cannot send a friend request to yourself")
	}

	blocked, err := s.userRepo.IsBlockedEitherWay(ctx, userID, target.ID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, models.NewForbiddenError("Cannot send a friend request to this user")
	}

	existing, err := s.friendRepo.GetBetweenUsers(ctx, userID, target.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case models.FriendshipStatusAccepted:
			return nil, models.NewValidationError("You are already contacts")
		case models.FriendshipStatusPending:
			if existing.RequesterID == userID {
				return nil, models.NewValidationError("Friend request already sent")
			}
			return nil, models.NewValidationError("You already have a pending friend request from this user")
		}
	}

	friendship := &models.Friendship{
		RequesterID: userID,
		AddresseeID: target.ID,
		Status:      models.FriendshipStatusPending,
	}
	if err := s.friendRepo.Create(ctx, friendship); err != nil {
		return nil, err
	}

	return s.friendRepo.GetByID(ctx, friendship.ID)
}

// GetPendingRequests returns pending friend requests addressed to the user.
func (s *FriendService) GetPendingRequests(ctx context.Context, userID uint) ([]models.Friendship, error) {
	return s.friendRepo.GetPendingRequests(ctx, userID)
}

// GetSentRequests returns pending friend requests sent by the user.
func (s *FriendService) GetSentRequests(ctx context.Context, userID uint) ([]models.Friendship, error) {
	return s.friendRepo.GetSentRequests(ctx, userID)
}

// AcceptFriendRequest accepts a pending friend request. Acceptance is a
// single status flip, so both users gain the contact edge at once.
func (s *FriendService) AcceptFriendRequest(ctx context.Context, userID, requestID uint) (*models.Friendship, error) {
	friendship, err := s.friendRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if friendship.AddresseeID != userID {
		return nil, models.NewUnauthorizedError("You can only accept friend requests sent to you")
	}
	if friendship.Status != models.FriendshipStatusPending {
		return nil, models.NewValidationError("Friend request is not pending")
	}

	if err := s.friendRepo.UpdateStatus(ctx, requestID, models.FriendshipStatusAccepted); err != nil {
		return nil, err
	}

	return s.friendRepo.GetByID(ctx, requestID)
}

// RejectFriendRequest rejects or cancels a pending friend request.
func (s *FriendService) RejectFriendRequest(ctx context.Context, userID, requestID uint) (*models.Friendship, error) {
	friendship, err := s.friendRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if friendship.AddresseeID != userID && friendship.RequesterID != userID {
		return nil, models.NewUnauthorizedError("You can only reject or cancel your own pending requests")
	}
	if friendship.Status != models.FriendshipStatusPending {
		return nil, models.NewValidationError("Friend request is not pending")
	}

	if err := s.friendRepo.Delete(ctx, requestID); err != nil {
		return nil, err
	}

	return friendship, nil
}

// RemoveFriend removes an accepted friendship between two users.
func (s *FriendService) RemoveFriend(ctx context.Context, userID, targetUserID uint) (*models.Friendship, error) {
	friendship, err := s.friendRepo.GetBetweenUsers(ctx, userID, targetUserID)
	if err != nil {
		return nil, err
	}
	if friendship == nil || friendship.Status != models.FriendshipStatusAccepted {
		return nil, models.NewNotFoundError("Friendship", targetUserID)
	}

	if err := s.friendRepo.RemoveBetweenUsers(ctx, userID, targetUserID); err != nil {
		return nil, err
	}
	return friendship, nil
}

// GetContacts returns the user's accepted contacts, each carrying their
// presence, the latest visible message, and the unread counter.
func (s *FriendService) GetContacts(ctx context.Context, userID uint) ([]Contact, error) {
	friends, err := s.friendRepo.GetFriends(ctx, userID)
	if err != nil {
		return nil, err
	}

	contacts := make([]Contact, 0, len(friends))
	for _, friend := range friends {
		key := models.ConversationKey(userID, friend.ID)
		contact := Contact{
			User:            friend,
			ConversationKey: key,
			UnreadCount:     unreadCount(ctx, userID, key),
		}
		if s.presence != nil {
			contact.Online = s.presence.IsOnline(friend.ID)
		}
		if last, err := s.messageRepo.LatestVisible(ctx, key, userID); err == nil {
			contact.LastMessage = last
		}
		contacts = append(contacts, contact)
	}
	return contacts, nil
}
