package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"sameem/internal/models"
)

// Event type constants prevent typos in event names.
const (
	EventMessageReceived        = "message_received"
	EventMessageEdited          = "message_edited"
	EventMessageDeleted         = "message_deleted"
	EventConversationRead       = "conversation_read"
	EventFriendRequestReceived  = "friend_request_received"
	EventFriendRequestSent      = "friend_request_sent"
	EventFriendRequestAccepted  = "friend_request_accepted"
	EventFriendAdded            = "friend_added"
	EventFriendRequestRejected  = "friend_request_rejected"
	EventFriendRequestCancelled = "friend_request_cancelled"
	EventFriendRemoved          = "friend_removed"
	EventFriendPresenceChanged  = "friend_presence_changed"
	EventGameInvitation         = "game_invitation"
	EventGameStarted            = "game_started"
	EventGameMove               = "game_move"
	EventGameEnded              = "game_ended"
	EventIncomingCall           = "incoming_call"
	EventCallEnded              = "call_ended"
	EventUserBlocked            = "user_blocked"
	EventAccountSuspended       = "account_suspended"
	EventAccountRenamed         = "account_renamed"
	EventForceDisconnect        = "force_disconnect"
)

func (s *Server) publishUserEvent(userID uint, eventType string, payload map[string]interface{}) {
	event := map[string]interface{}{
		"type":    eventType,
		"payload": payload,
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal %s event: %v", eventType, err)
		return
	}
	message := string(eventJSON)
	if s.hub != nil {
		s.hub.Broadcast(userID, message)
	}
	if s.notifier != nil {
		if err := s.notifier.PublishUser(context.Background(), userID, message); err != nil {
			log.Printf("failed to publish %s event to user %d: %v", eventType, userID, err)
		}
	}
}

func (s *Server) publishBroadcastEvent(eventType string, payload map[string]interface{}) {
	event := map[string]interface{}{
		"type":    eventType,
		"payload": payload,
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal %s event: %v", eventType, err)
		return
	}
	message := string(eventJSON)
	if s.hub != nil {
		s.hub.BroadcastAll(message)
	}
	if s.notifier != nil {
		if err := s.notifier.PublishBroadcast(context.Background(), message); err != nil {
			log.Printf("failed to publish %s broadcast event: %v", eventType, err)
		}
	}
}

// onUserOnline runs when a user's first connection registers with the hub.
// It fans a presence change out to the user's contacts only, never globally.
func (s *Server) onUserOnline(userID uint) {
	s.publishPresenceToFriends(userID, "online")
}

// onUserOffline runs after the offline grace period confirms the user's last
// connection is gone for good, not just a page reload.
func (s *Server) onUserOffline(userID uint) {
	s.publishPresenceToFriends(userID, "offline")
}

func (s *Server) publishPresenceToFriends(userID uint, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.notifier != nil {
		if err := s.notifier.PublishPresence(ctx, userID, status); err != nil {
			log.Printf("failed to publish presence for user %d: %v", userID, err)
		}
	}

	friends, err := s.friendRepo.GetFriends(ctx, userID)
	if err != nil {
		log.Printf("failed to load contacts for presence fan-out (user %d): %v", userID, err)
		return
	}
	payload := map[string]interface{}{
		"user_id": userID,
		"status":  status,
	}
	if status == "offline" {
		payload["last_seen"] = time.Now().UTC().Format(time.RFC3339)
	}
	for _, friend := range friends {
		s.publishUserEvent(friend.ID, EventFriendPresenceChanged, payload)
	}
}

func userSummary(user models.User) map[string]interface{} {
	return map[string]interface{}{
		"id":           user.ID,
		"username":     user.Username,
		"display_name": user.DisplayName,
		"avatar":       user.Avatar,
	}
}

func userSummaryPtr(user *models.User) map[string]interface{} {
	if user == nil {
		return nil
	}
	return userSummary(*user)
}
