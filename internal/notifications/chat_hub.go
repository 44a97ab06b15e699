package notifications

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"sameem/internal/observability"

	"github.com/gofiber/websocket/v2"
)

// ChatHub manages WebSocket connections for direct-message conversations.
// Unlike Hub (which is user-centric), ChatHub is conversation-centric: users
// join the conversation they are viewing and receive its events.
type ChatHub struct {
	mu sync.RWMutex

	// conversationKey -> set of userIDs viewing it
	conversations map[string]map[uint]struct{}

	// userID -> set of conversation keys they're actively viewing
	userActiveConvs map[uint]map[string]struct{}

	// userID -> set of active Clients (multi-device support)
	userConns map[uint]map[*Client]bool
}

// Name returns a human-readable identifier for this hub.
func (h *ChatHub) Name() string { return "chat hub" }

// ChatEvent is the wire format broadcast to conversation viewers.
type ChatEvent struct {
	Type            string      `json:"type"` // "message", "message_edited", "message_deleted", "typing", "read", "user_status", "connected_users", "game"
	ConversationKey string      `json:"conversation_key,omitempty"`
	UserID          uint        `json:"user_id,omitempty"`
	Username        string      `json:"username,omitempty"`
	Payload         interface{} `json:"payload"`
}

// NewChatHub creates a new ChatHub instance
func NewChatHub() *ChatHub {
	return &ChatHub{
		conversations:   make(map[string]map[uint]struct{}),
		userActiveConvs: make(map[uint]map[string]struct{}),
		userConns:       make(map[uint]map[*Client]bool),
	}
}

// Register registers a user's websocket connection. Returns Client or error if limits exceeded.
func (h *ChatHub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()

	if h.userConns[userID] == nil {
		h.userConns[userID] = make(map[*Client]bool)
	}

	if len(h.userConns[userID]) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, errUserConnLimit
	}

	client := NewClient(h, conn, userID)
	h.userConns[userID][client] = true

	onlineIDs := make([]uint, 0, len(h.userConns))
	for id := range h.userConns {
		if id != userID {
			onlineIDs = append(onlineIDs, id)
		}
	}
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Inc()
	log.Printf("ChatHub: Registered user %d (Active clients: %d)", userID, len(h.userConns[userID]))

	// Send initial snapshot of who is online.
	if len(onlineIDs) > 0 {
		snapshot := ChatEvent{
			Type:    "connected_users",
			Payload: map[string]interface{}{"user_ids": onlineIDs},
		}
		if jsonMsg, err := json.Marshal(snapshot); err == nil {
			client.TrySend(jsonMsg)
		}
	}

	h.BroadcastGlobalStatus(userID, "online")
	return client, nil
}

// addClient registers an already-constructed client. Used by tests that drive
// the hub without a real websocket connection.
func (h *ChatHub) addClient(client *Client) {
	h.mu.Lock()
	if h.userConns[client.UserID] == nil {
		h.userConns[client.UserID] = make(map[*Client]bool)
	}
	h.userConns[client.UserID][client] = true
	h.mu.Unlock()
	h.BroadcastGlobalStatus(client.UserID, "online")
}

// UnregisterClient removes a user's websocket connection and cleans up all their conversation subscriptions
func (h *ChatHub) UnregisterClient(client *Client) {
	h.mu.Lock()

	clients, ok := h.userConns[client.UserID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	observability.WebSocketConnectionsTotal.Dec()

	if len(clients) > 0 {
		// User still has other connections.
		h.mu.Unlock()
		log.Printf("ChatHub: Unregistered client for user %d (Remaining clients: %d)", client.UserID, len(clients))
		return
	}
	delete(h.userConns, client.UserID)

	// All connections gone: drop every conversation subscription.
	if convs, ok := h.userActiveConvs[client.UserID]; ok {
		for key := range convs {
			if users, ok := h.conversations[key]; ok {
				delete(users, client.UserID)
				if len(users) == 0 {
					delete(h.conversations, key)
				}
			}
		}
		delete(h.userActiveConvs, client.UserID)
	}

	h.mu.Unlock()

	log.Printf("ChatHub: Unregistered user %d (All connections closed)", client.UserID)
	h.BroadcastGlobalStatus(client.UserID, "offline")
}

// IsUserOnline returns true when the user has at least one active chat websocket client.
func (h *ChatHub) IsUserOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.userConns[userID]
	return ok && len(clients) > 0
}

// ConversationSubscription is the handle returned by JoinConversation. The
// caller owns it and must Leave when the view goes away. Leave is idempotent,
// so teardown paths that overlap (view switch racing a disconnect) are safe.
type ConversationSubscription struct {
	hub    *ChatHub
	userID uint
	key    string
	once   sync.Once
}

// Key returns the conversation key this subscription is bound to.
func (s *ConversationSubscription) Key() string { return s.key }

// Leave unsubscribes the user from the conversation. Safe to call repeatedly.
func (s *ConversationSubscription) Leave() {
	s.once.Do(func() {
		s.hub.leaveConversation(s.userID, s.key)
	})
}

// JoinConversation subscribes a user to a conversation's events and returns
// the handle used to leave it.
func (h *ChatHub) JoinConversation(userID uint, conversationKey string) *ConversationSubscription {
	h.mu.Lock()

	if h.conversations[conversationKey] == nil {
		h.conversations[conversationKey] = make(map[uint]struct{})
	}
	h.conversations[conversationKey][userID] = struct{}{}

	if h.userActiveConvs[userID] == nil {
		h.userActiveConvs[userID] = make(map[string]struct{})
	}
	h.userActiveConvs[userID][conversationKey] = struct{}{}

	h.mu.Unlock()

	log.Printf("ChatHub: User %d joined conversation %s", userID, conversationKey)
	return &ConversationSubscription{hub: h, userID: userID, key: conversationKey}
}

func (h *ChatHub) leaveConversation(userID uint, conversationKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if users, ok := h.conversations[conversationKey]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(h.conversations, conversationKey)
		}
	}
	if convs, ok := h.userActiveConvs[userID]; ok {
		delete(convs, conversationKey)
	}

	log.Printf("ChatHub: User %d left conversation %s", userID, conversationKey)
}

// BroadcastToConversation sends an event to all users viewing a conversation
func (h *ChatHub) BroadcastToConversation(conversationKey string, event ChatEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users, ok := h.conversations[conversationKey]
	if !ok {
		return
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("ChatHub: Failed to marshal event: %v", err)
		return
	}

	for userID := range users {
		if clients, ok := h.userConns[userID]; ok {
			for client := range clients {
				client.TrySend(eventJSON)
			}
		}
	}
}

// BroadcastToUser sends an event to every client of one user, regardless of
// which conversation they are viewing.
func (h *ChatHub) BroadcastToUser(userID uint, event ChatEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("ChatHub: Failed to marshal event: %v", err)
		return
	}
	if clients, ok := h.userConns[userID]; ok {
		for client := range clients {
			client.TrySend(eventJSON)
		}
	}
}

// BroadcastToAllUsers sends an event to every connected websocket client.
func (h *ChatHub) BroadcastToAllUsers(event ChatEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("ChatHub: Failed to marshal global event: %v", err)
		return
	}

	for _, clients := range h.userConns {
		for client := range clients {
			client.TrySend(eventJSON)
		}
	}
}

// GetActiveUsers returns the list of userIDs currently viewing a conversation
func (h *ChatHub) GetActiveUsers(conversationKey string) []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users, ok := h.conversations[conversationKey]
	if !ok {
		return []uint{}
	}

	result := make([]uint, 0, len(users))
	for userID := range users {
		result = append(result, userID)
	}
	return result
}

// IsUserActive checks if a user is currently viewing a conversation
func (h *ChatHub) IsUserActive(userID uint, conversationKey string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if convs, ok := h.userActiveConvs[userID]; ok {
		_, active := convs[conversationKey]
		return active
	}
	return false
}

// StartWiring connects the ChatHub to Redis pub/sub for conversation events.
func (h *ChatHub) StartWiring(ctx context.Context, n *Notifier) error {
	if err := n.StartChatSubscriber(ctx, func(channel, payload string) {
		var key string
		var msgType string

		switch {
		case strings.HasPrefix(channel, "chat:conv:"):
			key = strings.TrimPrefix(channel, "chat:conv:")
			msgType = "message"
		case strings.HasPrefix(channel, "typing:conv:"):
			key = strings.TrimPrefix(channel, "typing:conv:")
			msgType = "typing"
		case channel == "presence:events":
			var event ChatEvent
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				log.Printf("ChatHub: Failed to parse presence event: %v", err)
				return
			}
			event.Type = "user_status"
			h.BroadcastToAllUsers(event)
			return
		default:
			log.Printf("ChatHub: Invalid channel format: %s", channel)
			return
		}

		var event ChatEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Printf("ChatHub: Failed to parse event from channel %s: %v", channel, err)
			return
		}
		if event.Type == "" {
			event.Type = msgType
		}
		event.ConversationKey = key

		observability.RecordWebSocketEvent(event.Type)
		h.BroadcastToConversation(key, event)
	}); err != nil {
		return err
	}

	return n.StartGameSubscriber(ctx, func(channel, payload string) {
		key := strings.TrimPrefix(channel, "game:conv:")

		var event ChatEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Printf("ChatHub: Failed to parse game event from channel %s: %v", channel, err)
			return
		}
		if event.Type == "" {
			event.Type = "game"
		}
		event.ConversationKey = key

		observability.RecordWebSocketEvent("game")
		h.BroadcastToConversation(key, event)
	})
}

// BroadcastGlobalStatus sends a "user_status" event (online/offline) to ALL connected users
func (h *ChatHub) BroadcastGlobalStatus(userID uint, status string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	event := ChatEvent{
		Type:    "user_status",
		UserID:  userID,
		Payload: map[string]interface{}{"status": status, "user_id": userID},
	}

	jsonMsg, err := json.Marshal(event)
	if err != nil {
		log.Printf("ChatHub: Failed to marshal status event: %v", err)
		return
	}

	for id, clients := range h.userConns {
		if id == userID {
			continue
		}
		for client := range clients {
			client.TrySend(jsonMsg)
		}
	}
}

// Shutdown gracefully closes all websocket connections
func (h *ChatHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.userConns {
		for client := range clients {
			if err := client.Conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"server_shutdown","message":"Server is shutting down"}`)); err != nil {
				log.Printf("failed to write shutdown message for user %d: %v", userID, err)
			}
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket for user %d: %v", userID, err)
			}
		}
	}

	h.conversations = make(map[string]map[uint]struct{})
	h.userActiveConvs = make(map[uint]map[string]struct{})
	h.userConns = make(map[uint]map[*Client]bool)

	return nil
}
