// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"sameem/internal/middleware"
	"sameem/internal/models"
	"sameem/internal/notifications"
	"sameem/internal/observability"
	"sameem/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebsocketHandler handles the general notification socket. This connection
// is what makes a user "online": the hub registers it with the presence
// tracker, and the presence callbacks fan the change out to contacts.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		userIDVal := conn.Locals("userID")
		if userIDVal == nil {
			log.Printf("WebSocket: Unauthenticated connection attempt")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}
		userID := userIDVal.(uint)

		if s.hub == nil {
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			log.Printf("WebSocket: Failed to register user %d: %v", userID, err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		log.Printf("WebSocket: User %d connected to notifications", userID)

		// The notification socket is server-to-client; the only inbound
		// traffic the client sends is an application-level ping.
		client.IncomingHandler = func(c *notifications.Client, message []byte) {
			var incoming struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(message, &incoming); err != nil {
				return
			}
			if incoming.Type == "ping" {
				observability.RecordWebSocketEvent("ping")
				c.TrySend([]byte(`{"type":"pong"}`))
			}
		}

		go client.WritePump()
		client.ReadPump()

		s.consumeWSTicket(context.Background(), conn.Locals("wsTicket"))
	})
}

// WebSocketChatHandler handles WebSocket connections for real-time chat.
// Conversations are addressed by the DM partner's user id; the server derives
// the canonical conversation key, so a client can never subscribe to a
// conversation it is not part of.
func (s *Server) WebSocketChatHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		ctx := context.Background()

		userIDVal := conn.Locals("userID")
		if userIDVal == nil {
			log.Printf("WebSocket Chat: Unauthenticated connection attempt")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}
		userID := userIDVal.(uint)

		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			log.Printf("WebSocket Chat: Failed to get user %d: %v", userID, err)
			_ = conn.Close()
			return
		}
		username := user.Username

		log.Printf("WebSocket: User %d (%s) connected to chat", userID, username)

		if s.chatHub == nil {
			_ = conn.Close()
			return
		}

		client, err := s.chatHub.Register(userID, conn)
		if err != nil {
			log.Printf("WebSocket Chat: Failed to register user %d: %v", userID, err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		// Per-connection subscriptions so a dropped socket releases exactly
		// the conversations it joined.
		subs := make(map[string]*notifications.ConversationSubscription)

		client.IncomingHandler = func(c *notifications.Client, message []byte) {
			var incoming struct {
				Type      string `json:"type"`
				UserID    uint   `json:"user_id"` // the DM partner
				Text      string `json:"text"`
				ReplyToID uint   `json:"reply_to_id"`
			}
			if err := json.Unmarshal(message, &incoming); err != nil {
				log.Printf("WebSocket: Invalid message format from user %d", userID)
				return
			}
			if incoming.UserID == 0 || incoming.UserID == userID {
				return
			}
			key := models.ConversationKey(userID, incoming.UserID)
			observability.RecordWebSocketEvent(incoming.Type)

			switch incoming.Type {
			case "join":
				if _, joined := subs[key]; joined {
					return
				}
				subs[key] = s.chatHub.JoinConversation(userID, key)

				response := notifications.ChatEvent{
					Type:            "joined",
					ConversationKey: key,
					Payload:         map[string]interface{}{"conversation_key": key},
				}
				if responseJSON, err := json.Marshal(response); err == nil {
					c.TrySend(responseJSON)
				}

			case "leave":
				if sub, joined := subs[key]; joined {
					sub.Leave()
					delete(subs, key)
				}
				s.typing.Stop(ctx, key, userID, username)

			case "typing":
				// Each keystroke rearms the trailing-edge timer; rate limit so
				// a held-down key cannot flood Redis.
				id := fmt.Sprintf("user:%d", userID)
				allowed, _ := middleware.CheckRateLimit(ctx, s.redis, "typing", id, 10, 10*time.Second)
				if !allowed {
					return // Silently drop spammy typing indicators
				}
				s.typing.Keystroke(ctx, key, userID, username)

			case "typing_stop":
				s.typing.Stop(ctx, key, userID, username)

			case "message":
				if incoming.Text == "" {
					return
				}
				// Rate limit messages - same as HTTP (15 per minute)
				id := fmt.Sprintf("user:%d", userID)
				allowed, _ := middleware.CheckRateLimit(ctx, s.redis, "send_chat", id, 15, time.Minute)
				if !allowed {
					response := notifications.ChatEvent{
						Type: "error",
						Payload: map[string]string{
							"message": "Rate limit exceeded. Please wait a moment.",
						},
					}
					if respJSON, err := json.Marshal(response); err == nil {
						c.TrySend(respJSON)
					}
					return
				}

				// Sending clears the sender's typing indicator immediately.
				s.typing.Stop(ctx, key, userID, username)

				if _, serr := s.chatService.SendMessage(ctx, service.SendMessageInput{
					FromID:    userID,
					ToID:      incoming.UserID,
					Text:      incoming.Text,
					ReplyToID: incoming.ReplyToID,
				}); serr != nil {
					response := notifications.ChatEvent{
						Type:    "error",
						Payload: map[string]string{"message": serr.Error()},
					}
					if respJSON, err := json.Marshal(response); err == nil {
						c.TrySend(respJSON)
					}
				}

			case "read":
				if _, rerr := s.chatService.MarkRead(ctx, userID, incoming.UserID); rerr != nil {
					log.Printf("mark read error: %v", rerr)
				}
			}
		}

		// Send welcome message
		welcome := notifications.ChatEvent{
			Type:    "connected",
			Payload: map[string]interface{}{"user_id": userID, "username": username},
		}
		if welcomeJSON, err := json.Marshal(welcome); err == nil {
			client.TrySend(welcomeJSON)
		}

		// Start write pump in a goroutine
		go client.WritePump()

		// Read pump runs in the main handler goroutine (blocking)
		client.ReadPump()

		// Connection is gone: release its subscriptions and clear any typing
		// indicator still armed for this user.
		for _, sub := range subs {
			sub.Leave()
		}
		s.typing.StopAll(ctx, userID, username)
		s.consumeWSTicket(ctx, conn.Locals("wsTicket"))
	})
}
