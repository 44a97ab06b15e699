package server

import (
	"context"
	"encoding/json"
	"log"

	"sameem/internal/middleware"
	"sameem/internal/notifications"
	"sameem/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebSocketCallHandler handles the WebRTC signaling socket. The server never
// touches media; it relays SDP and ICE between the two ends of a call and
// keeps the per-call gating state in the CallHub.
func (s *Server) WebSocketCallHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		ctx := context.Background()

		userIDVal := conn.Locals("userID")
		if userIDVal == nil {
			log.Printf("WebSocket Call: Unauthenticated connection attempt")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}
		userID := userIDVal.(uint)

		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			log.Printf("WebSocket Call: Failed to get user %d: %v", userID, err)
			_ = conn.Close()
			return
		}
		username := user.Username

		if s.callHub == nil {
			_ = conn.Close()
			return
		}

		s.callHub.Connect(userID, username, conn)
		defer func() {
			// A dropped socket ends the user's call like an explicit hangup,
			// durable state included, so the peer doesn't keep ringing.
			if callID, ok := s.callHub.ActiveCallID(userID); ok {
				s.endCallDurable(ctx, callID)
			}
			s.callHub.Disconnect(userID)
		}()
		defer s.consumeWSTicket(ctx, conn.Locals("wsTicket"))

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				break
			}

			var sig notifications.CallSignal
			if err := json.Unmarshal(raw, &sig); err != nil {
				log.Printf("WebSocket Call: Invalid signal from user %d", userID)
				continue
			}

			switch sig.Type {
			case "offer":
				if sig.TargetID == 0 {
					s.callHub.SendError(userID, sig.CallID, "target user is required")
					continue
				}
				s.placeCall(ctx, userID, username, sig)

			case "answer":
				if sig.CallID == "" {
					continue
				}
				// Best-effort persistence; the inbox copy may already be gone
				// if the caller hung up while the answer was in flight.
				if _, aerr := s.callService.AnswerCall(ctx, userID, sig.CallID, sig.Payload); aerr != nil {
					log.Printf("WebSocket Call: answer persistence for call %s: %v", sig.CallID, aerr)
				}
				s.callHub.Answer(sig.CallID, userID, sig.Payload)

			case "reject":
				if sig.CallID == "" {
					continue
				}
				s.callHub.Reject(sig.CallID, userID)

			case "ice_candidate":
				if sig.CallID == "" || len(sig.Payload) == 0 {
					continue
				}
				s.callHub.Candidate(sig.CallID, userID, sig.Payload)

			case "remote_description_set":
				if sig.CallID == "" {
					continue
				}
				s.callHub.RemoteDescriptionSet(sig.CallID, userID)

			case "end":
				if sig.CallID == "" {
					continue
				}
				s.endCallDurable(ctx, sig.CallID)
				s.callHub.End(sig.CallID, userID)

			default:
				log.Printf("WebSocket Call: Unknown signal type %q from user %d", sig.Type, userID)
			}
		}
	})
}

// placeCall stores the durable call session and rings the callee. StartCall
// validates the pair (blocks, self-call), stores the offer in the callee's
// inbox and writes the caller's history row; the hub then rings the callee if
// they are connected here.
func (s *Server) placeCall(ctx context.Context, callerID uint, callerUsername string, sig notifications.CallSignal) {
	session, err := s.callService.StartCall(ctx, service.StartCallInput{
		CallerID: callerID,
		CalleeID: sig.TargetID,
		Type:     sig.CallType,
		Offer:    sig.Payload,
	})
	if err != nil {
		s.callHub.SendError(callerID, sig.CallID, err.Error())
		return
	}

	if !s.callHub.Offer(session.ID, session.Type, callerID, callerUsername, sig.TargetID, sig.Payload) {
		// Busy callee. The hub already sent the rejection to the caller;
		// back out the stored session so the call never surfaces in the
		// callee's inbox.
		if eerr := s.callService.EndCall(ctx, callerID, sig.TargetID, session.ID, nil); eerr != nil {
			log.Printf("WebSocket Call: failed to drop auto-rejected call %s: %v", session.ID, eerr)
		}
		return
	}

	// Ring the callee's notification socket too, so an incoming call
	// surfaces even without the signaling socket open.
	s.publishUserEvent(sig.TargetID, EventIncomingCall, map[string]interface{}{
		"call_id":       session.ID,
		"type":          session.Type,
		"from_id":       callerID,
		"from_username": callerUsername,
	})
}

// endCallDurable removes the Redis session and ICE lists for a call the hub
// is tearing down. EndCall is idempotent, so racing the peer's own hangup is
// harmless. Duration patching stays with the explicit hangup request.
func (s *Server) endCallDurable(ctx context.Context, callID string) {
	callerID, calleeID, ok := s.callHub.Participants(callID)
	if !ok {
		return
	}
	if err := s.callService.EndCall(ctx, callerID, calleeID, callID, nil); err != nil {
		log.Printf("WebSocket Call: teardown for call %s: %v", callID, err)
	}
}
