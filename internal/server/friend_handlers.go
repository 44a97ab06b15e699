// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"sameem/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SendFriendRequest handles POST /api/friends/requests. The target is
// addressed by username so clients never need to leak numeric IDs in the UI.
func (s *Server) SendFriendRequest(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)

	var req struct {
		Username string `json:"username"`
	}
	if err := c.BodyParser(&req); err != nil || req.Username == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Username is required"))
	}

	friendship, err := s.friendService.SendFriendRequest(ctx, userID, req.Username)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	s.publishUserEvent(friendship.AddresseeID, EventFriendRequestReceived, map[string]interface{}{
		"request_id": friendship.ID,
		"requester":  userSummary(friendship.Requester),
	})
	s.publishUserEvent(userID, EventFriendRequestSent, map[string]interface{}{
		"request_id": friendship.ID,
		"addressee":  userSummary(friendship.Addressee),
	})

	return c.Status(fiber.StatusCreated).JSON(friendship)
}

// GetPendingRequests handles GET /api/friends/requests
func (s *Server) GetPendingRequests(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	requests, err := s.friendService.GetPendingRequests(c.Context(), userID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	if requests == nil {
		requests = []models.Friendship{}
	}

	return c.JSON(requests)
}

// GetSentRequests handles GET /api/friends/requests/sent
func (s *Server) GetSentRequests(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	requests, err := s.friendService.GetSentRequests(c.Context(), userID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	if requests == nil {
		requests = []models.Friendship{}
	}

	return c.JSON(requests)
}

// AcceptFriendRequest handles POST /api/friends/requests/:requestId/accept
func (s *Server) AcceptFriendRequest(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	requestID, err := s.parseID(c, "requestId")
	if err != nil {
		return nil
	}

	friendship, err := s.friendService.AcceptFriendRequest(ctx, userID, requestID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	// Both sides gain the contact edge at once.
	s.publishUserEvent(friendship.RequesterID, EventFriendRequestAccepted, map[string]interface{}{
		"request_id": friendship.ID,
		"friend":     userSummary(friendship.Addressee),
	})
	s.publishUserEvent(friendship.AddresseeID, EventFriendAdded, map[string]interface{}{
		"request_id": friendship.ID,
		"friend":     userSummary(friendship.Requester),
	})

	return c.JSON(friendship)
}

// RejectFriendRequest handles POST /api/friends/requests/:requestId/reject.
// The requester may hit this too, which cancels their own pending request.
func (s *Server) RejectFriendRequest(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	requestID, err := s.parseID(c, "requestId")
	if err != nil {
		return nil
	}

	friendship, err := s.friendService.RejectFriendRequest(ctx, userID, requestID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	if userID == friendship.AddresseeID {
		s.publishUserEvent(friendship.RequesterID, EventFriendRequestRejected, map[string]interface{}{
			"request_id": friendship.ID,
		})
	} else {
		s.publishUserEvent(friendship.AddresseeID, EventFriendRequestCancelled, map[string]interface{}{
			"request_id": friendship.ID,
		})
	}

	return c.JSON(fiber.Map{"message": "Friend request removed"})
}

// RemoveFriend handles DELETE /api/friends/:userId
func (s *Server) RemoveFriend(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	targetUserID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	if _, err := s.friendService.RemoveFriend(ctx, userID, targetUserID); err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	s.publishUserEvent(targetUserID, EventFriendRemoved, map[string]interface{}{
		"user_id": userID,
	})

	return c.JSON(fiber.Map{"message": "Contact removed"})
}

// GetContacts handles GET /api/friends
func (s *Server) GetContacts(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	contacts, err := s.friendService.GetContacts(c.Context(), userID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(contacts)
}
