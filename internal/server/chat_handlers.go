// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"sameem/internal/models"
	"sameem/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetMessages handles GET /api/conversations/:userId/messages
// Query params: limit (default 50), before (message id for backward paging).
func (s *Server) GetMessages(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	partnerID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	limit := c.QueryInt("limit", 50)
	beforeID := uint(c.QueryInt("before", 0))

	messages, err := s.chatService.GetHistory(c.Context(), userID, partnerID, limit, beforeID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	if messages == nil {
		messages = []models.Message{}
	}

	return c.JSON(messages)
}

// SendMessage handles POST /api/conversations/:userId/messages
func (s *Server) SendMessage(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	partnerID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	var req struct {
		Text      string `json:"text"`
		ReplyToID uint   `json:"reply_to_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	message, err := s.chatService.SendMessage(c.Context(), service.SendMessageInput{
		FromID:    userID,
		ToID:      partnerID,
		Text:      req.Text,
		ReplyToID: req.ReplyToID,
	})
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.Status(fiber.StatusCreated).JSON(message)
}

// MarkConversationRead handles POST /api/conversations/:userId/read
func (s *Server) MarkConversationRead(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	partnerID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	updated, err := s.chatService.MarkRead(c.Context(), userID, partnerID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(fiber.Map{"updated": updated})
}

// GetUnreadCount handles GET /api/conversations/:userId/unread
func (s *Server) GetUnreadCount(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	partnerID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	count := s.chatService.UnreadCount(c.Context(), userID, partnerID)
	return c.JSON(fiber.Map{"unread": count})
}

// EditMessage handles PUT /api/messages/:id
func (s *Server) EditMessage(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	messageID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	message, err := s.chatService.EditMessage(c.Context(), userID, messageID, req.Text)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(message)
}

// DeleteMessage handles DELETE /api/messages/:id?mode=everyone|me
// "everyone" tombstones the message for both sides; "me" (the default)
// merely hides it from the caller's view.
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	messageID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	mode := c.Query("mode", "me")
	switch mode {
	case "everyone":
		message, err := s.chatService.DeleteForEveryone(c.Context(), userID, messageID)
		if err != nil {
			return models.RespondWithError(c, mapServiceError(err), err)
		}
		return c.JSON(message)
	case "me":
		if err := s.chatService.DeleteForMe(c.Context(), userID, messageID); err != nil {
			return models.RespondWithError(c, mapServiceError(err), err)
		}
		return c.JSON(fiber.Map{"message": "Message hidden"})
	default:
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid delete mode (expected 'everyone' or 'me')"))
	}
}

// ReportMessage handles POST /api/messages/:id/report
func (s *Server) ReportMessage(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	messageID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	report, err := s.chatService.ReportMessage(c.Context(), service.ReportMessageInput{
		ReporterID: userID,
		MessageID:  messageID,
		Reason:     req.Reason,
	})
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.Status(fiber.StatusCreated).JSON(report)
}
