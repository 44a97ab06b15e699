package server

import (
	"sameem/internal/models"

	"github.com/gofiber/fiber/v2"
)

// InviteToGame handles POST /api/games/invitations. The invitation rides the
// conversation as a message, so it shows up in chat history like any other.
func (s *Server) InviteToGame(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req struct {
		UserID uint `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.UserID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Opponent user ID is required"))
	}

	invitation, err := s.gameService.Invite(c.Context(), userID, req.UserID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	s.publishUserEvent(req.UserID, EventGameInvitation, map[string]interface{}{
		"message_id": invitation.ID,
		"from_id":    userID,
	})

	return c.Status(fiber.StatusCreated).JSON(invitation)
}

// AcceptGameInvitation handles POST /api/games/invitations/:messageId/accept
func (s *Server) AcceptGameInvitation(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	messageID, err := s.parseID(c, "messageId")
	if err != nil {
		return nil
	}

	game, err := s.gameService.Accept(c.Context(), userID, messageID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(game)
}

// DeclineGameInvitation handles POST /api/games/invitations/:messageId/decline
func (s *Server) DeclineGameInvitation(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	messageID, err := s.parseID(c, "messageId")
	if err != nil {
		return nil
	}

	if err := s.gameService.Decline(c.Context(), userID, messageID); err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(fiber.Map{"message": "Invitation declined"})
}

// GetGameState handles GET /api/games/:userId
func (s *Server) GetGameState(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	partnerID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	game, err := s.gameService.State(c.Context(), userID, partnerID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(game)
}

// MakeGameMove handles POST /api/games/:userId/moves
func (s *Server) MakeGameMove(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	partnerID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	var req struct {
		Cell *int `json:"cell"`
	}
	if err := c.BodyParser(&req); err != nil || req.Cell == nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Cell index is required"))
	}

	game, err := s.gameService.Move(c.Context(), userID, partnerID, *req.Cell)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(game)
}

// ForfeitGame handles POST /api/games/:userId/forfeit
func (s *Server) ForfeitGame(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	partnerID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	game, err := s.gameService.Forfeit(c.Context(), userID, partnerID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(game)
}
