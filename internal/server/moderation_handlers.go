package server

import (
	"sameem/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetFeatureFlags handles GET /api/admin/feature-flags. The raw map shows
// the configured rollout expressions; the snapshot shows how they evaluate
// for the requesting admin.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	return c.JSON(fiber.Map{
		"flags":    s.featureFlags.Raw(),
		"snapshot": s.featureFlags.Snapshot(userID),
	})
}

// GetAdminStats handles GET /api/admin/stats?signup_days=N
func (s *Server) GetAdminStats(c *fiber.Ctx) error {
	signupDays := c.QueryInt("signup_days", 7)

	stats, err := s.moderationService.Stats(c.Context(), signupDays)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(stats)
}

// GetReports handles GET /api/admin/reports?status=pending|dismissed|action_taken
func (s *Server) GetReports(c *fiber.Ctx) error {
	page := parsePagination(c, 50)
	status := c.Query("status")

	reports, err := s.moderationService.ListReports(c.Context(), status, page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	if reports == nil {
		reports = []models.Report{}
	}

	return c.JSON(reports)
}

// GetReport handles GET /api/admin/reports/:id
func (s *Server) GetReport(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	report, err := s.moderationService.GetReport(c.Context(), id)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(report)
}

// ResolveReport handles POST /api/admin/reports/:id/resolve
func (s *Server) ResolveReport(c *fiber.Ctx) error {
	adminID := c.Locals("userID").(uint)
	reportID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Outcome string `json:"outcome"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	report, err := s.moderationService.ResolveReport(c.Context(), adminID, reportID, req.Outcome)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(report)
}

// AdminDeleteConversation handles DELETE /api/admin/conversations/:userA/:userB
func (s *Server) AdminDeleteConversation(c *fiber.Ctx) error {
	adminID := c.Locals("userID").(uint)
	userA, err := s.parseID(c, "userA")
	if err != nil {
		return nil
	}
	userB, err := s.parseID(c, "userB")
	if err != nil {
		return nil
	}

	if err := s.moderationService.DeleteConversation(c.Context(), adminID, userA, userB); err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(fiber.Map{"message": "Conversation deleted"})
}

// SetUserAdmin handles POST /api/admin/users/:id/admin
func (s *Server) SetUserAdmin(c *fiber.Ctx) error {
	adminID := c.Locals("userID").(uint)
	targetID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		IsAdmin bool `json:"is_admin"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	target, err := s.userService.SetAdmin(c.Context(), adminID, targetID, req.IsAdmin)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(fiber.Map{"message": "Admin status updated", "user": target})
}

// SetUserSuspended handles POST /api/admin/users/:id/suspend. Suspension
// kicks the user's live connections so the account goes dark immediately.
func (s *Server) SetUserSuspended(c *fiber.Ctx) error {
	adminID := c.Locals("userID").(uint)
	targetID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Suspended bool `json:"suspended"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	target, err := s.userService.SetSuspended(c.Context(), adminID, targetID, req.Suspended)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	if req.Suspended {
		s.publishUserEvent(targetID, EventAccountSuspended, map[string]interface{}{
			"user_id": targetID,
		})
		s.publishUserEvent(targetID, EventForceDisconnect, map[string]interface{}{
			"reason": "suspended",
		})
	}

	return c.JSON(fiber.Map{"message": "Suspension status updated", "user": target})
}

// AdminRenameUser handles PUT /api/admin/users/:id/username
func (s *Server) AdminRenameUser(c *fiber.Ctx) error {
	targetID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Username string `json:"username"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	target, err := s.userService.Rename(c.Context(), targetID, req.Username)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	s.publishUserEvent(targetID, EventAccountRenamed, map[string]interface{}{
		"user_id":  targetID,
		"username": target.Username,
	})

	return c.JSON(target)
}

// AdminDeleteUser handles DELETE /api/admin/users/:id
func (s *Server) AdminDeleteUser(c *fiber.Ctx) error {
	adminID := c.Locals("userID").(uint)
	targetID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if adminID == targetID {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("You cannot delete your own account from the admin panel"))
	}

	if err := s.userService.DeleteUser(c.Context(), targetID); err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	s.publishUserEvent(targetID, EventForceDisconnect, map[string]interface{}{
		"reason": "account_deleted",
	})

	return c.JSON(fiber.Map{"message": "User deleted"})
}
