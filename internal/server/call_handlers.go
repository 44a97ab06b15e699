package server

import (
	"encoding/json"

	"sameem/internal/models"
	"sameem/internal/observability"
	"sameem/internal/service"

	"github.com/gofiber/fiber/v2"
)

// StartCall handles POST /api/calls. It stores the offer in the callee's
// inbox and rings them over the realtime channel; the REST response carries
// the session so the caller can poll candidates by call id.
func (s *Server) StartCall(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	var req struct {
		UserID uint            `json:"user_id"`
		Type   string          `json:"type"`
		Offer  json.RawMessage `json:"offer"`
	}
	if err := c.BodyParser(&req); err != nil || req.UserID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Callee user ID is required"))
	}

	session, err := s.callService.StartCall(c.Context(), service.StartCallInput{
		CallerID: userID,
		CalleeID: req.UserID,
		Type:     req.Type,
		Offer:    req.Offer,
	})
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	observability.CallsTotal.WithLabelValues("started").Inc()

	s.publishUserEvent(req.UserID, EventIncomingCall, map[string]interface{}{
		"call_id":       session.ID,
		"type":          session.Type,
		"from_id":       session.FromID,
		"from_username": session.FromUsername,
	})

	return c.Status(fiber.StatusCreated).JSON(session)
}

// GetPendingCalls handles GET /api/calls/pending
func (s *Server) GetPendingCalls(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	sessions, err := s.callService.PendingCalls(c.Context(), userID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	if sessions == nil {
		sessions = []models.CallSession{}
	}

	return c.JSON(sessions)
}

// AnswerCall handles POST /api/calls/:callId/answer
func (s *Server) AnswerCall(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	callID := c.Params("callId")

	var req struct {
		Answer json.RawMessage `json:"answer"`
	}
	if err := c.BodyParser(&req); err != nil || len(req.Answer) == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Answer SDP is required"))
	}

	session, err := s.callService.AnswerCall(c.Context(), userID, callID, req.Answer)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	observability.CallsTotal.WithLabelValues("accepted").Inc()

	s.publishUserEvent(session.FromID, "call_answered", map[string]interface{}{
		"call_id": session.ID,
		"answer":  session.Answer,
	})

	return c.JSON(session)
}

// AppendCallCandidate handles POST /api/calls/:callId/candidates
func (s *Server) AppendCallCandidate(c *fiber.Ctx) error {
	callID := c.Params("callId")

	var req struct {
		Role      string          `json:"role"`
		Candidate json.RawMessage `json:"candidate"`
	}
	if err := c.BodyParser(&req); err != nil || len(req.Candidate) == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("ICE candidate is required"))
	}

	if err := s.callService.AppendCandidate(c.Context(), callID, req.Role, req.Candidate); err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Candidate stored"})
}

// GetCallCandidates handles GET /api/calls/:callId/candidates?role=caller|callee.
// Each side fetches the remote side's candidates in arrival order.
func (s *Server) GetCallCandidates(c *fiber.Ctx) error {
	callID := c.Params("callId")
	role := c.Query("role")

	candidates, err := s.callService.Candidates(c.Context(), callID, role)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	if candidates == nil {
		candidates = []json.RawMessage{}
	}

	return c.JSON(candidates)
}

// EndCall handles POST /api/calls/:callId/end. Either side may end; teardown
// is idempotent so a double hangup is harmless.
func (s *Server) EndCall(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	callID := c.Params("callId")

	var req struct {
		PeerID          uint   `json:"peer_id"`
		Role            string `json:"role"`
		DurationSeconds *int   `json:"duration_seconds"`
	}
	if err := c.BodyParser(&req); err != nil || req.PeerID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Peer user ID is required"))
	}

	callerID, calleeID := userID, req.PeerID
	if req.Role == models.CallRoleCallee {
		callerID, calleeID = req.PeerID, userID
	}

	if err := s.callService.EndCall(c.Context(), callerID, calleeID, callID, req.DurationSeconds); err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	observability.CallsTotal.WithLabelValues("ended").Inc()

	s.publishUserEvent(req.PeerID, EventCallEnded, map[string]interface{}{
		"call_id": callID,
		"by":      userID,
	})

	return c.JSON(fiber.Map{"message": "Call ended"})
}

// GetCallHistory handles GET /api/calls/history
func (s *Server) GetCallHistory(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	page := parsePagination(c, 50)

	logs, err := s.callService.History(c.Context(), userID, page.Limit)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	if logs == nil {
		logs = []models.CallLog{}
	}

	return c.JSON(logs)
}

// ClearCallHistory handles DELETE /api/calls/history
func (s *Server) ClearCallHistory(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	if err := s.callService.ClearHistory(c.Context(), userID); err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(fiber.Map{"message": "Call history cleared"})
}
