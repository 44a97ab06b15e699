package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"sameem/internal/cache"
	"sameem/internal/models"
	"sameem/internal/observability"
	"sameem/internal/repository"
)

// GameEvents publishes realtime game events across instances.
type GameEvents interface {
	PublishGameEvent(ctx context.Context, conversationKey string, payload string) error
	PublishChatMessage(ctx context.Context, conversationKey string, payload string) error
}

// GameService runs the in-chat tic-tac-toe flow: an invitation message, a
// shared game document in Redis while the game runs, and a result message
// posted into the conversation when it ends.
type GameService struct {
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	events      GameEvents

	// resultDelay is how long after a game ends the result message lands in
	// the conversation, leaving the final board on screen first.
	resultDelay time.Duration
}

// NewGameService returns a new GameService.
func NewGameService(
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	events GameEvents,
) *GameService {
	return &GameService{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		events:      events,
		resultDelay: 3 * time.Second,
	}
}

// SetResultDelay overrides the result-message delay. Tests use it.
func (s *GameService) SetResultDelay(d time.Duration) {
	s.resultDelay = d
}

// Invite posts a game invitation message into the conversation. Only one
// game per conversation can run at a time.
func (s *GameService) Invite(ctx context.Context, inviterID, inviteeID uint) (*models.Message, error) {
	if inviterID == inviteeID {
		return nil, models.NewValidationError("Cannot invite yourself to a game")
	}
	if _, err := s.userRepo.GetByID(ctx, inviteeID); err != nil {
		return nil, err
	}

	blocked, err := s.userRepo.IsBlockedEitherWay(ctx, inviterID, inviteeID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, models.NewForbiddenError("Cannot invite this user")
	}

	key := models.ConversationKey(inviterID, inviteeID)
	if game, _ := s.loadGame(ctx, key); game != nil && game.Status == models.GameStatusActive {
		return nil, models.NewConflictError("A game is already running in this conversation")
	}

	message := &models.Message{
		ConversationKey:  key,
		FromID:           inviterID,
		ToID:             inviteeID,
		Text:             "Game invitation",
		Status:           models.MessageStatusSent,
		Type:             models.MessageTypeGameInvitation,
		InvitationStatus: models.InvitationPending,
	}
	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	observability.MessagesTotal.WithLabelValues(message.Type, message.Status).Inc()
	s.publishChat(ctx, key, "message", message)
	return message, nil
}

// Accept accepts a pending invitation, creates the game document and
// announces the started game. The inviter plays X and moves first.
func (s *GameService) Accept(ctx context.Context, userID, messageID uint) (*models.TicTacToeState, error) {
	invitation, err := s.invitationFor(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	key := invitation.ConversationKey
	if game, _ := s.loadGame(ctx, key); game != nil && game.Status == models.GameStatusActive {
		return nil, models.NewConflictError("A game is already running in this conversation")
	}

	if err := s.messageRepo.UpdateInvitationStatus(ctx, messageID, models.InvitationAccepted); err != nil {
		return nil, err
	}

	game := models.NewTicTacToe(invitation.FromID, invitation.ToID)
	if err := s.saveGame(ctx, key, game); err != nil {
		return nil, err
	}

	s.publishGame(ctx, key, "game_started", game)
	return game, nil
}

// Decline declines a pending invitation.
func (s *GameService) Decline(ctx context.Context, userID, messageID uint) error {
	invitation, err := s.invitationFor(ctx, userID, messageID)
	if err != nil {
		return err
	}
	if err := s.messageRepo.UpdateInvitationStatus(ctx, messageID, models.InvitationDeclined); err != nil {
		return err
	}
	s.publishGame(ctx, invitation.ConversationKey, "game_declined", map[string]interface{}{
		"message_id": messageID,
		"user_id":    userID,
	})
	return nil
}

// State returns the current game document for the conversation, if any.
func (s *GameService) State(ctx context.Context, userID, partnerID uint) (*models.TicTacToeState, error) {
	key := models.ConversationKey(userID, partnerID)
	game, err := s.loadGame(ctx, key)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, models.NewNotFoundError("Game", key)
	}
	return game, nil
}

// Move places the player's symbol. A terminal move resolves the game, fans
// out the final board, and posts the delayed result message.
func (s *GameService) Move(ctx context.Context, userID, partnerID uint, cell int) (*models.TicTacToeState, error) {
	if cell < 0 || cell > 8 {
		return nil, models.NewValidationError("Cell must be between 0 and 8")
	}

	key := models.ConversationKey(userID, partnerID)
	game, err := s.loadGame(ctx, key)
	if err != nil {
		return nil, err
	}
	if game == nil || game.Status != models.GameStatusActive {
		return nil, models.NewNotFoundError("Game", key)
	}
	if game.Symbol(userID) == "" {
		return nil, models.NewForbiddenError("You are not a player in this game")
	}
	if game.Turn != userID {
		return nil, models.NewValidationError("It is not your turn")
	}
	if game.Board[cell] != "" {
		return nil, models.NewValidationError("Cell is already taken")
	}

	game.ApplyMove(userID, cell)
	observability.GameMovesTotal.Inc()

	if err := s.saveGame(ctx, key, game); err != nil {
		return nil, err
	}
	s.publishGame(ctx, key, "game_move", game)

	if game.Status != models.GameStatusActive {
		s.finishGame(ctx, key, game)
	}
	return game, nil
}

// Forfeit ends the game in the opponent's favor.
func (s *GameService) Forfeit(ctx context.Context, userID, partnerID uint) (*models.TicTacToeState, error) {
	key := models.ConversationKey(userID, partnerID)
	game, err := s.loadGame(ctx, key)
	if err != nil {
		return nil, err
	}
	if game == nil || game.Status != models.GameStatusActive {
		return nil, models.NewNotFoundError("Game", key)
	}
	if game.Symbol(userID) == "" {
		return nil, models.NewForbiddenError("You are not a player in this game")
	}

	game.Forfeit(userID)
	if err := s.saveGame(ctx, key, game); err != nil {
		return nil, err
	}

	s.publishGame(ctx, key, "game_forfeited", game)
	s.finishGame(ctx, key, game)
	return game, nil
}

// finishGame posts the result message after the result delay and then
// removes the game document. The terminal board stays readable for the
// whole display window, so a reader who missed the final move push can
// still fetch it.
func (s *GameService) finishGame(ctx context.Context, key string, game *models.TicTacToeState) {
	result := models.GameResult{Result: "draw"}
	var fromID, toID uint
	if game.Winner != 0 {
		result.Result = "win"
		if winner, err := s.userRepo.GetByID(ctx, game.Winner); err == nil {
			result.WinnerUsername = winner.Username
		}
		fromID = game.Winner
		toID = game.Opponent(game.Winner)
	} else {
		fromID = game.StartedBy
		toID = game.Opponent(game.StartedBy)
	}

	time.AfterFunc(s.resultDelay, func() {
		ctx := context.Background()

		// A rematch may have started during the display window; only a
		// still-finished document is removed.
		if current, _ := s.loadGame(ctx, key); current != nil && current.Status != models.GameStatusActive {
			cache.Invalidate(ctx, cache.GameKey(key))
		}

		message := &models.Message{
			ConversationKey: key,
			FromID:          fromID,
			ToID:            toID,
			Text:            "Game over",
			Status:          models.MessageStatusSent,
			Type:            models.MessageTypeGameResult,
		}
		if err := message.SetGameResult(result); err != nil {
			return
		}
		if err := s.messageRepo.Create(ctx, message); err != nil {
			slog.ErrorContext(ctx, "failed to post game result message",
				slog.String("conversation_key", key),
				slog.String("error", err.Error()),
			)
			return
		}
		observability.MessagesTotal.WithLabelValues(message.Type, message.Status).Inc()
		s.publishChat(ctx, key, "message", message)
	})
}

func (s *GameService) invitationFor(ctx context.Context, userID, messageID uint) (*models.Message, error) {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.Type != models.MessageTypeGameInvitation {
		return nil, models.NewValidationError("Message is not a game invitation")
	}
	if message.ToID != userID {
		return nil, models.NewForbiddenError("This invitation is not addressed to you")
	}
	if message.InvitationStatus != models.InvitationPending {
		return nil, models.NewValidationError("Invitation is no longer pending")
	}
	return message, nil
}

func (s *GameService) loadGame(ctx context.Context, key string) (*models.TicTacToeState, error) {
	var game models.TicTacToeState
	found, err := cache.GetJSON(ctx, cache.GameKey(key), &game)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if !found {
		return nil, nil
	}
	return &game, nil
}

func (s *GameService) saveGame(ctx context.Context, key string, game *models.TicTacToeState) error {
	if err := cache.SetJSON(ctx, cache.GameKey(key), game, cache.GameTTL); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *GameService) publishGame(ctx context.Context, key, eventType string, payload interface{}) {
	if s.events == nil {
		return
	}
	raw, err := json.Marshal(map[string]interface{}{
		"type":             eventType,
		"conversation_key": key,
		"payload":          payload,
	})
	if err != nil {
		return
	}
	_ = s.events.PublishGameEvent(ctx, key, string(raw))
}

func (s *GameService) publishChat(ctx context.Context, key, eventType string, payload interface{}) {
	if s.events == nil {
		return
	}
	raw, err := json.Marshal(map[string]interface{}{
		"type":             eventType,
		"conversation_key": key,
		"payload":          payload,
	})
	if err != nil {
		return
	}
	_ = s.events.PublishChatMessage(ctx, key, string(raw))
}
