package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"sameem/internal/cache"
	"sameem/internal/models"
	"sameem/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CallService owns the durable side of calling: the callee's signaling inbox
// and per-call ICE lists in Redis, plus the call history rows in Postgres.
// The realtime relay between two connected ends lives in the signaling hub.
type CallService struct {
	callLogRepo repository.CallLogRepository
	userRepo    repository.UserRepository
}

// StartCallInput is the input for placing a call.
type StartCallInput struct {
	CallerID uint
	CalleeID uint
	Type     string
	Offer    json.RawMessage
}

// NewCallService returns a new CallService.
func NewCallService(callLogRepo repository.CallLogRepository, userRepo repository.UserRepository) *CallService {
	return &CallService{
		callLogRepo: callLogRepo,
		userRepo:    userRepo,
	}
}

// StartCall creates the call session under the callee's inbox and writes the
// caller's outgoing history row. The callee's incoming row is written when
// they accept, so an unanswered call never shows up in their history.
func (s *CallService) StartCall(ctx context.Context, in StartCallInput) (*models.CallSession, error) {
	if in.Type != models.CallTypeVideo && in.Type != models.CallTypeVoice {
		return nil, models.NewValidationError("Call type must be video or voice")
	}
	if in.CallerID == in.CalleeID {
		return nil, models.NewValidationError("Cannot call yourself")
	}

	caller, err := s.userRepo.GetByID(ctx, in.CallerID)
	if err != nil {
		return nil, err
	}
	callee, err := s.userRepo.GetByID(ctx, in.CalleeID)
	if err != nil {
		return nil, err
	}

	blocked, err := s.userRepo.IsBlockedEitherWay(ctx, in.CallerID, in.CalleeID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, models.NewForbiddenError("Calling is blocked between these users")
	}

	session := &models.CallSession{
		ID:           uuid.NewString(),
		Type:         in.Type,
		FromID:       in.CallerID,
		FromUsername: caller.Username,
		Offer:        in.Offer,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.storeSession(ctx, in.CalleeID, session); err != nil {
		return nil, err
	}

	if err := s.callLogRepo.Create(ctx, &models.CallLog{
		UserID:          in.CallerID,
		PartnerID:       in.CalleeID,
		PartnerUsername: callee.Username,
		Type:            in.Type,
		Direction:       models.CallDirectionOutgoing,
	}); err != nil {
		return nil, err
	}

	return session, nil
}

// PendingCalls returns the sessions ringing in the user's inbox.
func (s *CallService) PendingCalls(ctx context.Context, userID uint) ([]models.CallSession, error) {
	rdb := cache.GetClient()
	if rdb == nil {
		return nil, nil
	}

	entries, err := rdb.HGetAll(ctx, cache.CallInboxKey(userID)).Result()
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	sessions := make([]models.CallSession, 0, len(entries))
	for _, raw := range entries {
		var session models.CallSession
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// AnswerCall records the callee's SDP answer on the session and writes the
// callee's incoming history row. The answer is written once; answering an
// unknown or already-answered call fails.
func (s *CallService) AnswerCall(ctx context.Context, calleeID uint, callID string, answer json.RawMessage) (*models.CallSession, error) {
	session, err := s.loadSession(ctx, calleeID, callID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, models.NewNotFoundError("Call", callID)
	}
	if len(session.Answer) != 0 {
		return nil, models.NewConflictError("Call has already been answered")
	}

	session.Answer = answer
	if err := s.storeSession(ctx, calleeID, session); err != nil {
		return nil, err
	}

	if err := s.callLogRepo.Create(ctx, &models.CallLog{
		UserID:          calleeID,
		PartnerID:       session.FromID,
		PartnerUsername: session.FromUsername,
		Type:            session.Type,
		Direction:       models.CallDirectionIncoming,
	}); err != nil {
		return nil, err
	}
	return session, nil
}

// AppendCandidate pushes an ICE candidate onto the call's per-role list.
// Each end appends only to its own list and reads the other end's.
func (s *CallService) AppendCandidate(ctx context.Context, callID, role string, candidate json.RawMessage) error {
	if role != models.CallRoleCaller && role != models.CallRoleCallee {
		return models.NewValidationError("Role must be caller or callee")
	}
	rdb := cache.GetClient()
	if rdb == nil {
		return nil
	}

	key := cache.CallICEKey(callID, role)
	if err := rdb.RPush(ctx, key, string(candidate)).Err(); err != nil {
		return models.NewInternalError(err)
	}
	rdb.Expire(ctx, key, cache.CallTTL)
	return nil
}

// Candidates returns the candidates accumulated by the given role, in
// arrival order.
func (s *CallService) Candidates(ctx context.Context, callID, role string) ([]json.RawMessage, error) {
	if role != models.CallRoleCaller && role != models.CallRoleCallee {
		return nil, models.NewValidationError("Role must be caller or callee")
	}
	rdb := cache.GetClient()
	if rdb == nil {
		return nil, nil
	}

	raw, err := rdb.LRange(ctx, cache.CallICEKey(callID, role), 0, -1).Result()
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	out := make([]json.RawMessage, 0, len(raw))
	for _, item := range raw {
		out = append(out, json.RawMessage(item))
	}
	return out, nil
}

// EndCall tears down the session and its ICE lists, and patches the duration
// onto both sides' most recent open history row. Whichever side hangs up
// first wins; the second teardown finds nothing left and is a no-op.
func (s *CallService) EndCall(ctx context.Context, callerID, calleeID uint, callID string, durationSeconds *int) error {
	if rdb := cache.GetClient(); rdb != nil {
		rdb.HDel(ctx, cache.CallInboxKey(calleeID), callID)
		rdb.Del(ctx,
			cache.CallICEKey(callID, models.CallRoleCaller),
			cache.CallICEKey(callID, models.CallRoleCallee),
		)
	}

	if durationSeconds == nil {
		return nil
	}
	if err := s.callLogRepo.PatchDuration(ctx, callerID, calleeID, *durationSeconds); err != nil {
		return err
	}
	return s.callLogRepo.PatchDuration(ctx, calleeID, callerID, *durationSeconds)
}

// History returns the user's call history, newest first.
func (s *CallService) History(ctx context.Context, userID uint, limit int) ([]models.CallLog, error) {
	return s.callLogRepo.List(ctx, userID, limit)
}

// ClearHistory deletes the user's call history rows.
func (s *CallService) ClearHistory(ctx context.Context, userID uint) error {
	return s.callLogRepo.DeleteForUser(ctx, userID)
}

func (s *CallService) loadSession(ctx context.Context, calleeID uint, callID string) (*models.CallSession, error) {
	rdb := cache.GetClient()
	if rdb == nil {
		return nil, nil
	}

	raw, err := rdb.HGet(ctx, cache.CallInboxKey(calleeID), callID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	var session models.CallSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, models.NewInternalError(err)
	}
	return &session, nil
}

func (s *CallService) storeSession(ctx context.Context, calleeID uint, session *models.CallSession) error {
	rdb := cache.GetClient()
	if rdb == nil {
		return nil
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return models.NewInternalError(err)
	}
	key := cache.CallInboxKey(calleeID)
	if err := rdb.HSet(ctx, key, session.ID, raw).Err(); err != nil {
		return models.NewInternalError(err)
	}
	rdb.Expire(ctx, key, cache.CallTTL)
	return nil
}
