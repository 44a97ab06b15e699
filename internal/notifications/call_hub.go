package notifications

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"sync"

	"sameem/internal/observability"

	"github.com/gofiber/websocket/v2"
)

// MaxActiveCalls prevents unbounded call-state growth.
const MaxActiveCalls = 1000

// CallSignal represents a signaling message relayed through the hub.
// The hub does NOT touch media. It only relays SDP offers/answers and ICE
// candidates between the two ends of a call.
type CallSignal struct {
	Type     string          `json:"type"` // "offer", "answer", "ice_candidate", "remote_description_set", "reject", "end", "incoming_call", "call_ended", "call_rejected", "error"
	CallID   string          `json:"call_id,omitempty"`
	CallType string          `json:"call_type,omitempty"` // "video" or "voice"
	UserID   uint            `json:"user_id,omitempty"`   // sender
	TargetID uint            `json:"target_id,omitempty"` // intended recipient
	Username string          `json:"username,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"` // SDP or ICE candidate data
}

// callPeer tracks a single user's signaling connection.
type callPeer struct {
	UserID   uint
	Username string
	Conn     *websocket.Conn
	writeMu  sync.Mutex // protects concurrent writes to Conn
}

// safeWrite sends a message to the peer with mutex protection
func (p *callPeer) safeWrite(msgType int, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.Conn.WriteMessage(msgType, data)
}

// callEnd tracks one direction of a call's ICE flow. Candidates bound for
// this end queue up until the end reports its remote description is set;
// then the queue drains once, in arrival order, and the gate stays open.
type callEnd struct {
	userID        uint
	remoteDescSet bool
	pending       []CallSignal
}

// callState is the hub-side record of an active call between two users.
type callState struct {
	id       string
	callType string
	caller   *callEnd
	callee   *callEnd
	ended    bool
}

func (c *callState) endFor(userID uint) *callEnd {
	switch userID {
	case c.caller.userID:
		return c.caller
	case c.callee.userID:
		return c.callee
	}
	return nil
}

func (c *callState) otherEnd(userID uint) *callEnd {
	switch userID {
	case c.caller.userID:
		return c.callee
	case c.callee.userID:
		return c.caller
	}
	return nil
}

// CallHub manages signaling for 1:1 calls.
type CallHub struct {
	mu sync.RWMutex

	// peers maps userID -> signaling connection
	peers map[uint]*callPeer

	// calls maps callID -> state; userCalls maps userID -> active callID
	calls     map[string]*callState
	userCalls map[uint]string

	// deliver sends a signal to a user. Tests swap it out to capture
	// signals without a websocket connection.
	deliver func(userID uint, sig CallSignal)
}

func (h *CallHub) Name() string { return "call hub" }

// NewCallHub creates a new CallHub
func NewCallHub() *CallHub {
	h := &CallHub{
		peers:     make(map[uint]*callPeer),
		calls:     make(map[string]*callState),
		userCalls: make(map[uint]string),
	}
	h.deliver = h.deliverLocal
	return h
}

// Connect registers a user's signaling connection.
func (h *CallHub) Connect(userID uint, username string, conn *websocket.Conn) *callPeer {
	peer := &callPeer{UserID: userID, Username: username, Conn: conn}

	h.mu.Lock()
	h.peers[userID] = peer
	h.mu.Unlock()

	log.Printf("CallHub: User %d (%s) connected for signaling", userID, username)
	return peer
}

// Disconnect drops the user's signaling connection and ends any call they
// are part of.
func (h *CallHub) Disconnect(userID uint) {
	h.mu.Lock()
	delete(h.peers, userID)
	callID, inCall := h.userCalls[userID]
	h.mu.Unlock()

	if inCall {
		h.End(callID, userID)
	}
	log.Printf("CallHub: User %d disconnected from signaling", userID)
}

// InCall reports whether the user currently has an active call.
func (h *CallHub) InCall(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.userCalls[userID]
	return ok
}

// ActiveCallID returns the user's current call ID, if any.
func (h *CallHub) ActiveCallID(userID uint) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.userCalls[userID]
	return id, ok
}

// Participants returns both ends of an active call.
func (h *CallHub) Participants(callID string) (callerID, calleeID uint, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	call, found := h.calls[callID]
	if !found {
		return 0, 0, false
	}
	return call.caller.userID, call.callee.userID, true
}

// Offer registers a new call and delivers the SDP offer to the callee.
// Returns false when the call could not be placed (callee busy or limits hit);
// the caller receives the rejection signal either way.
func (h *CallHub) Offer(callID, callType string, callerID uint, callerUsername string, calleeID uint, offer json.RawMessage) bool {
	h.mu.Lock()

	if len(h.calls) >= MaxActiveCalls {
		h.mu.Unlock()
		h.sendTo(callerID, CallSignal{Type: "error", CallID: callID, Payload: json.RawMessage(`{"message":"too many active calls"}`)})
		return false
	}

	// Callee already in a call: auto-reject with busy.
	if _, busy := h.userCalls[calleeID]; busy {
		h.mu.Unlock()
		observability.CallsTotal.WithLabelValues("auto_rejected").Inc()
		h.sendTo(callerID, CallSignal{Type: "call_rejected", CallID: callID, UserID: calleeID, Payload: json.RawMessage(`{"reason":"busy"}`)})
		return false
	}

	h.calls[callID] = &callState{
		id:       callID,
		callType: callType,
		caller:   &callEnd{userID: callerID},
		callee:   &callEnd{userID: calleeID},
	}
	h.userCalls[callerID] = callID
	h.userCalls[calleeID] = callID
	h.mu.Unlock()

	observability.CallSignalsTotal.WithLabelValues("offer").Inc()
	h.sendTo(calleeID, CallSignal{
		Type:     "incoming_call",
		CallID:   callID,
		CallType: callType,
		UserID:   callerID,
		Username: callerUsername,
		Payload:  offer,
	})
	return true
}

// Answer relays the callee's SDP answer back to the caller.
func (h *CallHub) Answer(callID string, calleeID uint, answer json.RawMessage) {
	h.mu.RLock()
	call, ok := h.calls[callID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	other := call.otherEnd(calleeID)
	if other == nil {
		return
	}

	observability.CallSignalsTotal.WithLabelValues("answer").Inc()
	observability.CallsTotal.WithLabelValues("accepted").Inc()
	h.sendTo(other.userID, CallSignal{
		Type:    "answer",
		CallID:  callID,
		UserID:  calleeID,
		Payload: answer,
	})
}

// Reject tears the call down before it was answered and tells the caller.
func (h *CallHub) Reject(callID string, calleeID uint) {
	h.mu.Lock()
	call, ok := h.calls[callID]
	if !ok {
		h.mu.Unlock()
		return
	}
	other := call.otherEnd(calleeID)
	h.teardownLocked(call)
	h.mu.Unlock()

	observability.CallsTotal.WithLabelValues("rejected").Inc()
	if other != nil {
		h.sendTo(other.userID, CallSignal{
			Type:    "call_rejected",
			CallID:  callID,
			UserID:  calleeID,
			Payload: json.RawMessage(`{"reason":"declined"}`),
		})
	}
}

// Candidate routes an ICE candidate to the other end of the call. Candidates
// arriving before that end has its remote description queue up in FIFO order.
func (h *CallHub) Candidate(callID string, fromUserID uint, candidate json.RawMessage) {
	sig := CallSignal{
		Type:    "ice_candidate",
		CallID:  callID,
		UserID:  fromUserID,
		Payload: candidate,
	}

	h.mu.Lock()
	call, ok := h.calls[callID]
	if !ok || call.ended {
		h.mu.Unlock()
		return
	}
	target := call.otherEnd(fromUserID)
	if target == nil {
		h.mu.Unlock()
		return
	}
	if !target.remoteDescSet {
		target.pending = append(target.pending, sig)
		h.mu.Unlock()
		return
	}
	targetID := target.userID
	h.mu.Unlock()

	observability.CallSignalsTotal.WithLabelValues("ice_candidate").Inc()
	h.sendTo(targetID, sig)
}

// RemoteDescriptionSet opens the candidate gate for one end of the call and
// drains its queue exactly once, preserving arrival order. Repeat signals for
// an already-open gate find an empty queue and do nothing.
func (h *CallHub) RemoteDescriptionSet(callID string, userID uint) {
	h.mu.Lock()
	call, ok := h.calls[callID]
	if !ok || call.ended {
		h.mu.Unlock()
		return
	}
	end := call.endFor(userID)
	if end == nil {
		h.mu.Unlock()
		return
	}
	end.remoteDescSet = true
	queued := end.pending
	end.pending = nil
	h.mu.Unlock()

	for _, sig := range queued {
		observability.CallSignalsTotal.WithLabelValues("ice_candidate").Inc()
		h.sendTo(userID, sig)
	}
}

// End tears down the call. Either end may call it, and both often do when a
// call finishes; the second invocation finds nothing and returns.
func (h *CallHub) End(callID string, byUserID uint) {
	h.mu.Lock()
	call, ok := h.calls[callID]
	if !ok {
		h.mu.Unlock()
		return
	}
	other := call.otherEnd(byUserID)
	h.teardownLocked(call)
	h.mu.Unlock()

	observability.CallsTotal.WithLabelValues("ended").Inc()
	if other != nil {
		h.sendTo(other.userID, CallSignal{
			Type:   "call_ended",
			CallID: callID,
			UserID: byUserID,
		})
	}
}

// teardownLocked removes all state for a call. Caller holds h.mu.
func (h *CallHub) teardownLocked(call *callState) {
	call.ended = true
	delete(h.calls, call.id)
	if h.userCalls[call.caller.userID] == call.id {
		delete(h.userCalls, call.caller.userID)
	}
	if h.userCalls[call.callee.userID] == call.id {
		delete(h.userCalls, call.callee.userID)
	}
}

func (h *CallHub) sendTo(userID uint, sig CallSignal) {
	h.deliver(userID, sig)
}

// SendError delivers an error signal to the user's signaling connection.
func (h *CallHub) SendError(userID uint, callID, message string) {
	payload, _ := json.Marshal(map[string]string{"message": message})
	h.sendTo(userID, CallSignal{Type: "error", CallID: callID, Payload: payload})
}

// deliverLocal writes a signal to a locally connected peer. A user connected
// to another instance is reached through the Redis wiring instead.
func (h *CallHub) deliverLocal(userID uint, sig CallSignal) {
	h.mu.RLock()
	peer, ok := h.peers[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	msgJSON, err := json.Marshal(sig)
	if err != nil {
		return
	}
	if err := peer.safeWrite(websocket.TextMessage, msgJSON); err != nil {
		log.Printf("CallHub: Failed to deliver %s to user %d: %v", sig.Type, userID, err)
	}
}

// StartWiring connects CallHub to Redis pub/sub for multi-instance support.
func (h *CallHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartCallSubscriber(ctx, func(channel, payload string) {
		raw := strings.TrimPrefix(channel, "call:user:")
		id64, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return
		}

		var sig CallSignal
		if err := json.Unmarshal([]byte(payload), &sig); err != nil {
			return
		}
		h.sendTo(uint(id64), sig)
	})
}

// Shutdown gracefully closes all signaling connections.
func (h *CallHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	shutdownMsg, _ := json.Marshal(CallSignal{Type: "server_shutdown"})
	for _, peer := range h.peers {
		// Best-effort write, the connection may already be closed.
		_ = peer.safeWrite(websocket.TextMessage, shutdownMsg)
		_ = peer.Conn.Close()
	}

	h.peers = make(map[uint]*callPeer)
	h.calls = make(map[string]*callState)
	h.userCalls = make(map[uint]string)
	return nil
}
