package notifications

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedSignals struct {
	mu     sync.Mutex
	byUser map[uint][]CallSignal
}

func newCapturedSignals() *capturedSignals {
	return &capturedSignals{byUser: make(map[uint][]CallSignal)}
}

func (c *capturedSignals) deliver(userID uint, sig CallSignal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byUser[userID] = append(c.byUser[userID], sig)
}

func (c *capturedSignals) forUser(userID uint) []CallSignal {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CallSignal, len(c.byUser[userID]))
	copy(out, c.byUser[userID])
	return out
}

func (c *capturedSignals) ofType(userID uint, sigType string) []CallSignal {
	var out []CallSignal
	for _, s := range c.forUser(userID) {
		if s.Type == sigType {
			out = append(out, s)
		}
	}
	return out
}

func newTestCallHub() (*CallHub, *capturedSignals) {
	hub := NewCallHub()
	captured := newCapturedSignals()
	hub.deliver = captured.deliver
	return hub, captured
}

func TestCallHub_OfferDeliversIncomingCall(t *testing.T) {
	hub, captured := newTestCallHub()

	ok := hub.Offer("call-1", "video", 1, "alice", 2, json.RawMessage(`{"sdp":"offer"}`))
	require.True(t, ok)

	incoming := captured.ofType(2, "incoming_call")
	require.Len(t, incoming, 1)
	assert.Equal(t, uint(1), incoming[0].UserID)
	assert.Equal(t, "alice", incoming[0].Username)
	assert.Equal(t, "video", incoming[0].CallType)

	assert.True(t, hub.InCall(1))
	assert.True(t, hub.InCall(2))
}

func TestCallHub_BusyCalleeAutoRejected(t *testing.T) {
	hub, captured := newTestCallHub()

	require.True(t, hub.Offer("call-1", "video", 1, "alice", 2, nil))

	// A third user dials user 2, who is already on call-1.
	ok := hub.Offer("call-2", "voice", 3, "carol", 2, nil)
	assert.False(t, ok)

	rejected := captured.ofType(3, "call_rejected")
	require.Len(t, rejected, 1)
	assert.JSONEq(t, `{"reason":"busy"}`, string(rejected[0].Payload))

	// User 2 never saw the second call.
	assert.Empty(t, captured.ofType(2, "incoming_call")[1:])
	assert.False(t, hub.InCall(3))
}

func TestCallHub_CandidatesQueueUntilRemoteDescriptionThenFlushOnceInOrder(t *testing.T) {
	hub, captured := newTestCallHub()
	require.True(t, hub.Offer("call-1", "video", 1, "alice", 2, nil))

	// Callee answers; caller has not yet applied the answer, so candidates
	// from the callee must queue rather than reach the caller.
	for i := 0; i < 3; i++ {
		hub.Candidate("call-1", 2, json.RawMessage(fmt.Sprintf(`{"candidate":%d}`, i)))
	}
	assert.Empty(t, captured.ofType(1, "ice_candidate"))

	// Caller applies the remote description: the queue drains once, FIFO.
	hub.RemoteDescriptionSet("call-1", 1)
	flushed := captured.ofType(1, "ice_candidate")
	require.Len(t, flushed, 3)
	for i, sig := range flushed {
		assert.JSONEq(t, fmt.Sprintf(`{"candidate":%d}`, i), string(sig.Payload))
	}

	// A repeat signal must not replay anything.
	hub.RemoteDescriptionSet("call-1", 1)
	assert.Len(t, captured.ofType(1, "ice_candidate"), 3)

	// Later candidates pass straight through.
	hub.Candidate("call-1", 2, json.RawMessage(`{"candidate":99}`))
	assert.Len(t, captured.ofType(1, "ice_candidate"), 4)
}

func TestCallHub_EndIsIdempotent(t *testing.T) {
	hub, captured := newTestCallHub()
	require.True(t, hub.Offer("call-1", "video", 1, "alice", 2, nil))

	hub.End("call-1", 1)
	assert.False(t, hub.InCall(1))
	assert.False(t, hub.InCall(2))
	require.Len(t, captured.ofType(2, "call_ended"), 1)

	// Both ends racing to hang up: the second End finds nothing.
	hub.End("call-1", 2)
	assert.Len(t, captured.ofType(1, "call_ended"), 0)
	assert.Len(t, captured.ofType(2, "call_ended"), 1)

	// Candidates for a dead call go nowhere.
	hub.Candidate("call-1", 1, json.RawMessage(`{"candidate":0}`))
	assert.Empty(t, captured.ofType(2, "ice_candidate"))
}

func TestCallHub_RejectTearsDownAndNotifiesCaller(t *testing.T) {
	hub, captured := newTestCallHub()
	require.True(t, hub.Offer("call-1", "voice", 1, "alice", 2, nil))

	hub.Reject("call-1", 2)

	rejected := captured.ofType(1, "call_rejected")
	require.Len(t, rejected, 1)
	assert.JSONEq(t, `{"reason":"declined"}`, string(rejected[0].Payload))
	assert.False(t, hub.InCall(1))
	assert.False(t, hub.InCall(2))

	// User 2 is free to receive calls again.
	assert.True(t, hub.Offer("call-2", "voice", 3, "carol", 2, nil))
}

func TestCallHub_AnswerRelayedToCaller(t *testing.T) {
	hub, captured := newTestCallHub()
	require.True(t, hub.Offer("call-1", "video", 1, "alice", 2, nil))

	hub.Answer("call-1", 2, json.RawMessage(`{"sdp":"answer"}`))

	answers := captured.ofType(1, "answer")
	require.Len(t, answers, 1)
	assert.Equal(t, uint(2), answers[0].UserID)
	assert.JSONEq(t, `{"sdp":"answer"}`, string(answers[0].Payload))
}
