package notifications

import (
	"context"
	"sync"
	"time"

	"sameem/internal/observability"
)

const typingIdleTimeout = 3 * time.Second

type typingKey struct {
	conversationKey string
	userID          uint
}

// TypingTracker turns a stream of keystrokes into edge-triggered typing
// indicators. The first keystroke publishes "typing", each further keystroke
// rearms the idle timer, and the timer expiry publishes "stopped". Stop is
// also forced when the user leaves the conversation.
type TypingTracker struct {
	notifier *Notifier

	mu     sync.Mutex
	timers map[typingKey]*time.Timer
	idle   time.Duration
}

// NewTypingTracker creates a tracker publishing through the given notifier.
func NewTypingTracker(n *Notifier) *TypingTracker {
	return &TypingTracker{
		notifier: n,
		timers:   make(map[typingKey]*time.Timer),
		idle:     typingIdleTimeout,
	}
}

// SetIdleTimeout overrides the idle window. Used by tests.
func (t *TypingTracker) SetIdleTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	t.idle = d
	t.mu.Unlock()
}

// Keystroke records typing activity. It publishes the indicator only on the
// rising edge; repeated keystrokes just push the expiry out.
func (t *TypingTracker) Keystroke(ctx context.Context, conversationKey string, userID uint, username string) {
	k := typingKey{conversationKey: conversationKey, userID: userID}

	t.mu.Lock()
	timer, active := t.timers[k]
	if active {
		timer.Reset(t.idle)
		t.mu.Unlock()
		return
	}
	t.timers[k] = time.AfterFunc(t.idle, func() {
		t.expire(conversationKey, userID, username)
	})
	t.mu.Unlock()

	observability.TypingSignalsTotal.WithLabelValues("start").Inc()
	_ = t.notifier.PublishTypingIndicator(ctx, conversationKey, userID, username, true)
}

// Stop clears the indicator immediately, e.g. when the message is sent or the
// conversation view unmounts. No-op when the user was not typing.
func (t *TypingTracker) Stop(ctx context.Context, conversationKey string, userID uint, username string) {
	k := typingKey{conversationKey: conversationKey, userID: userID}

	t.mu.Lock()
	timer, active := t.timers[k]
	if active {
		timer.Stop()
		delete(t.timers, k)
	}
	t.mu.Unlock()

	if !active {
		return
	}
	observability.TypingSignalsTotal.WithLabelValues("stop").Inc()
	_ = t.notifier.PublishTypingIndicator(ctx, conversationKey, userID, username, false)
}

// StopAll clears every active indicator for the user across conversations.
// Called on disconnect.
func (t *TypingTracker) StopAll(ctx context.Context, userID uint, username string) {
	t.mu.Lock()
	var keys []typingKey
	for k, timer := range t.timers {
		if k.userID == userID {
			timer.Stop()
			delete(t.timers, k)
			keys = append(keys, k)
		}
	}
	t.mu.Unlock()

	for _, k := range keys {
		observability.TypingSignalsTotal.WithLabelValues("stop").Inc()
		_ = t.notifier.PublishTypingIndicator(ctx, k.conversationKey, userID, username, false)
	}
}

func (t *TypingTracker) expire(conversationKey string, userID uint, username string) {
	k := typingKey{conversationKey: conversationKey, userID: userID}

	t.mu.Lock()
	if _, ok := t.timers[k]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.timers, k)
	t.mu.Unlock()

	observability.TypingSignalsTotal.WithLabelValues("expire").Inc()
	_ = t.notifier.PublishTypingIndicator(context.Background(), conversationKey, userID, username, false)
}
