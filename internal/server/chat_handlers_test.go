package server

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"sameem/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (ts *testServer) sendMessage(t *testing.T, token string, partnerID uint, text string) models.Message {
	t.Helper()

	var message models.Message
	resp := ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/conversations/%d/messages", partnerID), token,
		map[string]interface{}{"text": text}, &message)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return message
}

func TestSendMessage(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, _ := ts.createUser(t, "bob", "bob@example.com")

	message := ts.sendMessage(t, aliceToken, bob.ID, "hello bob")

	assert.Equal(t, alice.ID, message.FromID)
	assert.Equal(t, bob.ID, message.ToID)
	assert.Equal(t, "hello bob", message.Text)
	assert.Equal(t, models.MessageStatusSent, message.Status)
	assert.Equal(t, models.ConversationKey(alice.ID, bob.ID), message.ConversationKey)
}

func TestSendMessage_Validation(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, _ := ts.createUser(t, "bob", "bob@example.com")

	t.Run("Empty Text", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost,
			fmt.Sprintf("/api/conversations/%d/messages", bob.ID), aliceToken,
			map[string]string{"text": ""}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Message Yourself", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost,
			fmt.Sprintf("/api/conversations/%d/messages", alice.ID), aliceToken,
			map[string]string{"text": "hi me"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Unknown Recipient", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost,
			"/api/conversations/9999/messages", aliceToken,
			map[string]string{"text": "hello?"}, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestSendMessage_BlockedEitherWay(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, bobToken := ts.createUser(t, "bob", "bob@example.com")

	require.NoError(t, ts.userRepo.Block(t.Context(), alice.ID, bob.ID))

	// The blocker cannot message, and neither can the blocked side.
	resp := ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/conversations/%d/messages", bob.ID), aliceToken,
		map[string]string{"text": "hi"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/conversations/%d/messages", alice.ID), bobToken,
		map[string]string{"text": "hi"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGetMessages_PagingAndReplies(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, bobToken := ts.createUser(t, "bob", "bob@example.com")

	first := ts.sendMessage(t, aliceToken, bob.ID, "first")
	ts.sendMessage(t, bobToken, alice.ID, "second")
	third := ts.sendMessage(t, aliceToken, bob.ID, "third")

	var messages []models.Message
	resp := ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/conversations/%d/messages", bob.ID), aliceToken, nil, &messages)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, messages, 3)
	// Oldest first.
	assert.Equal(t, "first", messages[0].Text)
	assert.Equal(t, "third", messages[2].Text)

	// Backward paging with before=.
	messages = nil
	resp = ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/conversations/%d/messages?before=%d", bob.ID, third.ID), aliceToken, nil, &messages)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, messages, 2)
	assert.Equal(t, "second", messages[1].Text)

	// Replies carry a denormalized preview of the parent.
	var reply models.Message
	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/conversations/%d/messages", bob.ID), aliceToken,
		map[string]interface{}{"text": "replying", "reply_to_id": first.ID}, &reply)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ref, err := reply.GetReplyTo()
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, first.ID, ref.MessageID)
	assert.Equal(t, "first", ref.Text)
}

func TestUnreadAndMarkRead(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, bobToken := ts.createUser(t, "bob", "bob@example.com")

	ts.sendMessage(t, aliceToken, bob.ID, "one")
	ts.sendMessage(t, aliceToken, bob.ID, "two")

	var unread struct {
		Unread int64 `json:"unread"`
	}
	resp := ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/conversations/%d/unread", alice.ID), bobToken, nil, &unread)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), unread.Unread)

	var marked struct {
		Updated int64 `json:"updated"`
	}
	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/conversations/%d/read", alice.ID), bobToken, nil, &marked)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), marked.Updated)

	// Counter cleared, repeat mark-read is a no-op.
	unread.Unread = -1
	resp = ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/conversations/%d/unread", alice.ID), bobToken, nil, &unread)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(0), unread.Unread)

	marked.Updated = -1
	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/conversations/%d/read", alice.ID), bobToken, nil, &marked)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(0), marked.Updated)
}

func TestEditMessage(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, bobToken := ts.createUser(t, "bob", "bob@example.com")

	message := ts.sendMessage(t, aliceToken, bob.ID, "typo'd text")

	var edited models.Message
	resp := ts.request(t, http.MethodPut,
		fmt.Sprintf("/api/messages/%d", message.ID), aliceToken,
		map[string]string{"text": "fixed text"}, &edited)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "fixed text", edited.Text)
	assert.NotNil(t, edited.EditedAt)

	// Only the author can edit.
	resp = ts.request(t, http.MethodPut,
		fmt.Sprintf("/api/messages/%d", message.ID), bobToken,
		map[string]string{"text": "hijacked"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestEditMessage_WindowExpired(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, _ := ts.createUser(t, "bob", "bob@example.com")

	message := ts.sendMessage(t, aliceToken, bob.ID, "old message")

	// Age the row past the edit window.
	stale := time.Now().Add(-16 * time.Minute)
	require.NoError(t, ts.db.Model(&models.Message{}).
		Where("id = ?", message.ID).
		Update("created_at", stale).Error)

	resp := ts.request(t, http.MethodPut,
		fmt.Sprintf("/api/messages/%d", message.ID), aliceToken,
		map[string]string{"text": "too late"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteMessage_Modes(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, bobToken := ts.createUser(t, "bob", "bob@example.com")

	t.Run("For Everyone Tombstones", func(t *testing.T) {
		message := ts.sendMessage(t, aliceToken, bob.ID, "regret this")

		var deleted models.Message
		resp := ts.request(t, http.MethodDelete,
			fmt.Sprintf("/api/messages/%d?mode=everyone", message.ID), aliceToken, nil, &deleted)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, deleted.IsDeleted)
		assert.Equal(t, models.DeletedMessageText, deleted.Text)

		// Both sides still see the tombstone in history.
		var messages []models.Message
		resp = ts.request(t, http.MethodGet,
			fmt.Sprintf("/api/conversations/%d/messages", alice.ID), bobToken, nil, &messages)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, messages)
		assert.True(t, messages[len(messages)-1].IsDeleted)
	})

	t.Run("For Everyone Requires Author", func(t *testing.T) {
		message := ts.sendMessage(t, aliceToken, bob.ID, "not yours")
		resp := ts.request(t, http.MethodDelete,
			fmt.Sprintf("/api/messages/%d?mode=everyone", message.ID), bobToken, nil, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("For Me Hides From Caller Only", func(t *testing.T) {
		message := ts.sendMessage(t, aliceToken, bob.ID, "hide me")

		resp := ts.request(t, http.MethodDelete,
			fmt.Sprintf("/api/messages/%d", message.ID), bobToken, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var bobView []models.Message
		resp = ts.request(t, http.MethodGet,
			fmt.Sprintf("/api/conversations/%d/messages", alice.ID), bobToken, nil, &bobView)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		for _, m := range bobView {
			assert.NotEqual(t, message.ID, m.ID)
		}

		var aliceView []models.Message
		resp = ts.request(t, http.MethodGet,
			fmt.Sprintf("/api/conversations/%d/messages", bob.ID), aliceToken, nil, &aliceView)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		found := false
		for _, m := range aliceView {
			if m.ID == message.ID {
				found = true
			}
		}
		assert.True(t, found, "sender should still see the hidden message")
	})

	t.Run("Invalid Mode", func(t *testing.T) {
		message := ts.sendMessage(t, aliceToken, bob.ID, "whatever")
		resp := ts.request(t, http.MethodDelete,
			fmt.Sprintf("/api/messages/%d?mode=both", message.ID), aliceToken, nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestReportMessage(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, bobToken := ts.createUser(t, "bob", "bob@example.com")

	message := ts.sendMessage(t, aliceToken, bob.ID, "rude text")

	var report models.Report
	resp := ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/messages/%d/report", message.ID), bobToken,
		map[string]string{"reason": "harassment"}, &report)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, alice.ID, report.ReportedID)
	assert.Equal(t, bob.ID, report.ReporterID)
	assert.Equal(t, "rude text", report.MessageText)
	assert.Equal(t, models.ReportStatusPending, report.Status)

	t.Run("Own Message", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost,
			fmt.Sprintf("/api/messages/%d/report", message.ID), aliceToken,
			map[string]string{"reason": "self report"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Missing Reason", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost,
			fmt.Sprintf("/api/messages/%d/report", message.ID), bobToken,
			map[string]string{}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
