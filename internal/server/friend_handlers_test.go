package server

import (
	"fmt"
	"net/http"
	"testing"

	"sameem/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriendRequestFlow(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, bobToken := ts.createUser(t, "bob", "bob@example.com")

	// Alice sends a request addressed by username.
	var friendship models.Friendship
	resp := ts.request(t, http.MethodPost, "/api/friends/requests", aliceToken,
		map[string]string{"username": "bob"}, &friendship)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, alice.ID, friendship.RequesterID)
	assert.Equal(t, bob.ID, friendship.AddresseeID)
	assert.Equal(t, models.FriendshipStatusPending, friendship.Status)

	// Bob sees it pending; Alice sees it sent.
	var pending []models.Friendship
	resp = ts.request(t, http.MethodGet, "/api/friends/requests", bobToken, nil, &pending)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, pending, 1)

	var sent []models.Friendship
	resp = ts.request(t, http.MethodGet, "/api/friends/requests/sent", aliceToken, nil, &sent)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, sent, 1)

	// Bob accepts; both contact lists now show the other.
	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/friends/requests/%d/accept", friendship.ID), bobToken, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var contacts []struct {
		User struct {
			ID uint `json:"id"`
		} `json:"user"`
		ConversationKey string `json:"conversation_key"`
	}
	resp = ts.request(t, http.MethodGet, "/api/friends/", aliceToken, nil, &contacts)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, contacts, 1)
	assert.Equal(t, bob.ID, contacts[0].User.ID)
	assert.Equal(t, models.ConversationKey(alice.ID, bob.ID), contacts[0].ConversationKey)

	// Removing the contact clears both sides.
	resp = ts.request(t, http.MethodDelete, fmt.Sprintf("/api/friends/%d", alice.ID), bobToken, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	contacts = nil
	resp = ts.request(t, http.MethodGet, "/api/friends/", aliceToken, nil, &contacts)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, contacts)
}

func TestSendFriendRequest_Validation(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	_, bobToken := ts.createUser(t, "bob", "bob@example.com")

	t.Run("Missing Username", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/friends/requests", aliceToken,
			map[string]string{}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Unknown Username", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/friends/requests", aliceToken,
			map[string]string{"username": "nobody"}, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Self Request", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/friends/requests", aliceToken,
			map[string]string{"username": "alice"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Duplicate Request", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/friends/requests", aliceToken,
			map[string]string{"username": "bob"}, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp = ts.request(t, http.MethodPost, "/api/friends/requests", aliceToken,
			map[string]string{"username": "bob"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		// The reverse direction is also rejected while one is pending.
		resp = ts.request(t, http.MethodPost, "/api/friends/requests", bobToken,
			map[string]string{"username": "alice"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRejectFriendRequest(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	_, bobToken := ts.createUser(t, "bob", "bob@example.com")
	_, carolToken := ts.createUser(t, "carol", "carol@example.com")

	var friendship models.Friendship
	resp := ts.request(t, http.MethodPost, "/api/friends/requests", aliceToken,
		map[string]string{"username": "bob"}, &friendship)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// A third party cannot touch the request.
	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/friends/requests/%d/reject", friendship.ID), carolToken, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// The addressee rejects it; it is gone for both sides.
	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/friends/requests/%d/reject", friendship.ID), bobToken, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pending []models.Friendship
	resp = ts.request(t, http.MethodGet, "/api/friends/requests", bobToken, nil, &pending)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, pending)
}

func TestRejectFriendRequest_RequesterCancels(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	_, bobToken := ts.createUser(t, "bob", "bob@example.com")

	var friendship models.Friendship
	resp := ts.request(t, http.MethodPost, "/api/friends/requests", aliceToken,
		map[string]string{"username": "bob"}, &friendship)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/friends/requests/%d/reject", friendship.ID), aliceToken, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pending []models.Friendship
	resp = ts.request(t, http.MethodGet, "/api/friends/requests", bobToken, nil, &pending)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, pending)
}

func TestSendFriendRequest_BlockedUser(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, _ := ts.createUser(t, "bob", "bob@example.com")

	require.NoError(t, ts.userRepo.Block(t.Context(), bob.ID, alice.ID))

	resp := ts.request(t, http.MethodPost, "/api/friends/requests", aliceToken,
		map[string]string{"username": "bob"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
