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

func (ts *testServer) startGame(t *testing.T, inviterToken, inviteeToken string, inviteeID uint) (models.Message, models.TicTacToeState) {
	t.Helper()

	var invitation models.Message
	resp := ts.request(t, http.MethodPost, "/api/games/invitations", inviterToken,
		map[string]interface{}{"user_id": inviteeID}, &invitation)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, models.MessageTypeGameInvitation, invitation.Type)
	require.Equal(t, models.InvitationPending, invitation.InvitationStatus)

	var game models.TicTacToeState
	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/games/invitations/%d/accept", invitation.ID), inviteeToken, nil, &game)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return invitation, game
}

func (ts *testServer) move(t *testing.T, token string, partnerID uint, cell int) (models.TicTacToeState, *http.Response) {
	t.Helper()

	var game models.TicTacToeState
	resp := ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/games/%d/moves", partnerID), token,
		map[string]interface{}{"cell": cell}, &game)
	return game, resp
}

func TestGameInvitationFlow(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, bobToken := ts.createUser(t, "bob", "bob@example.com")

	_, game := ts.startGame(t, aliceToken, bobToken, bob.ID)

	// The inviter plays X and moves first.
	assert.Equal(t, models.GameStatusActive, game.Status)
	assert.Equal(t, alice.ID, game.Turn)
	assert.Equal(t, alice.ID, game.StartedBy)
	assert.Equal(t, models.SymbolX, game.Players[alice.ID])
	assert.Equal(t, models.SymbolO, game.Players[bob.ID])

	// Both players can read the same document.
	var fromBob models.TicTacToeState
	resp := ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/games/%d", alice.ID), bobToken, nil, &fromBob)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, game.StartedBy, fromBob.StartedBy)
}

func TestGameInvitation_Validation(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, bobToken := ts.createUser(t, "bob", "bob@example.com")
	_, carolToken := ts.createUser(t, "carol", "carol@example.com")

	t.Run("Invite Yourself", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost, "/api/games/invitations", aliceToken,
			map[string]interface{}{"user_id": alice.ID}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Only Invitee Can Accept", func(t *testing.T) {
		var invitation models.Message
		resp := ts.request(t, http.MethodPost, "/api/games/invitations", aliceToken,
			map[string]interface{}{"user_id": bob.ID}, &invitation)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp = ts.request(t, http.MethodPost,
			fmt.Sprintf("/api/games/invitations/%d/accept", invitation.ID), carolToken, nil, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		// The inviter cannot accept their own invitation either.
		resp = ts.request(t, http.MethodPost,
			fmt.Sprintf("/api/games/invitations/%d/accept", invitation.ID), aliceToken, nil, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		// Decline settles it; a second accept finds it no longer pending.
		resp = ts.request(t, http.MethodPost,
			fmt.Sprintf("/api/games/invitations/%d/decline", invitation.ID), bobToken, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = ts.request(t, http.MethodPost,
			fmt.Sprintf("/api/games/invitations/%d/accept", invitation.ID), bobToken, nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("No Game Running", func(t *testing.T) {
		resp := ts.request(t, http.MethodGet,
			fmt.Sprintf("/api/games/%d", bob.ID), aliceToken, nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestGameMoves_WinAndResultMessage(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, bobToken := ts.createUser(t, "bob", "bob@example.com")

	ts.gameService.SetResultDelay(time.Millisecond)
	ts.startGame(t, aliceToken, bobToken, bob.ID)

	// Out-of-turn and occupied-cell moves are rejected.
	_, resp := ts.move(t, bobToken, alice.ID, 0)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	game, resp := ts.move(t, aliceToken, bob.ID, 0)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, bob.ID, game.Turn)

	_, resp = ts.move(t, bobToken, alice.ID, 0)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Alice takes the top row: 0, 1, 2.
	_, resp = ts.move(t, bobToken, alice.ID, 3)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, resp = ts.move(t, aliceToken, bob.ID, 1)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, resp = ts.move(t, bobToken, alice.ID, 4)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	game, resp = ts.move(t, aliceToken, bob.ID, 2)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.GameStatusWon, game.Status)
	assert.Equal(t, alice.ID, game.Winner)
	assert.Equal(t, []int{0, 1, 2}, game.WinningLine)
	assert.Equal(t, uint(0), game.Turn)

	// The game document is gone once resolved.
	resp = ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/games/%d", bob.ID), aliceToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// The result message lands in the conversation shortly after.
	require.Eventually(t, func() bool {
		var messages []models.Message
		r := ts.request(t, http.MethodGet,
			fmt.Sprintf("/api/conversations/%d/messages", bob.ID), aliceToken, nil, &messages)
		if r.StatusCode != http.StatusOK {
			return false
		}
		for _, m := range messages {
			if m.Type == models.MessageTypeGameResult {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestGameForfeit(t *testing.T) {
	ts := newTestServer(t)
	alice, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, bobToken := ts.createUser(t, "bob", "bob@example.com")

	ts.gameService.SetResultDelay(time.Millisecond)
	ts.startGame(t, aliceToken, bobToken, bob.ID)

	var game models.TicTacToeState
	resp := ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/games/%d/forfeit", alice.ID), bobToken, nil, &game)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.GameStatusForfeited, game.Status)
	assert.Equal(t, alice.ID, game.Winner)
}

func TestGameInvite_OneGamePerConversation(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, bobToken := ts.createUser(t, "bob", "bob@example.com")

	ts.startGame(t, aliceToken, bobToken, bob.ID)

	resp := ts.request(t, http.MethodPost, "/api/games/invitations", aliceToken,
		map[string]interface{}{"user_id": bob.ID}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
