package server

import (
	"fmt"
	"net/http"
	"testing"

	"sameem/internal/models"
	"sameem/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileReport sends a message from the reported user to the reporter and
// files a report against it.
func (ts *testServer) fileReport(t *testing.T, reportedToken, reporterToken string, reporterID uint, reason string) models.Report {
	t.Helper()

	msg := ts.sendMessage(t, reportedToken, reporterID, "something objectionable")

	var report models.Report
	resp := ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/messages/%d/report", msg.ID), reporterToken,
		map[string]string{"reason": reason}, &report)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return report
}

func TestAdminRequired(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.createUser(t, "alice", "alice@example.com")

	resp := ts.request(t, http.MethodGet, "/api/admin/reports", aliceToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.request(t, http.MethodGet, "/api/admin/reports", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetFeatureFlags(t *testing.T) {
	ts := newTestServer(t)
	_, adminToken := ts.createAdmin(t, "root", "root@example.com")

	var body struct {
		Flags    map[string]string `json:"flags"`
		Snapshot map[string]bool   `json:"snapshot"`
	}
	resp := ts.request(t, http.MethodGet, "/api/admin/feature-flags", adminToken, nil, &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, body.Flags)
	assert.NotNil(t, body.Snapshot)
}

func TestAdminStats(t *testing.T) {
	ts := newTestServer(t)
	_, adminToken := ts.createAdmin(t, "root", "root@example.com")
	ts.createUser(t, "alice", "alice@example.com")
	ts.createUser(t, "bob", "bob@example.com")

	var stats service.AdminStats
	resp := ts.request(t, http.MethodGet, "/api/admin/stats", adminToken, nil, &stats)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(3), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.Admins)
	assert.Equal(t, int64(0), stats.Suspended)
	assert.Equal(t, int64(0), stats.PendingReports)
}

func TestReportLifecycle(t *testing.T) {
	ts := newTestServer(t)
	_, adminToken := ts.createAdmin(t, "root", "root@example.com")
	alice, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	_, bobToken := ts.createUser(t, "bob", "bob@example.com")

	report := ts.fileReport(t, bobToken, aliceToken, alice.ID, "spam")

	t.Run("List", func(t *testing.T) {
		var reports []models.Report
		resp := ts.request(t, http.MethodGet, "/api/admin/reports?status=pending", adminToken, nil, &reports)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, reports, 1)
		assert.Equal(t, report.ID, reports[0].ID)

		resp = ts.request(t, http.MethodGet, "/api/admin/reports?status=bogus", adminToken, nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Get", func(t *testing.T) {
		var got models.Report
		resp := ts.request(t, http.MethodGet,
			fmt.Sprintf("/api/admin/reports/%d", report.ID), adminToken, nil, &got)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "spam", got.Reason)
		assert.Equal(t, "something objectionable", got.MessageText)

		resp = ts.request(t, http.MethodGet, "/api/admin/reports/9999", adminToken, nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Resolve", func(t *testing.T) {
		resp := ts.request(t, http.MethodPost,
			fmt.Sprintf("/api/admin/reports/%d/resolve", report.ID), adminToken,
			map[string]string{"outcome": "banned"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var resolved models.Report
		resp = ts.request(t, http.MethodPost,
			fmt.Sprintf("/api/admin/reports/%d/resolve", report.ID), adminToken,
			map[string]string{"outcome": models.ReportStatusDismissed}, &resolved)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, models.ReportStatusDismissed, resolved.Status)
		require.NotNil(t, resolved.ResolvedBy)

		// Already resolved.
		resp = ts.request(t, http.MethodPost,
			fmt.Sprintf("/api/admin/reports/%d/resolve", report.ID), adminToken,
			map[string]string{"outcome": models.ReportStatusActionTaken}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSetUserAdmin(t *testing.T) {
	ts := newTestServer(t)
	admin, adminToken := ts.createAdmin(t, "root", "root@example.com")
	alice, _ := ts.createUser(t, "alice", "alice@example.com")

	var body struct {
		User models.User `json:"user"`
	}
	resp := ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/admin/users/%d/admin", alice.ID), adminToken,
		map[string]bool{"is_admin": true}, &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.User.IsAdmin)

	// Admins cannot demote themselves.
	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/admin/users/%d/admin", admin.ID), adminToken,
		map[string]bool{"is_admin": false}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetUserSuspended(t *testing.T) {
	ts := newTestServer(t)
	admin, adminToken := ts.createAdmin(t, "root", "root@example.com")
	alice, _ := ts.createUser(t, "alice", "alice@example.com")

	resp := ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/admin/users/%d/suspend", alice.ID), adminToken,
		map[string]bool{"suspended": true}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A suspended account can no longer log in.
	resp = ts.request(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": "alice@example.com", "password": "SecurePass12!@"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Lifting the suspension restores access.
	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/admin/users/%d/suspend", alice.ID), adminToken,
		map[string]bool{"suspended": false}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.request(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": "alice@example.com", "password": "SecurePass12!@"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Admins cannot suspend themselves.
	resp = ts.request(t, http.MethodPost,
		fmt.Sprintf("/api/admin/users/%d/suspend", admin.ID), adminToken,
		map[string]bool{"suspended": true}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminRenameUser(t *testing.T) {
	ts := newTestServer(t)
	_, adminToken := ts.createAdmin(t, "root", "root@example.com")
	alice, _ := ts.createUser(t, "alice", "alice@example.com")

	var renamed models.User
	resp := ts.request(t, http.MethodPut,
		fmt.Sprintf("/api/admin/users/%d/username", alice.ID), adminToken,
		map[string]string{"username": "Cleaned_Up"}, &renamed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cleaned_up", renamed.Username)

	resp = ts.request(t, http.MethodPut,
		fmt.Sprintf("/api/admin/users/%d/username", alice.ID), adminToken,
		map[string]string{"username": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminDeleteUser(t *testing.T) {
	ts := newTestServer(t)
	admin, adminToken := ts.createAdmin(t, "root", "root@example.com")
	alice, aliceToken := ts.createUser(t, "alice", "alice@example.com")

	// Admins cannot delete themselves through this endpoint.
	resp := ts.request(t, http.MethodDelete,
		fmt.Sprintf("/api/admin/users/%d", admin.ID), adminToken, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.request(t, http.MethodDelete,
		fmt.Sprintf("/api/admin/users/%d", alice.ID), adminToken, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The deleted account's token no longer resolves to a user.
	resp = ts.request(t, http.MethodGet, "/api/users/me", aliceToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminDeleteConversation(t *testing.T) {
	ts := newTestServer(t)
	_, adminToken := ts.createAdmin(t, "root", "root@example.com")
	alice, aliceToken := ts.createUser(t, "alice", "alice@example.com")
	bob, bobToken := ts.createUser(t, "bob", "bob@example.com")

	ts.sendMessage(t, aliceToken, bob.ID, "hello")
	ts.sendMessage(t, bobToken, alice.ID, "hi back")

	resp := ts.request(t, http.MethodDelete,
		fmt.Sprintf("/api/admin/conversations/%d/%d", alice.ID, bob.ID), adminToken, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var messages []models.Message
	resp = ts.request(t, http.MethodGet,
		fmt.Sprintf("/api/conversations/%d/messages", bob.ID), aliceToken, nil, &messages)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, messages)
}
