package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"sameem/internal/cache"
	"sameem/internal/config"
	"sameem/internal/database"
	"sameem/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testServer wires a full Server against an in-memory SQLite database and
// miniredis, with routes mounted on a fresh Fiber app. The admin signup
// histogram uses a Postgres-only date function and degrades to an empty
// slice here.
type testServer struct {
	*Server
	app *fiber.App
	mr  *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	// Unread counters and rate limits go through the package-level cache
	// client, so tests must initialize it rather than hand the server a
	// private connection. This makes test servers unsafe to run in parallel.
	mr := miniredis.RunT(t)
	cache.InitRedis(mr.Addr())
	rdb := cache.GetClient()
	require.NotNil(t, rdb)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))

	cfg := &config.Config{
		JWTSecret:      "test-secret-key-12345678901234567890123456789012",
		AvatarDir:      t.TempDir(),
		AvatarMaxBytes: 5 * 1024 * 1024,
	}

	s, err := NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)

	app := fiber.New()
	s.SetupRoutes(app)

	return &testServer{Server: s, app: app, mr: mr}
}

// createUser inserts a user directly, bypassing the signup rate limit, and
// returns the user together with a valid bearer token.
func (ts *testServer) createUser(t *testing.T, username, email string) (*models.User, string) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("SecurePass12!@"), bcrypt.DefaultCost)
	require.NoError(t, err)

	user := &models.User{
		Username:    username,
		Email:       email,
		Password:    string(hash),
		DisplayName: username,
	}
	require.NoError(t, ts.userRepo.Create(t.Context(), user))
	require.NoError(t, ts.userRepo.ReserveUsername(t.Context(), username, user.ID))

	token, err := ts.generateToken(user.ID, user.Username)
	require.NoError(t, err)
	return user, token
}

// createAdmin is createUser plus the admin bit.
func (ts *testServer) createAdmin(t *testing.T, username, email string) (*models.User, string) {
	t.Helper()

	user, token := ts.createUser(t, username, email)
	require.NoError(t, ts.userRepo.UpdateFields(t.Context(), user.ID, map[string]interface{}{"is_admin": true}))
	user.IsAdmin = true
	return user, token
}

// request performs an authenticated JSON request against the test app and
// decodes the response body into out when out is non-nil.
func (ts *testServer) request(t *testing.T, method, path, token string, body interface{}, out interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}
