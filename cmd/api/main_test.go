package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/login-portal/internal/auth"
	"github.com/yourusername/login-portal/internal/config"
	"github.com/yourusername/login-portal/internal/database"
	"github.com/yourusername/login-portal/internal/password"
	"github.com/yourusername/login-portal/internal/users"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// useTempDatabase は一時ディレクトリの SQLite ファイルを DATABASE_URL に設定します。
func useTempDatabase(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "test.sqlite")
	t.Setenv("DATABASE_URL", path)
	t.Setenv("GIN_MODE", gin.TestMode)
	t.Setenv("BCRYPT_COST", "4")
	return path
}

func findUser(t *testing.T, path, username string) *users.User {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	user, err := users.NewService(db.UserRepository(), password.NewBcrypt(4)).FindByUsername(ctx, username)
	require.NoError(t, err)
	return user
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"serve", "migrate", "reset-db", "create-user"} {
		assert.Contains(t, out, sub, "Help missing %q command", sub)
	}
}

func TestResetDB_RequiresForce(t *testing.T) {
	path := useTempDatabase(t)

	_, err := execute(t, "create-user", "--username", "alice", "--email", "a@x.io", "--password", "secret1")
	require.NoError(t, err)

	_, err = execute(t, "reset-db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")
	assert.NotNil(t, findUser(t, path, "alice"), "reset without --force must keep users")

	_, err = execute(t, "reset-db", "--force")
	require.NoError(t, err)
	assert.Nil(t, findUser(t, path, "alice"))
}

func TestCreateUser(t *testing.T) {
	path := useTempDatabase(t)

	out, err := execute(t, "create-user", "--username", "alice", "--email", "a@x.io", "--password", "secret1")
	require.NoError(t, err)
	assert.Contains(t, out, "Created user alice")

	user := findUser(t, path, "alice")
	require.NotNil(t, user)
	assert.NotEqual(t, "secret1", user.PasswordHash)

	_, err = execute(t, "create-user", "--username", "alice", "--email", "b@x.io", "--password", "secret2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username must be unique")
}

func TestMigrate_KeepsExistingUsers(t *testing.T) {
	path := useTempDatabase(t)

	_, err := execute(t, "create-user", "--username", "alice", "--email", "a@x.io", "--password", "secret1")
	require.NoError(t, err)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "version 1")
	assert.NotNil(t, findUser(t, path, "alice"))
}

func testConfig() *config.Config {
	return &config.Config{
		Port:               "8000",
		GinMode:            gin.TestMode,
		SessionSecret:      "test-secret",
		CookieSecure:       true,
		SessionIdleTimeout: 15 * time.Minute,
		SessionMaxLifetime: time.Hour,
		DatabaseURL:        ":memory:",
		BcryptCost:         4,
		LoginMaxAttempts:   5,
		LoginWindow:        time.Minute,
		LoginLockDuration:  time.Minute,
		RateLimitPerMinute: 60,
		MetricsEnabled:     true,
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := openDatabase(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	attempts, closeAttempts, err := setupAttempts(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(closeAttempts)
	assert.IsType(t, &auth.MemoryAttempts{}, attempts)

	store, closeStore, err := setupSessionStore(cfg, sessionOptions(cfg))
	require.NoError(t, err)
	t.Cleanup(closeStore)

	router, stop, err := newRouter(cfg, users.NewService(db.UserRepository(), password.NewBcrypt(cfg.BcryptCost)), attempts, store)
	require.NoError(t, err)
	t.Cleanup(stop)
	return router
}

// client は直近のセッションクッキーを保持して送り直します。
type client struct {
	router *gin.Engine
	cookie *http.Cookie
}

func (cl *client) do(req *http.Request) *httptest.ResponseRecorder {
	if cl.cookie != nil {
		req.AddCookie(cl.cookie)
	}
	rec := httptest.NewRecorder()
	cl.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name != "portal_session" {
			continue
		}
		if c.MaxAge < 0 {
			cl.cookie = nil
		} else {
			cl.cookie = c
		}
	}
	return rec
}

func (cl *client) post(path string, form url.Values, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	return cl.do(req)
}

func TestRouter_ServesPagesWithSecurityHeaders(t *testing.T) {
	router := newTestRouter(t, testConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login.html", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/login"`)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t, testConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "auth_logout_total 0")
	assert.Empty(t, rec.Result().Cookies(), "metrics must not start a session")
}

func TestRouter_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsEnabled = false
	router := newTestRouter(t, cfg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_SessionCookieIsSecure(t *testing.T) {
	router := newTestRouter(t, testConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.html", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login.html", rec.Header().Get("Location"))

	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "portal_session" {
			found = true
			assert.True(t, c.HttpOnly)
			assert.True(t, c.Secure)
			assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		}
	}
	assert.True(t, found, "expected session cookie")
}

func TestRouter_CORS(t *testing.T) {
	cfg := testConfig()
	cfg.CORSAllowedOrigins = "http://portal.example"
	router := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/login", nil)
	req.Header.Set("Origin", "http://portal.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "http://portal.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_InvalidTrustedProxies(t *testing.T) {
	cfg := testConfig()
	cfg.TrustedProxies = "not-an-ip"

	store, closeStore, err := setupSessionStore(cfg, sessionOptions(cfg))
	require.NoError(t, err)
	t.Cleanup(closeStore)

	_, _, err = newRouter(cfg, nil, nil, store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRUSTED_PROXIES")
}

func TestRouter_LockoutIgnoresForwardedFor(t *testing.T) {
	cfg := testConfig()
	cfg.LoginMaxAttempts = 2
	cl := &client{router: newTestRouter(t, cfg)}

	rec := cl.post("/register", url.Values{"username": {"alice"}, "email": {"a@x.io"}, "password": {"secret1"}}, "")
	require.Equal(t, http.StatusFound, rec.Code)

	// X-Forwarded-For を毎回変えても同じ接続元として数えられる
	for i := 1; i <= 3; i++ {
		rec = cl.post("/login", url.Values{"username": {"alice"}, "password": {"wrong"}}, fmt.Sprintf("203.0.113.%d", i))
		require.Equal(t, "/login.html", rec.Header().Get("Location"))
	}

	rec = cl.post("/login", url.Values{"username": {"alice"}, "password": {"secret1"}}, "198.51.100.7")
	assert.Equal(t, "/login.html", rec.Header().Get("Location"))

	page := cl.do(httptest.NewRequest(http.MethodGet, "/login.html", nil))
	assert.Contains(t, page.Body.String(), "Too many login attempts. Please try again later")
}
