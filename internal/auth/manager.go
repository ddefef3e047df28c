// Package auth はログイン・登録・ログアウトの画面遷移と保護ページの認可を提供します。
package auth

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/login-portal/internal/flash"
	"github.com/yourusername/login-portal/internal/metrics"
	"github.com/yourusername/login-portal/internal/pages"
	"github.com/yourusername/login-portal/internal/session"
	"github.com/yourusername/login-portal/internal/users"
)

// ContextUsernameKey は、ハンドラー間でログイン済みユーザー名を共有するためのキーです。
const ContextUsernameKey = "auth.username"

// 画面遷移先のパスです。
const (
	pathRoot     = "/"
	pathLogin    = "/login"
	pathRegister = "/register"
	pathLogout   = "/logout"
	pathIndex    = "/index.html"
	pageLogin    = "/login.html"
	pageRegister = "/register.html"
)

// UserService は認証ハンドラーが利用するユーザー操作です。
type UserService interface {
	Create(ctx context.Context, username, email, password string) (*users.User, error)
	Authenticate(ctx context.Context, username, password string) (*users.User, error)
}

// Deps は Manager が依存するコンポーネントです。
type Deps struct {
	Users    UserService
	Sessions *session.Manager
	Flash    *flash.Messenger
	Attempts AttemptTracker   // nil ならロックを行わない
	Metrics  metrics.Recorder // nil なら記録しない
	Logger   *log.Logger      // nil なら log.Default()
}

// Manager は認証処理をまとめた構造体です。
type Manager struct {
	users    UserService
	sessions *session.Manager
	flash    *flash.Messenger
	attempts AttemptTracker
	metrics  metrics.Recorder
	logger   *log.Logger
}

// NewManager は認証マネージャーを作成します。
func NewManager(deps Deps) *Manager {
	m := &Manager{
		users:    deps.Users,
		sessions: deps.Sessions,
		flash:    deps.Flash,
		attempts: deps.Attempts,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
	if m.metrics == nil {
		m.metrics = metrics.Nop{}
	}
	if m.logger == nil {
		m.logger = log.Default()
	}
	return m
}

// RegisterRoutes は画面とフォーム送信のルートを登録します。
// limiter は /login と /register への POST の前に適用されます（nil なら無効）。
func (m *Manager) RegisterRoutes(r gin.IRouter, limiter gin.HandlerFunc) {
	r.GET("/health", handleHealth)

	r.GET(pathRoot, func(c *gin.Context) {
		c.Redirect(http.StatusFound, pageLogin)
	})
	r.GET(pageLogin, m.renderPage(pages.Login))
	r.GET(pageRegister, m.renderPage(pages.Register))

	r.POST(pathLogin, withLimiter(limiter, m.Login)...)
	r.POST(pathRegister, withLimiter(limiter, m.Register)...)
	r.GET(pathLogout, m.Logout)

	r.GET(pathIndex, m.RequireLogin(), m.renderPage(pages.Index))
}

func withLimiter(limiter gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	if limiter == nil {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{limiter, handler}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "login-portal",
	})
}
