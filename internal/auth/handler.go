package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/login-portal/internal/flash"
	"github.com/yourusername/login-portal/internal/metrics"
	"github.com/yourusername/login-portal/internal/middleware"
	"github.com/yourusername/login-portal/internal/users"
)

type loginForm struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

type registerForm struct {
	Username string `form:"username" json:"username"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Login は POST /login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		m.loginFailed(c, users.ErrInvalidCredentials)
		return
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()

	if m.attempts != nil {
		retryAfter, err := m.attempts.Locked(ctx, ip)
		if err != nil {
			m.loginFailed(c, err)
			return
		}
		if retryAfter > 0 {
			m.loginFailed(c, ErrLocked)
			return
		}
	}

	user, err := m.users.Authenticate(ctx, form.Username, form.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) && m.attempts != nil {
			if _, recordErr := m.attempts.RecordFailure(ctx, ip); recordErr != nil {
				m.logger.Printf("failed to record login failure: request_id=%s err=%v", middleware.RequestIDFrom(c), recordErr)
			}
		}
		m.loginFailed(c, err)
		return
	}

	if m.attempts != nil {
		if err := m.attempts.Reset(ctx, ip); err != nil {
			m.logger.Printf("failed to reset login attempts: request_id=%s err=%v", middleware.RequestIDFrom(c), err)
		}
	}

	if err := m.sessions.Start(c, user.ID, user.Username); err != nil {
		m.loginFailed(c, err)
		return
	}

	m.metrics.RecordLogin(metrics.ResultSuccess)
	m.logger.Printf("login succeeded: user_id=%d request_id=%s", user.ID, middleware.RequestIDFrom(c))
	c.Redirect(http.StatusFound, pathIndex)
}

// loginFailed は結果とリクエストIDだけを記録します。入力値（ユーザー名を含む）はログに出しません。
func (m *Manager) loginFailed(c *gin.Context, err error) {
	text, result := loginFailure(err)
	m.metrics.RecordLogin(result)
	if result == metrics.ResultError {
		m.logger.Printf("login error: request_id=%s err=%v", middleware.RequestIDFrom(c), err)
	} else {
		m.logger.Printf("login rejected: result=%s request_id=%s", result, middleware.RequestIDFrom(c))
	}
	m.respondWithFlash(c, flash.SeverityError, text, pageLogin)
}

// Register は POST /register のハンドラーです。
func (m *Manager) Register(c *gin.Context) {
	var form registerForm
	if err := c.ShouldBind(&form); err != nil {
		m.registerFailed(c, err)
		return
	}

	user, err := m.users.Create(c.Request.Context(), form.Username, form.Email, form.Password)
	if err != nil {
		m.registerFailed(c, err)
		return
	}

	m.metrics.RecordRegister(metrics.ResultSuccess)
	m.logger.Printf("user registered: user_id=%d request_id=%s", user.ID, middleware.RequestIDFrom(c))
	m.respondWithFlash(c, flash.SeveritySuccess, msgRegistrationSuccess, pageLogin)
}

func (m *Manager) registerFailed(c *gin.Context, err error) {
	text, result := registerFailure(err)
	m.metrics.RecordRegister(result)
	if result == metrics.ResultError {
		m.logger.Printf("registration error: request_id=%s err=%v", middleware.RequestIDFrom(c), err)
	}
	m.respondWithFlash(c, flash.SeverityError, text, pageRegister)
}

// Logout は GET /logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	if err := m.sessions.Destroy(c); err != nil {
		m.logger.Printf("failed to destroy session: request_id=%s err=%v", middleware.RequestIDFrom(c), err)
	}
	m.metrics.RecordLogout()
	c.Redirect(http.StatusFound, pageLogin)
}

// renderPage は未読のフラッシュメッセージとログイン中のユーザー名を添えてページを描画します。
func (m *Manager) renderPage(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		messages, err := m.flash.ConsumeAll(c)
		if err != nil {
			m.logger.Printf("failed to consume flash: request_id=%s err=%v", middleware.RequestIDFrom(c), err)
		}
		c.HTML(http.StatusOK, name, gin.H{
			"Flashes":  messages,
			"Username": c.GetString(ContextUsernameKey),
		})
	}
}
