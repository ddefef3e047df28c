package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/yourusername/login-portal/internal/flash"
	"github.com/yourusername/login-portal/internal/metrics"
)

// RequireLogin はセッションを検証するミドルウェアを返します。
// 未ログインまたは期限切れの場合はログイン画面へリダイレクトします。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.sessions.IsAuthenticated(c) {
			_ = c.Error(ErrUnauthorized)
			m.respondWithFlash(c, flash.SeverityError, msgLoginRequired, pageLogin)
			c.Abort()
			return
		}

		c.Set(ContextUsernameKey, m.sessions.Username(c))
		c.Next()
	}
}

// RateLimited はレート制限超過時の応答です。
// middleware.NewRateLimiter の reject に渡し、送信元のフォーム画面へ戻します。
func (m *Manager) RateLimited(c *gin.Context) {
	target := pageLogin
	if c.Request.URL.Path == pathRegister {
		target = pageRegister
		m.metrics.RecordRegister(metrics.ResultRateLimited)
	} else {
		m.metrics.RecordLogin(metrics.ResultRateLimited)
	}
	m.respondWithFlash(c, flash.SeverityError, msgRateLimited, target)
}
