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

var (
	// ErrLocked はログイン失敗が続いたためロック中であることを表します。
	ErrLocked = errors.New("login temporarily locked")
	// ErrUnauthorized は保護ページに未ログインでアクセスしたことを表します。
	ErrUnauthorized = errors.New("login required")
)

// 画面に表示するメッセージです。
const (
	msgLoginRequired        = "Please login to view this page"
	msgInvalidCredentials   = "Invalid username or password"
	msgLoginFailed          = "Login failed"
	msgLocked               = "Too many login attempts. Please try again later"
	msgRateLimited          = "Too many requests. Please try again later"
	msgRegistrationSuccess  = "Registration successful! Please login"
	msgRegistrationFailed   = "Registration failed"
	registrationFailedLabel = "Registration failed: "
)

// loginFailure はログイン処理のエラーを表示メッセージとメトリクスのラベルに変換します。
func loginFailure(err error) (string, string) {
	switch {
	case errors.Is(err, ErrLocked):
		return msgLocked, metrics.ResultLocked
	case errors.Is(err, users.ErrInvalidCredentials):
		return msgInvalidCredentials, metrics.ResultInvalid
	default:
		return msgLoginFailed, metrics.ResultError
	}
}

// registerFailure は登録処理のエラーを表示メッセージとメトリクスのラベルに変換します。
func registerFailure(err error) (string, string) {
	var validationErr *users.ValidationError
	if errors.As(err, &validationErr) {
		return registrationFailedLabel + validationErr.Message, metrics.ResultInvalid
	}
	return msgRegistrationFailed, metrics.ResultError
}

// respondWithFlash はメッセージをフラッシュに保存して target へリダイレクトします。
// フラッシュの保存に失敗してもリダイレクトは行います。
func (m *Manager) respondWithFlash(c *gin.Context, severity flash.Severity, text, target string) {
	if err := m.flash.Set(c, severity, text); err != nil {
		m.logger.Printf("failed to save flash: request_id=%s err=%v", middleware.RequestIDFrom(c), err)
	}
	c.Redirect(http.StatusFound, target)
}
