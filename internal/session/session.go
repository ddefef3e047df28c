// Package session はログインセッションの発行・検証・破棄を提供します。
//
// セッションの値はサーバー側（メモリまたは Redis）に保持され、クライアントには署名付きの
// 不透明なセッションIDだけがCookieで渡ります。
package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	gsessions "github.com/gorilla/sessions"
)

const (
	// CookieName はセッションCookieの名前です。
	CookieName = "portal_session"

	keyUserID     = "user_id"
	keyUsername   = "username"
	keyIssuedAt   = "issued_at"
	keyLastActive = "last_activity"
)

// Options はセッションストアとマネージャーの設定です。
type Options struct {
	Secret      string
	Secure      bool          // Cookie に Secure 属性を付ける（HTTPSのみで送信）
	IdleTimeout time.Duration // 最終アクセスからの有効期限
	MaxLifetime time.Duration // ログインからの絶対有効期限（0なら無制限）
}

func (o Options) cookieOptions(maxAge int) sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Middleware はリクエストごとにセッションを読み込むミドルウェアを返します。
func Middleware(store sessions.Store) gin.HandlerFunc {
	return sessions.Sessions(CookieName, store)
}

// Manager はセッションの状態遷移（匿名 ⇔ 認証済み）を管理します。
type Manager struct {
	opts Options
	now  func() time.Time
}

// NewManager は Manager を作成します。
func NewManager(opts Options) *Manager {
	return &Manager{
		opts: opts,
		now:  time.Now,
	}
}

// errNoRotation はセッションIDを振り直せないストアで Start した場合のエラーです。
var errNoRotation = errors.New("session store does not expose the underlying session")

// Start は認証済みユーザーを新しいセッションに紐付けます。
// ログイン前のセッションは破棄され、新しいセッションIDが発行されます。
func (m *Manager) Start(c *gin.Context, userID int64, username string) error {
	s := sessions.Default(c)
	inner, ok := s.(interface{ Session() *gsessions.Session })
	if !ok {
		return errNoRotation
	}

	// 旧セッションを削除してからIDを空にすると、保存時にストアが新しいIDを払い出す
	s.Clear()
	s.Options(m.opts.cookieOptions(-1))
	if err := s.Save(); err != nil {
		return err
	}
	inner.Session().ID = ""

	now := m.now().Unix()
	s.Set(keyUserID, userID)
	s.Set(keyUsername, username)
	s.Set(keyIssuedAt, now)
	s.Set(keyLastActive, now)
	s.Options(m.opts.cookieOptions(int(m.opts.IdleTimeout.Seconds())))
	return s.Save()
}

// IsAuthenticated はセッションが認証済みかつ有効期限内かを返します。
// 期限切れのセッションは破棄し、有効なセッションは最終アクセス時刻を更新します。
func (m *Manager) IsAuthenticated(c *gin.Context) bool {
	s := sessions.Default(c)
	if _, ok := readUserID(s.Get(keyUserID)); !ok {
		return false
	}

	now := m.now()
	issuedAt := readUnix(s.Get(keyIssuedAt))
	lastActive := readUnix(s.Get(keyLastActive))

	expired := issuedAt.IsZero() || lastActive.IsZero() ||
		now.Sub(lastActive) > m.opts.IdleTimeout ||
		(m.opts.MaxLifetime > 0 && now.Sub(issuedAt) > m.opts.MaxLifetime)
	if expired {
		s.Clear()
		_ = s.Save()
		return false
	}

	s.Set(keyLastActive, now.Unix())
	_ = s.Save()
	return true
}

// UserID はセッションに紐付いたユーザーIDを返します。
func (m *Manager) UserID(c *gin.Context) (int64, bool) {
	return readUserID(sessions.Default(c).Get(keyUserID))
}

// Username はセッションに紐付いたユーザー名を返します。
func (m *Manager) Username(c *gin.Context) string {
	name, _ := sessions.Default(c).Get(keyUsername).(string)
	return name
}

// Destroy はセッションの値を破棄し、Cookie を失効させます。
func (m *Manager) Destroy(c *gin.Context) error {
	s := sessions.Default(c)
	s.Clear()
	s.Options(m.opts.cookieOptions(-1))
	return s.Save()
}

func readUserID(v interface{}) (int64, bool) {
	switch id := v.(type) {
	case int64:
		return id, id > 0
	case int:
		return int64(id), id > 0
	case float64:
		return int64(id), id > 0
	default:
		return 0, false
	}
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
