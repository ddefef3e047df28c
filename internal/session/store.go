package session

import (
	"encoding/base32"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	ginredis "github.com/gin-contrib/sessions/redis"
	redigo "github.com/gomodule/redigo/redis"
	gsessions "github.com/gorilla/sessions"
	"github.com/gorilla/securecookie"
)

type memoryEntry struct {
	values    map[interface{}]interface{}
	expiresAt time.Time
}

// MemoryStore はセッションの値をプロセス内に保持するストアです。
// Cookie には署名付きのセッションIDだけが入ります。
// 期限切れのエントリは定期的に削除されます。
type MemoryStore struct {
	codecs  []securecookie.Codec
	options *gsessions.Options
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore は MemoryStore を作成し、期限切れエントリの掃除を開始します。
func NewMemoryStore(opts Options) *MemoryStore {
	s := &MemoryStore{
		codecs:  securecookie.CodecsFromPairs([]byte(opts.Secret)),
		options: opts.cookieOptions(int(opts.IdleTimeout.Seconds())).ToGorillaOptions(),
		now:     time.Now,
		entries: make(map[string]memoryEntry),
		stopCh:  make(chan struct{}),
	}

	interval := opts.IdleTimeout
	if interval <= 0 {
		interval = time.Minute
	}
	go s.cleanupLoop(interval)

	return s
}

// Stop は掃除用のゴルーチンを停止します。
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Len は保持しているセッション数を返します。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Options は sessions.Store を実装します。
func (s *MemoryStore) Options(opts sessions.Options) {
	s.options = opts.ToGorillaOptions()
}

// Get はリクエスト内でキャッシュされたセッションを返します。
func (s *MemoryStore) Get(r *http.Request, name string) (*gsessions.Session, error) {
	return gsessions.GetRegistry(r).Get(s, name)
}

// New は Cookie のセッションIDに対応する値を読み込みます。
// 該当する値が無い場合は ID を持たない新しいセッションを返します。
func (s *MemoryStore) New(r *http.Request, name string) (*gsessions.Session, error) {
	session := gsessions.NewSession(s, name)
	opts := *s.options
	session.Options = &opts
	session.IsNew = true

	cookie, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	var id string
	if err := securecookie.DecodeMulti(name, cookie.Value, &id, s.codecs...); err != nil {
		return session, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok || !s.now().Before(entry.expiresAt) {
		delete(s.entries, id)
		return session, nil
	}
	for k, v := range entry.values {
		session.Values[k] = v
	}
	session.ID = id
	session.IsNew = false
	return session, nil
}

// Save は値を保存して Cookie を書き込みます。MaxAge が負の場合はセッションを削除します。
func (s *MemoryStore) Save(_ *http.Request, w http.ResponseWriter, session *gsessions.Session) error {
	if session.Options.MaxAge < 0 {
		s.mu.Lock()
		delete(s.entries, session.ID)
		s.mu.Unlock()
		for k := range session.Values {
			delete(session.Values, k)
		}
		http.SetCookie(w, gsessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = strings.TrimRight(base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)), "=")
	}
	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return fmt.Errorf("failed to encode session id: %w", err)
	}

	values := make(map[interface{}]interface{}, len(session.Values))
	for k, v := range session.Values {
		values[k] = v
	}
	ttl := time.Duration(session.Options.MaxAge) * time.Second
	if ttl <= 0 {
		ttl = time.Duration(s.options.MaxAge) * time.Second
	}

	s.mu.Lock()
	s.entries[session.ID] = memoryEntry{values: values, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()

	http.SetCookie(w, gsessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup は期限切れのエントリを削除します。
func (s *MemoryStore) cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, id)
		}
	}
}

// NewRedisStore はセッションの値を Redis に保持するストアを作成します。
// キーの有効期限は Cookie の MaxAge と同じです。戻り値の関数で接続プールを閉じます。
func NewRedisStore(opts Options, redisURL string) (sessions.Store, func(), error) {
	pool := &redigo.Pool{
		MaxIdle:     10,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redigo.Conn, error) {
			return redigo.DialURL(redisURL)
		},
	}

	conn := pool.Get()
	_, err := conn.Do("PING")
	conn.Close()
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to connect session redis: %w", err)
	}

	store, err := ginredis.NewStoreWithPool(pool, []byte(opts.Secret))
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to create redis session store: %w", err)
	}
	store.Options(opts.cookieOptions(int(opts.IdleTimeout.Seconds())))

	return store, func() { _ = pool.Close() }, nil
}

// compile-time interface check
var _ sessions.Store = (*MemoryStore)(nil)
