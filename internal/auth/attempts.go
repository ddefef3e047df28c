package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptPolicy はログイン失敗によるロックの条件です。
type AttemptPolicy struct {
	MaxAttempts  int           // ロックまでの失敗回数
	Window       time.Duration // 失敗回数を数える期間
	LockDuration time.Duration // ロック期間
}

// AttemptTracker はクライアントごとのログイン失敗回数とロック状態を管理します。
type AttemptTracker interface {
	// Locked はロック中なら残り時間を返します。ロックされていなければ 0 です。
	Locked(ctx context.Context, key string) (time.Duration, error)
	// RecordFailure は失敗を記録し、ロックまでの残り回数を返します。
	RecordFailure(ctx context.Context, key string) (int, error)
	// Reset は失敗記録を消去します。
	Reset(ctx context.Context, key string) error
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// MemoryAttempts はプロセス内のマップで失敗回数を保持します。
// 期間もロックも過ぎたエントリは定期的に削除されます。
type MemoryAttempts struct {
	policy AttemptPolicy
	now    func() time.Time

	lock     sync.Mutex
	attempts map[string]*attemptState

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryAttempts は MemoryAttempts を作成し、掃除用のゴルーチンを開始します。
func NewMemoryAttempts(policy AttemptPolicy) *MemoryAttempts {
	m := &MemoryAttempts{
		policy:   policy,
		now:      time.Now,
		attempts: make(map[string]*attemptState),
		stopCh:   make(chan struct{}),
	}

	interval := policy.Window
	if interval <= 0 {
		interval = time.Minute
	}
	go m.cleanupLoop(interval)

	return m
}

// Stop は掃除用のゴルーチンを停止します。
func (m *MemoryAttempts) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Len は管理中のエントリ数を返します。
func (m *MemoryAttempts) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.attempts)
}

func (m *MemoryAttempts) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stopCh:
			return
		}
	}
}

// cleanup はロックが解けていて、数える期間も過ぎたエントリを削除します。
func (m *MemoryAttempts) cleanup() {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	for key, state := range m.attempts {
		if !now.Before(state.lockedUntil) && now.Sub(state.firstAttempt) > m.policy.Window {
			delete(m.attempts, key)
		}
	}
}

// Locked は AttemptTracker を実装します。
func (m *MemoryAttempts) Locked(_ context.Context, key string) (time.Duration, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[key]
	if !ok {
		return 0, nil
	}
	now := m.now()
	if !now.Before(state.lockedUntil) {
		return 0, nil
	}
	return state.lockedUntil.Sub(now), nil
}

// RecordFailure は AttemptTracker を実装します。
func (m *MemoryAttempts) RecordFailure(_ context.Context, key string) (int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	state, ok := m.attempts[key]
	if !ok || (now.Sub(state.firstAttempt) > m.policy.Window && !now.Before(state.lockedUntil)) {
		state = &attemptState{firstAttempt: now}
		m.attempts[key] = state
	}

	state.count++
	if state.count >= m.policy.MaxAttempts {
		// ロック後は数え直し
		m.attempts[key] = &attemptState{
			firstAttempt: now,
			lockedUntil:  now.Add(m.policy.LockDuration),
		}
		return 0, nil
	}
	return m.policy.MaxAttempts - state.count, nil
}

// Reset は AttemptTracker を実装します。
func (m *MemoryAttempts) Reset(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, key)
	return nil
}

const (
	attemptKeyPrefix = "login:attempts:"
	lockKeyPrefix    = "login:lock:"
)

// RedisAttempts は失敗回数とロックを Redis に保存します。
// 複数プロセスで同じ状態を共有できます。
type RedisAttempts struct {
	rdb    *redis.Client
	policy AttemptPolicy
}

// NewRedisAttempts は RedisAttempts を作成します。
func NewRedisAttempts(rdb *redis.Client, policy AttemptPolicy) *RedisAttempts {
	return &RedisAttempts{
		rdb:    rdb,
		policy: policy,
	}
}

// Locked は AttemptTracker を実装します。
func (r *RedisAttempts) Locked(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.rdb.PTTL(ctx, lockKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read login lock: %w", err)
	}
	// キーが無い場合は負の値が返る
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

// RecordFailure は AttemptTracker を実装します。
func (r *RedisAttempts) RecordFailure(ctx context.Context, key string) (int, error) {
	countKey := attemptKey(key)

	tx := r.rdb.TxPipeline()
	incr := tx.Incr(ctx, countKey)
	ttl := tx.PTTL(ctx, countKey)
	if _, err := tx.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to record login failure: %w", err)
	}

	// 期限が付いていなければ最初の失敗なので、数える期間を設定する
	if ttl.Val() < 0 {
		if err := r.rdb.PExpire(ctx, countKey, r.policy.Window).Err(); err != nil {
			return 0, fmt.Errorf("failed to record login failure: %w", err)
		}
	}

	count := int(incr.Val())
	if count < r.policy.MaxAttempts {
		return r.policy.MaxAttempts - count, nil
	}

	tx = r.rdb.TxPipeline()
	tx.Set(ctx, lockKey(key), count, r.policy.LockDuration)
	tx.Del(ctx, countKey)
	if _, err := tx.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to lock login: %w", err)
	}
	return 0, nil
}

// Reset は AttemptTracker を実装します。
func (r *RedisAttempts) Reset(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, attemptKey(key), lockKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}

func attemptKey(key string) string {
	return attemptKeyPrefix + key
}

func lockKey(key string) string {
	return lockKeyPrefix + key
}
