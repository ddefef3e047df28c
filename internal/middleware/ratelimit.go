// Package middleware は gin ルーター共通のミドルウェアを提供します。
package middleware

import (
	"log"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定です。
type RateLimiterConfig struct {
	Rate            rate.Limit    // 1秒あたりの補充数
	Burst           int           // バーストサイズ
	CleanupInterval time.Duration // 使われなくなったエントリの掃除間隔
}

// PerMinute は1分あたりの上限回数から RateLimiterConfig を作成します。
func PerMinute(n int) RateLimiterConfig {
	return RateLimiterConfig{
		Rate:            rate.Limit(float64(n) / 60.0),
		Burst:           n,
		CleanupInterval: 5 * time.Minute,
	}
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はクライアントIPごとのレート制限を管理します。
type RateLimiter struct {
	config RateLimiterConfig
	reject gin.HandlerFunc

	mu       sync.Mutex
	limiters map[string]*clientLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter は RateLimiter を作成し、掃除用のゴルーチンを開始します。
// reject は上限超過時に呼ばれます。nil の場合は 429 を返します。
func NewRateLimiter(config RateLimiterConfig, reject gin.HandlerFunc) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:   config,
		reject:   reject,
		limiters: make(map[string]*clientLimiter),
		stopCh:   make(chan struct{}),
	}
	if rl.reject == nil {
		rl.reject = rl.tooManyRequests
	}

	go rl.cleanupLoop()

	return rl
}

// Stop は掃除用のゴルーチンを停止します。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware はレート制限を適用するミドルウェアを返します。
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !rl.limiterFor(ip).Allow() {
			log.Printf("rate limit exceeded: ip=%s path=%s request_id=%s", ip, c.Request.URL.Path, RequestIDFrom(c))
			rl.reject(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// Len は管理中のエントリ数を返します。
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if cl, ok := rl.limiters[key]; ok {
		cl.lastAccess = now
		return cl.limiter
	}
	cl := &clientLimiter{
		limiter:    rate.NewLimiter(rl.config.Rate, rl.config.Burst),
		lastAccess: now,
	}
	rl.limiters[key] = cl
	return cl.limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスから CleanupInterval の2倍を超えたエントリを削除します。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) tooManyRequests(c *gin.Context) {
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(rl.config.Rate)))
	c.String(http.StatusTooManyRequests, "Too many requests. Please try again later.")
}

// retryAfterSeconds は1トークンが補充されるまでの秒数です。
func retryAfterSeconds(r rate.Limit) int {
	if r <= 0 {
		return 60
	}
	sec := int(math.Ceil(1.0 / float64(r)))
	if sec < 1 {
		sec = 1
	}
	return sec
}
