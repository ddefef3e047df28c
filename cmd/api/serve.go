package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/yourusername/login-portal/internal/auth"
	"github.com/yourusername/login-portal/internal/config"
	"github.com/yourusername/login-portal/internal/database"
	"github.com/yourusername/login-portal/internal/flash"
	"github.com/yourusername/login-portal/internal/metrics"
	"github.com/yourusername/login-portal/internal/middleware"
	"github.com/yourusername/login-portal/internal/pages"
	"github.com/yourusername/login-portal/internal/password"
	"github.com/yourusername/login-portal/internal/session"
	"github.com/yourusername/login-portal/internal/users"
)

func runServe(cmd *cobra.Command, _ []string) error {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	ctx := cmd.Context()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	attempts, closeAttempts, err := setupAttempts(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAttempts()

	sessionOpts := sessionOptions(cfg)
	store, closeStore, err := setupSessionStore(cfg, sessionOpts)
	if err != nil {
		return err
	}
	defer closeStore()

	hasher := password.NewBcrypt(cfg.BcryptCost)
	svc := users.NewService(db.UserRepository(), hasher)
	router, stop, err := newRouter(cfg, svc, attempts, store)
	if err != nil {
		return err
	}
	defer stop()

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting login portal on %s (mode: %s, database: %s, bcrypt cost: %d)", addr, cfg.GinMode, db.Dialect, hasher.Cost())
	if !cfg.CookieSecure {
		log.Printf("WARNING: COOKIE_SECURE=false, session cookies will be sent over plain HTTP")
	}
	if err := router.Run(addr); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// openDatabase は接続を開き、未適用のマイグレーションを適用します。
// 既存データを消去することはありません。
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// setupAttempts はログイン試行の保存先を選びます。REDIS_URL があれば Redis、なければメモリです。
func setupAttempts(ctx context.Context, cfg *config.Config) (auth.AttemptTracker, func(), error) {
	policy := auth.AttemptPolicy{
		MaxAttempts:  cfg.LoginMaxAttempts,
		Window:       cfg.LoginWindow,
		LockDuration: cfg.LoginLockDuration,
	}
	if cfg.RedisURL == "" {
		m := auth.NewMemoryAttempts(policy)
		return m, m.Stop, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	redisClient := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
	}

	return auth.NewRedisAttempts(redisClient, policy), func() { _ = redisClient.Close() }, nil
}

func sessionOptions(cfg *config.Config) session.Options {
	return session.Options{
		Secret:      cfg.SessionSecret,
		Secure:      cfg.CookieSecure,
		IdleTimeout: cfg.SessionIdleTimeout,
		MaxLifetime: cfg.SessionMaxLifetime,
	}
}

// setupSessionStore はセッションの保存先を選びます。REDIS_URL があれば Redis、なければメモリです。
func setupSessionStore(cfg *config.Config, opts session.Options) (sessions.Store, func(), error) {
	if cfg.RedisURL == "" {
		store := session.NewMemoryStore(opts)
		return store, store.Stop, nil
	}
	return session.NewRedisStore(opts, cfg.RedisURL)
}

// newRouter はミドルウェアとルートを配線したルーターを返します。
// 戻り値の関数でバックグラウンド処理を停止します。
func newRouter(cfg *config.Config, svc auth.UserService, attempts auth.AttemptTracker, store sessions.Store) (*gin.Engine, func(), error) {
	// デフォルトミドルウェア: Logger, Recovery
	router := gin.Default()
	// 空リストならクライアントIPは接続元アドレスのみから決まる
	if err := router.SetTrustedProxies(cfg.TrustedProxyList()); err != nil {
		return nil, nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	router.SetHTMLTemplate(pages.Templates())
	router.Use(middleware.RequestID(), middleware.SecurityHeaders())

	// CORSミドルウェアの設定（許可オリジンがある場合のみ）
	if origins := cfg.AllowedOrigins(); len(origins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
		router.Use(cors.New(corsConfig))
	}

	var recorder metrics.Recorder = metrics.Nop{}
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		recorder = metrics.NewCollector(reg)
		// セッションを読み込む前に登録する
		router.GET("/metrics", gin.WrapH(metrics.Handler(reg)))
	}

	router.Use(session.Middleware(store))

	manager := auth.NewManager(auth.Deps{
		Users:    svc,
		Sessions: session.NewManager(sessionOptions(cfg)),
		Flash:    flash.New(),
		Attempts: attempts,
		Metrics:  recorder,
		Logger:   log.Default(),
	})

	limiter := middleware.NewRateLimiter(middleware.PerMinute(cfg.RateLimitPerMinute), manager.RateLimited)
	manager.RegisterRoutes(router, limiter.Middleware())

	return router, limiter.Stop, nil
}
