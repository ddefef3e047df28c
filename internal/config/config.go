// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// DefaultSessionSecret は SESSION_SECRET 未設定時に使うローカル開発用の署名鍵です。
const DefaultSessionSecret = "your-secret-key"

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // HTTPサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// セッション設定
	SessionSecret      string        // セッション署名用の秘密鍵
	CookieSecure       bool          // セッションCookieに Secure 属性を付けるか
	SessionIdleTimeout time.Duration // 最終アクセスからの有効期限
	SessionMaxLifetime time.Duration // ログインからの絶対有効期限

	// ストレージ設定
	DatabaseURL string // SQLiteファイルパス、または postgres:// URL

	// 認証設定
	BcryptCost        int           // bcrypt のコスト
	LoginMaxAttempts  int           // ロックまでの失敗回数
	LoginWindow       time.Duration // 失敗回数を数える期間
	LoginLockDuration time.Duration // ロック期間
	RedisURL          string        // ログイン試行状態の保存先（空ならメモリ）

	// レート制限
	RateLimitPerMinute int // /login, /register へのPOST上限（IP単位）

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り、空なら無効）

	// X-Forwarded-For を信頼するプロキシ（カンマ区切りのIP/CIDR、空なら信頼しない）
	TrustedProxies string

	// メトリクス
	MetricsEnabled bool // /metrics を公開するか
}

// Load は環境変数から設定を読み込みます。
// .env.local と .env が存在する場合はそこから読み込みます（既存の環境変数が優先）。
func Load() (*Config, error) {
	loadEnvFiles()

	config := &Config{
		Port:    getEnv("PORT", "8000"),
		GinMode: getEnv("GIN_MODE", "debug"),

		SessionSecret:      getEnv("SESSION_SECRET", DefaultSessionSecret),
		CookieSecure:       getEnvAsBool("COOKIE_SECURE", true),
		SessionIdleTimeout: getEnvAsDuration("SESSION_IDLE_TIMEOUT", 15*time.Minute),
		SessionMaxLifetime: getEnvAsDuration("SESSION_MAX_LIFETIME", 12*time.Hour),

		DatabaseURL: getEnv("DATABASE_URL", "db.sqlite"),

		BcryptCost:        getEnvAsInt("BCRYPT_COST", bcrypt.DefaultCost),
		LoginMaxAttempts:  getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindow:       getEnvAsDuration("LOGIN_WINDOW", 15*time.Minute),
		LoginLockDuration: getEnvAsDuration("LOGIN_LOCK_DURATION", 10*time.Minute),
		RedisURL:          getEnv("REDIS_URL", ""),

		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		TrustedProxies:     getEnv("TRUSTED_PROXIES", ""),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFiles() {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err == nil {
			continue
		}

		cwd, err := os.Getwd()
		if err != nil {
			continue
		}
		parent := filepath.Dir(cwd)
		if parent == "" || parent == cwd {
			continue
		}
		_ = godotenv.Load(filepath.Join(parent, name))
	}
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}
	if c.SessionMaxLifetime < 0 {
		return fmt.Errorf("SESSION_MAX_LIFETIME must not be negative")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.LoginMaxAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive")
	}
	if c.LoginWindow <= 0 || c.LoginLockDuration <= 0 {
		return fmt.Errorf("LOGIN_WINDOW and LOGIN_LOCK_DURATION must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}

	// 本番環境ではデフォルトの署名鍵を許可しない
	if c.GinMode == "release" {
		if c.SessionSecret == "" || c.SessionSecret == DefaultSessionSecret {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
	}

	return nil
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。未設定なら nil です。
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// TrustedProxyList は信頼するプロキシを配列で返します。未設定なら nil（どのプロキシも信頼しない）です。
func (c *Config) TrustedProxyList() []string {
	return splitList(c.TrustedProxies)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（例: 15m）。
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
