package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{
		"PORT", "GIN_MODE", "SESSION_SECRET", "COOKIE_SECURE", "SESSION_IDLE_TIMEOUT",
		"SESSION_MAX_LIFETIME", "DATABASE_URL", "BCRYPT_COST", "REDIS_URL", "CORS_ALLOWED_ORIGINS", "TRUSTED_PROXIES",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Fatalf("Port = %q, want 8000", cfg.Port)
	}
	if cfg.SessionIdleTimeout != 15*time.Minute {
		t.Fatalf("SessionIdleTimeout = %v, want 15m", cfg.SessionIdleTimeout)
	}
	if !cfg.CookieSecure {
		t.Fatal("CookieSecure should default to true")
	}
	if cfg.DatabaseURL != "db.sqlite" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.BcryptCost != 10 {
		t.Fatalf("BcryptCost = %d, want 10", cfg.BcryptCost)
	}
	if cfg.AllowedOrigins() != nil {
		t.Fatalf("expected no CORS origins, got %v", cfg.AllowedOrigins())
	}
	if cfg.TrustedProxyList() != nil {
		t.Fatalf("expected no trusted proxies by default, got %v", cfg.TrustedProxyList())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("SESSION_IDLE_TIMEOUT", "30m")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/portal")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "9090" || cfg.CookieSecure || cfg.SessionIdleTimeout != 30*time.Minute {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.DatabaseURL != "postgres://u:p@localhost:5432/portal" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	proxies := cfg.TrustedProxyList()
	if len(proxies) != 2 || proxies[0] != "10.0.0.0/8" || proxies[1] != "127.0.0.1" {
		t.Fatalf("unexpected trusted proxies: %#v", proxies)
	}
	origins := cfg.AllowedOrigins()
	if len(origins) != 2 || origins[1] != "http://b.example" {
		t.Fatalf("unexpected origins: %#v", origins)
	}
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SESSION_IDLE_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.SessionIdleTimeout != 15*time.Minute {
		t.Fatalf("SessionIdleTimeout = %v, want fallback 15m", cfg.SessionIdleTimeout)
	}
}

func TestValidateReleaseRequiresSecret(t *testing.T) {
	cfg := &Config{
		Port:               "8000",
		GinMode:            "release",
		SessionSecret:      DefaultSessionSecret,
		DatabaseURL:        "db.sqlite",
		SessionIdleTimeout: time.Minute,
		BcryptCost:         10,
		LoginMaxAttempts:   5,
		LoginWindow:        time.Minute,
		LoginLockDuration:  time.Minute,
		RateLimitPerMinute: 10,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for default secret in release mode")
	}

	cfg.SessionSecret = "a-real-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadCost(t *testing.T) {
	cfg := &Config{
		Port:               "8000",
		DatabaseURL:        "db.sqlite",
		SessionIdleTimeout: time.Minute,
		BcryptCost:         99,
		LoginMaxAttempts:   5,
		LoginWindow:        time.Minute,
		LoginLockDuration:  time.Minute,
		RateLimitPerMinute: 10,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out of range bcrypt cost")
	}
}
