package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	if cfg.AppName != "plataforma-hooks" {
		t.Errorf("AppName = %q, want %q", cfg.AppName, "plataforma-hooks")
	}
	if cfg.HTTPPort != ":8080" {
		t.Errorf("HTTPPort = %q, want %q", cfg.HTTPPort, ":8080")
	}
	if cfg.Retry.Base != time.Minute {
		t.Errorf("Retry.Base = %v, want %v", cfg.Retry.Base, time.Minute)
	}
	if cfg.Retry.MaxDelay != 24*time.Hour {
		t.Errorf("Retry.MaxDelay = %v, want %v", cfg.Retry.MaxDelay, 24*time.Hour)
	}
	if !cfg.Retry.RetryClientErrors {
		t.Error("Retry.RetryClientErrors = false, want true (reference behavior)")
	}
	if cfg.Breaker.Threshold != 5 {
		t.Errorf("Breaker.Threshold = %d, want 5", cfg.Breaker.Threshold)
	}
	if cfg.Breaker.Cooldown != 15*time.Minute {
		t.Errorf("Breaker.Cooldown = %v, want %v", cfg.Breaker.Cooldown, 15*time.Minute)
	}
	if cfg.Defaults.MaxAttempts != 3 {
		t.Errorf("Defaults.MaxAttempts = %d, want 3", cfg.Defaults.MaxAttempts)
	}
	if cfg.Defaults.Timeout != 30*time.Second {
		t.Errorf("Defaults.Timeout = %v, want %v", cfg.Defaults.Timeout, 30*time.Second)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(Config) bool
	}{
		{
			name:  "app name",
			key:   "APP_NAME",
			value: "custom-hooks",
			check: func(c Config) bool { return c.AppName == "custom-hooks" },
		},
		{
			name:  "retry base",
			key:   "RETRY_BASE",
			value: "30s",
			check: func(c Config) bool { return c.Retry.Base == 30*time.Second },
		},
		{
			name:  "breaker threshold",
			key:   "BREAKER_THRESHOLD",
			value: "10",
			check: func(c Config) bool { return c.Breaker.Threshold == 10 },
		},
		{
			name:  "retry client errors off",
			key:   "RETRY_CLIENT_ERRORS",
			value: "false",
			check: func(c Config) bool { return !c.Retry.RetryClientErrors },
		},
		{
			name:  "jitter percent",
			key:   "RETRY_JITTER_PCT",
			value: "0.25",
			check: func(c Config) bool { return c.Retry.JitterPercent == 0.25 },
		},
		{
			name:  "worker pool size",
			key:   "WORKER_POOL_SIZE",
			value: "32",
			check: func(c Config) bool { return c.Worker.PoolSize == 32 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg := FromEnv()
			if !tt.check(cfg) {
				t.Errorf("FromEnv() did not pick up %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("RETRY_BASE", "not-a-duration")
	t.Setenv("BREAKER_THRESHOLD", "many")
	t.Setenv("RETRY_JITTER_PCT", "nope")

	cfg := FromEnv()
	if cfg.Retry.Base != time.Minute {
		t.Errorf("invalid RETRY_BASE: got %v, want default %v", cfg.Retry.Base, time.Minute)
	}
	if cfg.Breaker.Threshold != 5 {
		t.Errorf("invalid BREAKER_THRESHOLD: got %d, want default 5", cfg.Breaker.Threshold)
	}
	if cfg.Retry.JitterPercent != 0 {
		t.Errorf("invalid RETRY_JITTER_PCT: got %v, want default 0", cfg.Retry.JitterPercent)
	}
}

func TestDSN(t *testing.T) {
	cfg := Config{DB: DB{User: "u", Pass: "p", Host: "h", Port: "5433", Name: "hooks"}}
	want := "postgres://u:p@h:5433/hooks?sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
