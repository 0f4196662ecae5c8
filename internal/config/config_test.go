package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

var envKeys = []string{
	"PORT", "LOG_LEVEL", "DATABASE_URL", "REDIS_URL", "PRODUCT_CACHE_TTL",
	"NATS_URL", "FULFILLMENT_SUBJECT", "LOCK_TIMEOUT", "REQUIRE_OPPOSING_BID",
	"READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "SHUTDOWN_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.DatabaseURL != "" || cfg.RedisURL != "" || cfg.NATSURL != "" {
		t.Errorf("external URLs should default to empty: %+v", cfg)
	}
	if cfg.FulfillmentSubject != "kicks.fulfillment.events" {
		t.Errorf("FulfillmentSubject = %q", cfg.FulfillmentSubject)
	}
	if cfg.ProductCacheTTL != 30*time.Second {
		t.Errorf("ProductCacheTTL = %v, want 30s", cfg.ProductCacheTTL)
	}
	if cfg.LockTimeout != 5*time.Second {
		t.Errorf("LockTimeout = %v, want 5s", cfg.LockTimeout)
	}
	if !cfg.RequireOpposingBid {
		t.Error("RequireOpposingBid should default to true")
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://kicks@localhost/kicks")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("FULFILLMENT_SUBJECT", "warehouse.events")
	t.Setenv("LOCK_TIMEOUT", "750ms")
	t.Setenv("REQUIRE_OPPOSING_BID", "false")
	t.Setenv("READ_TIMEOUT", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel = %v, want debug", cfg.SlogLevel())
	}
	if cfg.DatabaseURL != "postgres://kicks@localhost/kicks" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.FulfillmentSubject != "warehouse.events" {
		t.Errorf("FulfillmentSubject = %q", cfg.FulfillmentSubject)
	}
	if cfg.LockTimeout != 750*time.Millisecond {
		t.Errorf("LockTimeout = %v, want 750ms", cfg.LockTimeout)
	}
	if cfg.RequireOpposingBid {
		t.Error("RequireOpposingBid should be false")
	}
	if cfg.ReadTimeout != 2*time.Second {
		t.Errorf("ReadTimeout = %v, want 2s", cfg.ReadTimeout)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                 "eighty",
		"LOG_LEVEL":            "verbose",
		"LOCK_TIMEOUT":         "0s",
		"REQUIRE_OPPOSING_BID": "maybe",
		"PRODUCT_CACHE_TTL":    "soon",
		"SHUTDOWN_TIMEOUT":     "5",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Errorf("%s=%q should be rejected", key, val)
			}
		})
	}

	clearEnv(t)
	t.Setenv("PORT", "70000")
	if _, err := Load(); err == nil {
		t.Error("out-of-range PORT should be rejected")
	}
}
