package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// defaults pins every key for a test; t.Setenv cannot unset a variable.
var defaults = map[string]string{
	"PORT":                  "8080",
	"GRPC_PORT":             "",
	"FRONTEND_URL":          "",
	"CORS_ORIGINS":          "",
	"LOG_LEVEL":             "info",
	"STORE_BACKEND":         "memory",
	"DB_PATH":               "./data/chatqueue.db",
	"ROSTER_PATH":           "",
	"MONITOR_INTERVAL":      "1s",
	"SESSION_LIVENESS":      "3s",
	"RELEASE_ON_EXPIRY":     "false",
	"OVERFLOW_QUEUE_BUFFER": "36",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for k, v := range defaults {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.GRPCPort)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 3*time.Second, cfg.Monitor.LivenessWindow)
	assert.False(t, cfg.Monitor.ReleaseOnExpiry)
	assert.Equal(t, 36, cfg.OverflowQueueBuffer)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GRPC_PORT", "9090")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("MONITOR_INTERVAL", "250ms")
	t.Setenv("SESSION_LIVENESS", "5s")
	t.Setenv("RELEASE_ON_EXPIRY", "yes")
	t.Setenv("OVERFLOW_QUEUE_BUFFER", "24")
	t.Setenv("FRONTEND_URL", "https://chat.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.GRPCPort)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.Interval)
	assert.Equal(t, 5*time.Second, cfg.Monitor.LivenessWindow)
	assert.True(t, cfg.Monitor.ReleaseOnExpiry)
	assert.Equal(t, 24, cfg.OverflowQueueBuffer)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]struct {
		key, value string
	}{
		"unknown backend":   {"STORE_BACKEND", "redis"},
		"empty port":        {"PORT", ""},
		"bad log level":     {"LOG_LEVEL", "chatty"},
		"zero interval":     {"MONITOR_INTERVAL", "0s"},
		"negative buffer":   {"OVERFLOW_QUEUE_BUFFER", "-1"},
		"negative liveness": {"SESSION_LIVENESS", "-3s"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestUnparseableValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONITOR_INTERVAL", "soon")
	t.Setenv("OVERFLOW_QUEUE_BUFFER", "lots")
	t.Setenv("RELEASE_ON_EXPIRY", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 36, cfg.OverflowQueueBuffer)
	assert.False(t, cfg.Monitor.ReleaseOnExpiry)
}
