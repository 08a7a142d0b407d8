// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	GRPCPort    string // empty disables the gRPC health server
	FrontendURL string
	CORSOrigins []string
	LogLevel    slog.Level

	StoreBackend string
	DBPath       string
	RosterPath   string // empty selects the built-in roster

	Monitor MonitorConfig
	// OverflowQueueBuffer is the extra queue room while overflow is active.
	OverflowQueueBuffer int
}

// MonitorConfig controls the scheduling loop.
type MonitorConfig struct {
	Interval        time.Duration
	LivenessWindow  time.Duration
	ReleaseOnExpiry bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		GRPCPort:     getEnv("GRPC_PORT", ""),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"*"}),
		LogLevel:     level,
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		DBPath:       getEnv("DB_PATH", "./data/chatqueue.db"),
		RosterPath:   getEnv("ROSTER_PATH", ""),
		Monitor: MonitorConfig{
			Interval:        getEnvDuration("MONITOR_INTERVAL", time.Second),
			LivenessWindow:  getEnvDuration("SESSION_LIVENESS", 3*time.Second),
			ReleaseOnExpiry: getEnvBool("RELEASE_ON_EXPIRY", false),
		},
		OverflowQueueBuffer: getEnvInt("OVERFLOW_QUEUE_BUFFER", 36),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty with the sqlite backend")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendMemory, BackendSQLite, c.StoreBackend)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL must be > 0")
	}
	if c.Monitor.LivenessWindow <= 0 {
		return fmt.Errorf("SESSION_LIVENESS must be > 0")
	}
	if c.OverflowQueueBuffer < 0 {
		return fmt.Errorf("OVERFLOW_QUEUE_BUFFER must be >= 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
