// Package config loads the process configuration from the environment.
// main loads .env files via godotenv before calling Load, so everything
// here reads plain environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable the process understands.
type Config struct {
	HTTPPort string

	// Store
	DatabaseURL string

	// Event bus. Empty disables the bus entirely (heartbeat-only mode).
	RedisURL string

	// External orchestration collaborator (reverse-proxy target and the
	// queue worker's trigger endpoint).
	AIEngineURL string

	// Bearer token for protected routes. Empty disables auth.
	APIToken string

	// Agents the dispatcher may execute tasks for. Empty means all.
	ExecutorAgents []string

	// Browser origins allowed by CORS and the WebSocket upgrade.
	AllowedOrigins []string

	HeartbeatInterval time.Duration
	DispatchInterval  time.Duration

	// Per-request deadline for HTTP handlers.
	RequestTimeout time.Duration

	// WebSocket tuning.
	WriteWait     time.Duration
	PongWait      time.Duration
	HubSendBuffer int

	// Snapshot assembly.
	SnapshotMessagesLimit int
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:              getEnvOrDefault("HTTP_PORT", "8080"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		AIEngineURL:           getEnvOrDefault("AI_ENGINE_URL", "http://localhost:8000"),
		APIToken:              os.Getenv("API_TOKEN"),
		ExecutorAgents:        splitList(os.Getenv("EXECUTOR_AGENTS")),
		AllowedOrigins:        splitList(getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000")),
		HeartbeatInterval:     30 * time.Second,
		DispatchInterval:      2 * time.Second,
		RequestTimeout:        30 * time.Second,
		WriteWait:             10 * time.Second,
		PongWait:              60 * time.Second,
		HubSendBuffer:         256,
		SnapshotMessagesLimit: 20,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	var err error
	if cfg.HeartbeatInterval, err = durationEnv("HEARTBEAT_INTERVAL", cfg.HeartbeatInterval); err != nil {
		return nil, err
	}
	if cfg.DispatchInterval, err = durationEnv("DISPATCH_INTERVAL", cfg.DispatchInterval); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return nil, err
	}
	if cfg.WriteWait, err = durationEnv("WRITE_WAIT", cfg.WriteWait); err != nil {
		return nil, err
	}
	if cfg.PongWait, err = durationEnv("PONG_WAIT", cfg.PongWait); err != nil {
		return nil, err
	}
	if cfg.HubSendBuffer, err = intEnv("HUB_SEND_BUFFER", cfg.HubSendBuffer); err != nil {
		return nil, err
	}
	if cfg.SnapshotMessagesLimit, err = intEnv("SNAPSHOT_MESSAGES_LIMIT", cfg.SnapshotMessagesLimit); err != nil {
		return nil, err
	}

	return cfg, nil
}

// PingPeriod is the interval between WebSocket pings: 9/10 of the pong wait
// so a ping is always in flight before the peer's read deadline expires.
func (c *Config) PingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func durationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
