// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Heartbeat policies accepted by HEARTBEAT_MODE.
const (
	HeartbeatAck  = "ack"
	HeartbeatDrop = "drop"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string

	StoreDriver string
	DBPath      string
	RedisAddr   string
	SessionTTL  time.Duration

	AnthropicAPIKey   string
	AnthropicModel    string
	GenerationTimeout time.Duration

	HeartbeatMode   string
	RequiredAnswers int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		FrontendURL:       getEnv("FRONTEND_URL", ""),
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", StoreSQLite)),
		DBPath:            getEnv("DB_PATH", "./data/deckdraft.db"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		SessionTTL:        getEnvDuration("SESSION_TTL", 24*time.Hour),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:    getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		GenerationTimeout: getEnvDuration("GENERATION_TIMEOUT", 2*time.Minute),
		HeartbeatMode:     strings.ToLower(getEnv("HEARTBEAT_MODE", HeartbeatAck)),
		RequiredAnswers:   getEnvInt("REQUIRED_CLARIFICATIONS", 2),
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
	switch c.StoreDriver {
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty for the sqlite store")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty for the redis store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.HeartbeatMode {
	case HeartbeatAck, HeartbeatDrop:
	default:
		return fmt.Errorf("unknown HEARTBEAT_MODE %q", c.HeartbeatMode)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be > 0")
	}
	if c.RequiredAnswers <= 0 {
		return fmt.Errorf("REQUIRED_CLARIFICATIONS must be > 0")
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
