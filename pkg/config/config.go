// Package config loads server configuration from environment variables,
// optionally overlaid with a YAML deployment profile.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	// StoreDriver selects the ledger store: "sqlite" (default),
	// "postgres" or "memory".
	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	// RedisURL enables the shared head cache when set.
	RedisURL string

	// AnchorEndpoint enables distributed-ledger anchoring when set.
	AnchorEndpoint string

	// GatewayBase overrides the public artifact gateway base URL.
	GatewayBase string

	DuplicateWindow time.Duration

	RateLimitRPS   int
	RateLimitBurst int
}

// Load reads configuration from environment variables with defaults
// suitable for local development.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	driver := os.Getenv("GRAINTRACE_STORE")
	if driver == "" {
		driver = "sqlite"
	}

	sqlitePath := os.Getenv("GRAINTRACE_SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "data/ledger.db"
	}

	window := 5 * time.Minute
	if raw := os.Getenv("GRAINTRACE_DUPLICATE_WINDOW"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			window = d
		}
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		StoreDriver:     driver,
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      sqlitePath,
		RedisURL:        os.Getenv("GRAINTRACE_REDIS_URL"),
		AnchorEndpoint:  os.Getenv("GRAINTRACE_ANCHOR_ENDPOINT"),
		GatewayBase:     os.Getenv("GRAINTRACE_GATEWAY_BASE"),
		DuplicateWindow: window,
		RateLimitRPS:    envInt("GRAINTRACE_RATE_LIMIT_RPS", 50),
		RateLimitBurst:  envInt("GRAINTRACE_RATE_LIMIT_BURST", 100),
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
