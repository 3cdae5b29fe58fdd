package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default tick cadence of the renewal scheduler. Overridable via
// RENEWAL_TICK_INTERVAL for operational tuning; the loop itself never
// changes cadence at runtime.
const DefaultTickInterval = 1 * time.Hour

// AppConfig holds all configuration for the renewal service.
type AppConfig struct {
	DatabaseURL    string
	LogLevel       string
	Environment    string
	TickInterval   time.Duration
	HTTPListenAddr string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	cfg.TickInterval = DefaultTickInterval
	if raw := os.Getenv("RENEWAL_TICK_INTERVAL"); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid RENEWAL_TICK_INTERVAL: %w", err)
		}
		if interval <= 0 {
			return nil, fmt.Errorf("RENEWAL_TICK_INTERVAL must be positive, got %s", interval)
		}
		cfg.TickInterval = interval
	}

	cfg.HTTPListenAddr = os.Getenv("HTTP_LISTEN_ADDR")
	if cfg.HTTPListenAddr == "" {
		cfg.HTTPListenAddr = ":8080"
	}

	return cfg, nil
}
