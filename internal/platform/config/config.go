package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" default:"development"`
	Port     string `env:"PORT" default:"8080"`
	RedisURL string `env:"REDIS_URL"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`
	MaxConnections    int           `env:"MAX_CONNECTIONS" default:"10000"`
	PublicTenantID    string        `env:"PUBLIC_TENANT_ID" default:"public"`

	WSRatePerSecond float64 `env:"WS_RATE_PER_SECOND" default:"5"`
	WSBurst         int     `env:"WS_BURST" default:"10"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	// REDIS_URL is deliberately optional: without it the service runs in
	// single-instance, local-only mode.
	if cfg.HeartbeatInterval < time.Second {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be at least 1s, got %s", cfg.HeartbeatInterval)
	}
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS must be positive, got %d", cfg.MaxConnections)
	}
	if cfg.PublicTenantID == "" {
		return fmt.Errorf("PUBLIC_TENANT_ID must not be empty")
	}
	if cfg.WSRatePerSecond <= 0 || cfg.WSBurst <= 0 {
		return fmt.Errorf("WS_RATE_PER_SECOND and WS_BURST must be positive")
	}
	return nil
}
