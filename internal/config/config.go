// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/afida/ingest/internal/util"
)

// knownPlaceholderTokens are example tokens that must be rejected in production.
var knownPlaceholderTokens = []string{
	"change-me",
	"changeme-outrank-token",
	"your-outrank-access-token",
	"REPLACE_WITH_OUTRANK_TOKEN",
}

// MinAccessTokenLength is the minimum length of the Outrank access token.
const MinAccessTokenLength = 16

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath     string `env:"AFIDA_DB_PATH" envDefault:"./data/afida.db"`
	ServerHost string `env:"AFIDA_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"AFIDA_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"AFIDA_ENV" envDefault:"development"`
	LogLevel   string `env:"AFIDA_LOG_LEVEL" envDefault:"info"`
	UploadsDir string `env:"AFIDA_UPLOADS_DIR" envDefault:"./uploads"`

	// Outrank webhook
	OutrankAccessToken string        `env:"AFIDA_OUTRANK_ACCESS_TOKEN"`
	RateLimit          int           `env:"AFIDA_RATE_LIMIT" envDefault:"100"`
	RateLimitWindow    time.Duration `env:"AFIDA_RATE_LIMIT_WINDOW" envDefault:"1h"`

	// Proxies whose X-Forwarded-For and X-Real-IP headers are believed.
	// Empty means the peer address is always the client.
	TrustedProxies []string `env:"AFIDA_TRUSTED_PROXIES" envSeparator:","`

	// Optional Redis for a rate limit shared between instances
	RedisURL    string `env:"AFIDA_REDIS_URL"`
	RedisPrefix string `env:"AFIDA_REDIS_PREFIX" envDefault:"afida:"`

	// Background jobs
	JobWorkers    int           `env:"AFIDA_JOB_WORKERS" envDefault:"3"`
	JobQueueSize  int           `env:"AFIDA_JOB_QUEUE_SIZE" envDefault:"100"`
	CoverTimeout  time.Duration `env:"AFIDA_COVER_TIMEOUT" envDefault:"10s"`
	CoverMaxBytes int64         `env:"AFIDA_COVER_MAX_BYTES" envDefault:"10485760"`

	RetentionDays int `env:"AFIDA_RETENTION_DAYS" envDefault:"90"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if the application is running in production mode.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisRateLimit returns true if the rate limit is kept in Redis.
func (c Config) UseRedisRateLimit() bool {
	return c.RedisURL != ""
}

// Retention is how long import runs, events and finished jobs are kept.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// TrustedProxyNets parses TrustedProxies into address blocks.
func (c Config) TrustedProxyNets() ([]*net.IPNet, error) {
	return util.ParseCIDRList(c.TrustedProxies)
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load parses environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.OutrankAccessToken == "" {
		slog.Warn("AFIDA_OUTRANK_ACCESS_TOKEN is not set; every webhook delivery will be rejected")
	}

	return cfg, nil
}

// Validate checks ranges and the access token.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("AFIDA_SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort))
	}
	if c.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("AFIDA_RATE_LIMIT must be positive, got %d", c.RateLimit))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, fmt.Errorf("AFIDA_RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow))
	}
	if c.JobWorkers <= 0 {
		errs = append(errs, fmt.Errorf("AFIDA_JOB_WORKERS must be positive, got %d", c.JobWorkers))
	}
	if c.JobQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("AFIDA_JOB_QUEUE_SIZE must be positive, got %d", c.JobQueueSize))
	}
	if c.CoverTimeout <= 0 {
		errs = append(errs, fmt.Errorf("AFIDA_COVER_TIMEOUT must be positive, got %s", c.CoverTimeout))
	}
	if c.CoverMaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("AFIDA_COVER_MAX_BYTES must be positive, got %d", c.CoverMaxBytes))
	}
	if c.RetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("AFIDA_RETENTION_DAYS must be positive, got %d", c.RetentionDays))
	}
	if _, err := c.TrustedProxyNets(); err != nil {
		errs = append(errs, fmt.Errorf("AFIDA_TRUSTED_PROXIES: %w", err))
	}
	if err := c.validateToken(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *Config) validateToken() error {
	token := c.OutrankAccessToken
	if token == "" {
		if c.IsProduction() {
			return errors.New("AFIDA_OUTRANK_ACCESS_TOKEN is required in production")
		}
		return nil
	}

	if len(token) < MinAccessTokenLength {
		return fmt.Errorf("AFIDA_OUTRANK_ACCESS_TOKEN must be at least %d bytes long, got %d bytes; "+
			"generate one with: openssl rand -hex 32", MinAccessTokenLength, len(token))
	}
	for _, placeholder := range knownPlaceholderTokens {
		if strings.EqualFold(token, placeholder) {
			return errors.New("AFIDA_OUTRANK_ACCESS_TOKEN is a known placeholder and must not be used")
		}
	}
	return nil
}
