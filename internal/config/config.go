// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	DatabasePath       string `env:"DATABASE_PATH" envDefault:"archiver.db"`
	DownloadsPath      string `env:"DOWNLOADS_PATH" envDefault:"/downloads"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`
	SegmentConcurrency int    `env:"SEGMENT_CONCURRENCY" envDefault:"10"`
	LivePollSeconds    int    `env:"LIVE_POLL_SECONDS" envDefault:"5"`
	LiveEndWaitMinutes int    `env:"LIVE_END_WAIT_MINUTES" envDefault:"0"`
	HTTPTimeoutSeconds int    `env:"HTTP_TIMEOUT_SECONDS" envDefault:"300"`
	ServerPort         string `env:"SERVER_PORT" envDefault:"8080"`
}

// minLivePoll is the floor for the live playlist polling cadence.
const minLivePoll = 2 * time.Second

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	logLevel := strings.ToLower(c.LogLevel)
	isValidLevel := false
	for _, level := range validLogLevels {
		if logLevel == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("invalid log level %q, must be one of: %v", c.LogLevel, validLogLevels)
	}

	if c.DownloadsPath == "" {
		return fmt.Errorf("DOWNLOADS_PATH cannot be empty")
	}

	cleanPath := filepath.Clean(c.DownloadsPath)
	if !filepath.IsAbs(cleanPath) {
		return fmt.Errorf("DOWNLOADS_PATH must be an absolute path, got: %s", c.DownloadsPath)
	}

	if info, err := os.Stat(cleanPath); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("DOWNLOADS_PATH must be a directory, got file: %s", cleanPath)
		}
	}
	c.DownloadsPath = cleanPath

	if c.SegmentConcurrency < 1 {
		return fmt.Errorf("SEGMENT_CONCURRENCY must be at least 1, got: %d", c.SegmentConcurrency)
	}

	if c.LiveEndWaitMinutes < 0 {
		return fmt.Errorf("LIVE_END_WAIT_MINUTES cannot be negative, got: %d", c.LiveEndWaitMinutes)
	}

	if c.HTTPTimeoutSeconds < 1 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be at least 1, got: %d", c.HTTPTimeoutSeconds)
	}

	if port, err := strconv.Atoi(c.ServerPort); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %s", c.ServerPort)
	}

	return nil
}

// LivePollInterval returns the live polling cadence, clamped to the
// 2-second floor.
func (c *Config) LivePollInterval() time.Duration {
	d := time.Duration(c.LivePollSeconds) * time.Second
	if d < minLivePoll {
		return minLivePoll
	}
	return d
}

// LiveEndWait returns how long a finished live task keeps waiting for
// the stream to come back. Zero means stop immediately.
func (c *Config) LiveEndWait() time.Duration {
	return time.Duration(c.LiveEndWaitMinutes) * time.Minute
}

// HTTPTimeout returns the per-request timeout for segment and manifest
// fetches.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}
