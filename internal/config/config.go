// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

// Package config holds all application configuration, loaded with Koanf v2
// in three layers: built-in defaults, an optional YAML config file, and
// environment variables (highest priority).
//
// Config is immutable after Load() with one exception: GlobalPreferences,
// which the admin preferences endpoint may replace at runtime through the
// Preferences/SetPreferences accessors. Every core component reads the
// preferences snapshot through those accessors rather than ad hoc lookups.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/soundledger/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig           `koanf:"database"`
	Source   SourceConfig             `koanf:"source"`
	Sync     SyncConfig               `koanf:"sync"`
	Server   ServerConfig             `koanf:"server"`
	Logging  LoggingConfig            `koanf:"logging"`
	Prefs    models.GlobalPreferences `koanf:"preferences"`

	prefsMu sync.RWMutex
}

// DatabaseConfig holds DuckDB settings. A single database file carries the
// event store, the blacklist store, and the import job ledger so that cursor
// commits and event inserts share one durability domain.
type DatabaseConfig struct {
	// Path is the DuckDB file path, or ":memory:" for tests.
	Path string `koanf:"path"`

	// MaxMemory is DuckDB's memory limit (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// SourceConfig holds the external streaming-service connection settings.
type SourceConfig struct {
	// BaseURL of the streaming service history API.
	BaseURL string `koanf:"base_url"`

	// Token is the service API token.
	Token string `koanf:"token"`

	// Timeout bounds every fetch call so a stalled request never blocks
	// the scheduler from dispatching other users.
	Timeout time.Duration `koanf:"timeout"`

	// PageSize is the number of events requested per page.
	PageSize int `koanf:"page_size"`

	// RequestsPerSecond throttles outbound calls; 0 disables throttling.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// SyncConfig holds scheduler loop settings.
type SyncConfig struct {
	// Interval between import triggers per user.
	Interval time.Duration `koanf:"interval"`

	// Jitter is the maximum random delay added to each trigger to avoid
	// thundering-herd against the streaming service.
	Jitter time.Duration `koanf:"jitter"`

	// BackoffInitial is the first retry delay after a rate-limited job.
	BackoffInitial time.Duration `koanf:"backoff_initial"`

	// BackoffMax caps the exponential retry delay.
	BackoffMax time.Duration `koanf:"backoff_max"`

	// Users lists the streaming-service user identities to synchronize.
	Users []string `koanf:"users"`
}

// ServerConfig holds HTTP boundary settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimitPerMinute bounds requests per client IP on API routes.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Preferences returns the current global preferences snapshot.
func (c *Config) Preferences() models.GlobalPreferences {
	c.prefsMu.RLock()
	defer c.prefsMu.RUnlock()
	return c.Prefs
}

// SetPreferences replaces the global preferences snapshot. Called only by
// the admin preferences endpoint.
func (c *Config) SetPreferences(p models.GlobalPreferences) {
	c.prefsMu.Lock()
	defer c.prefsMu.Unlock()
	c.Prefs = p
}

// CanMutate is the single capability check consulted before any write path.
func (c *Config) CanMutate() bool {
	return c.Preferences().CanMutate()
}

// Validate checks the configuration for invalid values. Called by Load()
// after all layers are merged.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Source.PageSize <= 0 {
		return fmt.Errorf("source.page_size must be positive, got %d", c.Source.PageSize)
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be positive, got %s", c.Source.Timeout)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %s", c.Sync.Interval)
	}
	if c.Sync.Jitter < 0 {
		return fmt.Errorf("sync.jitter must not be negative, got %s", c.Sync.Jitter)
	}
	if c.Sync.BackoffMax < c.Sync.BackoffInitial {
		return fmt.Errorf("sync.backoff_max (%s) must be >= sync.backoff_initial (%s)",
			c.Sync.BackoffMax, c.Sync.BackoffInitial)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [0, 65535], got %d", c.Server.Port)
	}
	return nil
}
