// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/soundledger/internal/models"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/soundledger/config.yaml",
	"/etc/soundledger/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:      "/data/soundledger.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Source: SourceConfig{
			BaseURL:           "",
			Token:             "",
			Timeout:           30 * time.Second,
			PageSize:          50,
			RequestsPerSecond: 4,
		},
		Sync: SyncConfig{
			Interval:       15 * time.Minute,
			Jitter:         30 * time.Second,
			BackoffInitial: time.Minute,
			BackoffMax:     time.Hour,
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       30 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			RateLimitPerMinute: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Prefs: models.GlobalPreferences{
			AllowRegistrations: true,
			AllowAffinity:      true,
			OfflineMode:        false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in values
//  2. Config file: optional YAML (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment variables: highest priority
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// SOURCE_BASE_URL -> source.base_url, SYNC_INTERVAL -> sync.interval
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file, env override first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envSections are the top-level config sections recognized as env prefixes.
var envSections = []string{"database", "source", "sync", "server", "logging", "preferences"}

// legacyEnvMappings maps flat environment variable names kept for
// compatibility with the original deployment docs.
var legacyEnvMappings = map[string]string{
	"offline_mode":        "preferences.offline_mode",
	"allow_registrations": "preferences.allow_registrations",
	"allow_affinity":      "preferences.allow_affinity",
	"duckdb_path":         "database.path",
	"http_port":           "server.port",
	"log_level":           "logging.level",
	"log_format":          "logging.format",
}

// envTransformFunc maps environment variable names to koanf config paths:
// SOURCE_BASE_URL -> source.base_url, DATABASE_MAX_MEMORY -> database.max_memory.
// Variables matching neither a section prefix nor a legacy name are ignored.
func envTransformFunc(key string) string {
	lower := strings.ToLower(key)

	if path, ok := legacyEnvMappings[lower]; ok {
		return path
	}
	for _, section := range envSections {
		prefix := section + "_"
		if strings.HasPrefix(lower, prefix) {
			return section + "." + strings.TrimPrefix(lower, prefix)
		}
	}
	return "" // Not a SoundLedger variable
}
