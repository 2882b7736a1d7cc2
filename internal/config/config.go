// Package config loads and validates the cloudlens configuration: an
// optional YAML file with environment-variable overrides on top of
// defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/catherinevee/cloudlens/internal/logger"
)

// Config is the program configuration.
type Config struct {
	Log    logger.Config `yaml:"log"`
	Store  StoreConfig   `yaml:"store"`
	Ingest IngestConfig  `yaml:"ingest"`
	Audit  AuditConfig   `yaml:"audit"`
}

// StoreConfig selects the snapshot store backend.
type StoreConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// IngestConfig bounds the ingestion pipeline.
type IngestConfig struct {
	// Ceiling bounds the wall-clock time of one ingest run; zero means
	// unbounded.
	Ceiling time.Duration `yaml:"ceiling"`
}

// AuditConfig parameterises audit passes.
type AuditConfig struct {
	RequiredTags []string `yaml:"requiredTags" validate:"max=64,dive,min=1"`
}

// Default returns the built-in configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Log: logger.Config{Level: "info", Format: "console", Output: "stderr"},
		Store: StoreConfig{
			Path: homeDir + "/.cloudlens/cloudlens.db",
		},
		Ingest: IngestConfig{Ceiling: 10 * time.Minute},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv layers CLOUDLENS_* variables over the file values.
func applyEnv(cfg *Config) {
	if value := os.Getenv("CLOUDLENS_LOG_LEVEL"); value != "" {
		cfg.Log.Level = value
	}
	if value := os.Getenv("CLOUDLENS_LOG_FORMAT"); value != "" {
		cfg.Log.Format = value
	}
	if value := os.Getenv("CLOUDLENS_STORE_PATH"); value != "" {
		cfg.Store.Path = value
	}
	if value := os.Getenv("CLOUDLENS_INGEST_CEILING_SECONDS"); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
			cfg.Ingest.Ceiling = time.Duration(seconds) * time.Second
		}
	}
}
