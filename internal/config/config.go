package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all adaptive-dbn configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Learner  LearnerConfig  `yaml:"learner"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig locates the snapshot store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the gRPC surface.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"` // empty disables /metrics
	// CommitEvery snapshots the network after this many successful updates.
	// 0 disables automatic snapshots.
	CommitEvery int `yaml:"commit_every"`
}

// LearnerConfig configures the online learner.
type LearnerConfig struct {
	LearningRate float64 `yaml:"learning_rate"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "adaptive_dbn.db"},
		Server: ServerConfig{
			Addr:        "localhost:50061",
			CommitEvery: 50,
		},
		Learner: LearnerConfig{LearningRate: 0.1},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks values the rest of the program relies on.
func (c *Config) Validate() error {
	if lr := c.Learner.LearningRate; !(lr > 0 && lr <= 1) {
		return fmt.Errorf("learner.learning_rate %v not in (0, 1]", lr)
	}
	if c.Server.CommitEvery < 0 {
		return fmt.Errorf("server.commit_every must not be negative")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("DBN_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("DBN_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DBN_METRICS_ADDR"); v != "" {
		c.Server.MetricsAddr = v
	}
	if v := os.Getenv("DBN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DBN_LEARNING_RATE"); v != "" {
		lr, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DBN_LEARNING_RATE: %w", err)
		}
		c.Learner.LearningRate = lr
	}
	return nil
}
