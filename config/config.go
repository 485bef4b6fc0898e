package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Runtime    RuntimeConfig    `mapstructure:"runtime"`
	Session    SessionConfig    `mapstructure:"session"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	Challenges ChallengeConfig  `mapstructure:"challenges"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// RuntimeConfig holds container runtime configuration
type RuntimeConfig struct {
	Backend         string `mapstructure:"backend"`
	Image           string `mapstructure:"image"`
	MemoryMB        int    `mapstructure:"memory_mb"`
	CPUQuotaPercent int    `mapstructure:"cpu_quota_percent"`
	TmpfsSizeMB     int    `mapstructure:"tmpfs_size_mb"`
	NetworkEnabled  bool   `mapstructure:"network_enabled"`
	StopTimeoutSec  int    `mapstructure:"stop_timeout_sec"`
}

// SessionConfig holds sandbox session configuration
type SessionConfig struct {
	TTLSec        int    `mapstructure:"ttl_sec"`
	StorePath     string `mapstructure:"store_path"`
	ReapSchedule  string `mapstructure:"reap_schedule"`
	MaxCommandLen int    `mapstructure:"max_command_len"`
}

// EvaluationConfig holds output evaluation configuration
type EvaluationConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// ChallengeConfig holds challenge catalog configuration
type ChallengeConfig struct {
	Path string `mapstructure:"path"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("server.transport", "stdio")
	viper.SetDefault("server.http_port", 8080)

	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")

	viper.SetDefault("runtime.backend", "docker")
	viper.SetDefault("runtime.image", "ubuntu:22.04")
	viper.SetDefault("runtime.memory_mb", 512)
	viper.SetDefault("runtime.cpu_quota_percent", 50)
	viper.SetDefault("runtime.tmpfs_size_mb", 100)
	viper.SetDefault("runtime.network_enabled", true)
	viper.SetDefault("runtime.stop_timeout_sec", 10)

	viper.SetDefault("session.ttl_sec", 3600)
	viper.SetDefault("session.store_path", "shellbox.db")
	viper.SetDefault("session.reap_schedule", "@every 1m")
	viper.SetDefault("session.max_command_len", 1000)

	viper.SetDefault("evaluation.similarity_threshold", 0.7)

	viper.SetDefault("challenges.path", "challenges.yaml")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Runtime.Backend != "docker" && c.Runtime.Backend != "podman" {
		return fmt.Errorf("unsupported runtime.backend: %s", c.Runtime.Backend)
	}

	if c.Runtime.Image == "" {
		return fmt.Errorf("runtime.image must not be empty")
	}

	if c.Runtime.MemoryMB <= 0 {
		return fmt.Errorf("runtime.memory_mb must be positive, got: %d", c.Runtime.MemoryMB)
	}

	if c.Runtime.CPUQuotaPercent <= 0 || c.Runtime.CPUQuotaPercent > 100 {
		return fmt.Errorf("runtime.cpu_quota_percent must be in (0, 100], got: %d", c.Runtime.CPUQuotaPercent)
	}

	if c.Runtime.TmpfsSizeMB <= 0 {
		return fmt.Errorf("runtime.tmpfs_size_mb must be positive, got: %d", c.Runtime.TmpfsSizeMB)
	}

	if c.Runtime.StopTimeoutSec <= 0 {
		return fmt.Errorf("runtime.stop_timeout_sec must be positive, got: %d", c.Runtime.StopTimeoutSec)
	}

	if c.Session.TTLSec <= 0 {
		return fmt.Errorf("session.ttl_sec must be positive, got: %d", c.Session.TTLSec)
	}

	if c.Session.StorePath == "" {
		return fmt.Errorf("session.store_path must not be empty")
	}

	if c.Session.MaxCommandLen <= 0 {
		return fmt.Errorf("session.max_command_len must be positive, got: %d", c.Session.MaxCommandLen)
	}

	if _, err := cron.ParseStandard(c.Session.ReapSchedule); err != nil {
		return fmt.Errorf("invalid session.reap_schedule: %s: %w", c.Session.ReapSchedule, err)
	}

	if c.Evaluation.SimilarityThreshold <= 0 || c.Evaluation.SimilarityThreshold > 1 {
		return fmt.Errorf("evaluation.similarity_threshold must be in (0, 1], got: %f", c.Evaluation.SimilarityThreshold)
	}

	return nil
}

// SessionTTL returns the session time-to-live as a duration
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLSec) * time.Second
}

// StopTimeout returns the container stop grace period as a duration
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Runtime.StopTimeoutSec) * time.Second
}
