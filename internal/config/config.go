// Package config loads service configuration from the environment.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Sandbox   SandboxConfig
	Fetch     FetchConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8090"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// SandboxConfig holds execution-engine configuration.
type SandboxConfig struct {
	DeadlineMs      int64 `envconfig:"SANDBOX_DEADLINE_MS" default:"5000"`
	OuterBufferMs   int64 `envconfig:"SANDBOX_OUTER_BUFFER_MS" default:"250"`
	MaxCallStack    int   `envconfig:"SANDBOX_MAX_CALL_STACK" default:"1024"`
	EnableConsole   bool  `envconfig:"SANDBOX_ENABLE_CONSOLE" default:"true"`
	PoolSize        int   `envconfig:"SANDBOX_POOL_SIZE" default:"1"`
	HostCallTimeout int64 `envconfig:"SANDBOX_HOST_CALL_TIMEOUT_MS" default:"10000"`
}

// FetchConfig holds outbound HTTP capability configuration.
type FetchConfig struct {
	TimeoutMs         int64   `envconfig:"FETCH_TIMEOUT_MS" default:"10000"`
	MaxRetries        int     `envconfig:"FETCH_MAX_RETRIES" default:"3"`
	RequestsPerSecond float64 `envconfig:"FETCH_RPS" default:"10"`
	MaxResponseBytes  int64   `envconfig:"FETCH_MAX_RESPONSE_BYTES" default:"1048576"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8090",
			Host: "0.0.0.0",
		},
		Sandbox: SandboxConfig{
			DeadlineMs:      5000,
			OuterBufferMs:   250,
			MaxCallStack:    1024,
			EnableConsole:   true,
			PoolSize:        1,
			HostCallTimeout: 10000,
		},
		Fetch: FetchConfig{
			TimeoutMs:         10000,
			MaxRetries:        3,
			RequestsPerSecond: 10,
			MaxResponseBytes:  1 << 20,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
