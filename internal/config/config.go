// Package config loads LuminMQ's runtime configuration from environment
// variables (with an optional .env file for local development), in the
// style of the services this one descends from: caarlos0/env for typed
// parsing, joho/godotenv for the optional file, zerolog for the load log.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every tunable LuminMQ reads at startup. Only Addr and
// TickInterval are named as required tunables; everything else has a
// sensible default.
type Config struct {
	// Core listener
	Addr         string        `env:"LUMINMQ_ADDR" envDefault:"0.0.0.0:8080"`
	TickInterval time.Duration `env:"LUMINMQ_TICK_INTERVAL" envDefault:"1s"`

	MaxFrameBytes  int `env:"LUMINMQ_MAX_FRAME_BYTES" envDefault:"16777216"`
	MaxConnections int `env:"LUMINMQ_MAX_CONNECTIONS" envDefault:"10000"`

	// AcceptsPerSecond/AcceptBurst bound the sustained and bursty rate at
	// which the dispatcher admits newly accepted connections. Zero
	// disables the limiter entirely.
	AcceptsPerSecond int `env:"LUMINMQ_ACCEPTS_PER_SECOND" envDefault:"0"`
	AcceptBurst      int `env:"LUMINMQ_ACCEPT_BURST" envDefault:"0"`

	// Reference accept-time binding policy: every new connection binds
	// to this (group, topic) by default until it sends a System bind
	// request of its own.
	DefaultBindGroup string `env:"LUMINMQ_DEFAULT_GROUP" envDefault:"group-test"`
	DefaultBindTopic string `env:"LUMINMQ_DEFAULT_TOPIC" envDefault:"topic-test"`

	// Admin HTTP surface
	AdminAddr      string `env:"LUMINMQ_ADMIN_ADDR" envDefault:"0.0.0.0:8081"`
	AdminJWTSecret string `env:"LUMINMQ_ADMIN_JWT_SECRET" envDefault:""`

	// Optional audit mirror; empty disables it entirely.
	KafkaAuditBrokers string `env:"LUMINMQ_KAFKA_AUDIT_BROKERS" envDefault:""`

	// Logging
	LogLevel  string `env:"LUMINMQ_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LUMINMQ_LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from an optional .env file and then from the
// environment, validating the result. A missing .env file is not an
// error — production deployments are expected to set real environment
// variables instead.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// Validate checks Config for internally-inconsistent or out-of-range
// values beyond what type parsing alone catches.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("LUMINMQ_ADDR is required")
	}
	if c.AdminAddr == "" {
		return fmt.Errorf("LUMINMQ_ADMIN_ADDR is required")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("LUMINMQ_TICK_INTERVAL must be > 0, got %s", c.TickInterval)
	}
	if c.MaxFrameBytes <= 0 {
		return fmt.Errorf("LUMINMQ_MAX_FRAME_BYTES must be > 0, got %d", c.MaxFrameBytes)
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("LUMINMQ_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.AcceptsPerSecond < 0 {
		return fmt.Errorf("LUMINMQ_ACCEPTS_PER_SECOND must be >= 0, got %d", c.AcceptsPerSecond)
	}
	if c.AcceptBurst < 0 {
		return fmt.Errorf("LUMINMQ_ACCEPT_BURST must be >= 0, got %d", c.AcceptBurst)
	}
	if c.DefaultBindGroup == "" || c.DefaultBindTopic == "" {
		return fmt.Errorf("LUMINMQ_DEFAULT_GROUP and LUMINMQ_DEFAULT_TOPIC must be non-empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("LUMINMQ_LOG_LEVEL must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("LUMINMQ_LOG_FORMAT must be one of json, console (got %q)", c.LogFormat)
	}
	return nil
}

// LogConfig emits a structured summary of the loaded configuration.
// AdminJWTSecret is deliberately never logged.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("addr", c.Addr).
		Str("admin_addr", c.AdminAddr).
		Dur("tick_interval", c.TickInterval).
		Int("max_frame_bytes", c.MaxFrameBytes).
		Int("max_connections", c.MaxConnections).
		Int("accepts_per_second", c.AcceptsPerSecond).
		Int("accept_burst", c.AcceptBurst).
		Str("default_group", c.DefaultBindGroup).
		Str("default_topic", c.DefaultBindTopic).
		Bool("jwt_configured", c.AdminJWTSecret != "").
		Bool("audit_sink_enabled", c.KafkaAuditBrokers != "").
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
