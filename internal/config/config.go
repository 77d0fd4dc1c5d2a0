// Package config loads and validates sweeper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper. The
// loaded value is treated as immutable; components copy what they need at
// construction time.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Source   SourceConfig   `mapstructure:"source"`
	Rate     RateConfig     `mapstructure:"rate"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SweepConfig holds the dimension lists expanded into configurations.
type SweepConfig struct {
	Regions     []string `mapstructure:"regions"`
	Platforms   []string `mapstructure:"platforms"`
	Gamemodes   []string `mapstructure:"gamemodes"`
	Maps        []string `mapstructure:"maps"`
	Tiers       []string `mapstructure:"tiers"`
	Concurrency int      `mapstructure:"concurrency"`
}

// SourceConfig governs how stats pages are fetched.
type SourceConfig struct {
	BaseURL        string   `mapstructure:"base_url"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	UserAgents     []string `mapstructure:"user_agents"`
}

// RateConfig bounds the politeness delay between page fetches.
type RateConfig struct {
	MinDelaySeconds int `mapstructure:"min_delay_seconds"`
	MaxDelaySeconds int `mapstructure:"max_delay_seconds"`
	Burst           int `mapstructure:"burst"`
}

// RetryConfig configures transient failure handling.
type RetryConfig struct {
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// IngestConfig points at the store API's batch endpoint.
type IngestConfig struct {
	BackendURL     string `mapstructure:"backend_url"`
	ChunkSize      int    `mapstructure:"chunk_size"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	UserAgent     string `mapstructure:"user_agent"`
}

// SnapshotConfig sets where failing page snapshots are kept.
type SnapshotConfig struct {
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for sweep completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SWEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("sweep.regions", []string{"Americas", "Europe", "Asia"})
	v.SetDefault("sweep.platforms", []string{"PC", "Console"})
	v.SetDefault("sweep.gamemodes", []string{"Competitive", "Quickplay"})
	v.SetDefault("sweep.maps", []string{"All Maps"})
	v.SetDefault("sweep.tiers", []string{
		"All", "Bronze", "Silver", "Gold", "Platinum",
		"Diamond", "Master", "Grandmaster",
	})
	v.SetDefault("sweep.concurrency", 2)
	v.SetDefault("source.base_url", "https://overwatch.blizzard.com/en-us/rates/")
	v.SetDefault("source.timeout_seconds", 10)
	v.SetDefault("rate.min_delay_seconds", 2)
	v.SetDefault("rate.max_delay_seconds", 5)
	v.SetDefault("rate.burst", 1)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_initial_ms", 2000)
	v.SetDefault("retry.backoff_max_ms", 30000)
	v.SetDefault("ingest.backend_url", "http://localhost:8080")
	v.SetDefault("ingest.chunk_size", 50)
	v.SetDefault("ingest.timeout_seconds", 15)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("snapshot.backend", "local")
	v.SetDefault("snapshot.base_dir", "snapshots")
	v.SetDefault("snapshot.prefix", "failed-pages")
	v.SetDefault("snapshot.content_type", "text/plain; charset=utf-8")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Sweep.Concurrency <= 0 {
		return fmt.Errorf("sweep.concurrency must be > 0")
	}
	if len(c.Sweep.Regions) == 0 || len(c.Sweep.Platforms) == 0 ||
		len(c.Sweep.Gamemodes) == 0 || len(c.Sweep.Maps) == 0 {
		return fmt.Errorf("sweep dimension lists must not be empty")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Rate.MinDelaySeconds < 0 || c.Rate.MaxDelaySeconds < c.Rate.MinDelaySeconds {
		return fmt.Errorf("rate delay bounds must satisfy 0 <= min <= max")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Ingest.BackendURL == "" {
		return fmt.Errorf("ingest.backend_url is required")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Snapshot.Backend {
	case "", "local", "gcs":
	default:
		return fmt.Errorf("snapshot.backend must be local or gcs")
	}
	if c.Snapshot.Backend == "gcs" && c.Snapshot.GCSBucket == "" {
		return fmt.Errorf("snapshot.gcs_bucket is required for the gcs backend")
	}
	return nil
}

// SourceTimeout converts the fetch timeout into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// NavTimeout bounds a single headless page navigation.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// IngestTimeout converts the backend submission timeout into a duration.
func (c Config) IngestTimeout() time.Duration {
	return time.Duration(c.Ingest.TimeoutSeconds) * time.Second
}

// MinDelay is the lower politeness delay bound between fetches.
func (c Config) MinDelay() time.Duration {
	return time.Duration(c.Rate.MinDelaySeconds) * time.Second
}

// MaxDelay is the upper politeness delay bound between fetches.
func (c Config) MaxDelay() time.Duration {
	return time.Duration(c.Rate.MaxDelaySeconds) * time.Second
}

// BackoffInitial is the first retry backoff step.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Retry.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps the retry backoff.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Retry.BackoffMaxMs) * time.Millisecond
}
