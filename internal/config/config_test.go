package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if len(cfg.Sweep.Regions) != 3 {
		t.Fatalf("expected 3 default regions, got %v", cfg.Sweep.Regions)
	}
	if cfg.Source.BaseURL == "" {
		t.Fatalf("expected default base url")
	}
	if got := cfg.MinDelay(); got != 2*time.Second {
		t.Fatalf("expected min delay 2s, got %v", got)
	}
	if got := cfg.MaxDelay(); got != 5*time.Second {
		t.Fatalf("expected max delay 5s, got %v", got)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Fatalf("expected 3 retry attempts, got %d", cfg.Retry.MaxAttempts)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
sweep:
  regions: ["Americas"]
  platforms: ["PC"]
  gamemodes: ["Competitive"]
  maps: ["All Maps", "Ilios"]
  tiers: ["All", "Gold"]
  concurrency: 4
source:
  base_url: https://stats.example.com/rates/
  timeout_seconds: 20
rate:
  min_delay_seconds: 1
  max_delay_seconds: 3
retry:
  max_attempts: 5
  backoff_initial_ms: 100
  backoff_max_ms: 500
ingest:
  backend_url: https://backend.example.com
  chunk_size: 25
headless:
  enabled: true
  max_parallel: 2
snapshot:
  backend: gcs
  gcs_bucket: pages
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Sweep.Concurrency != 4 || len(cfg.Sweep.Maps) != 2 {
		t.Fatalf("expected sweep overrides to apply: %+v", cfg.Sweep)
	}
	if cfg.Ingest.BackendURL != "https://backend.example.com" || cfg.Ingest.ChunkSize != 25 {
		t.Fatalf("expected ingest overrides to apply: %+v", cfg.Ingest)
	}
	if cfg.Snapshot.Backend != "gcs" || cfg.Snapshot.GCSBucket != "pages" {
		t.Fatalf("expected snapshot overrides to apply: %+v", cfg.Snapshot)
	}
	if got := cfg.SourceTimeout(); got != 20*time.Second {
		t.Fatalf("expected source timeout 20s, got %v", got)
	}
	if got := cfg.BackoffInitial(); got != 100*time.Millisecond {
		t.Fatalf("expected initial backoff 100ms, got %v", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"zero concurrency", func(c *Config) { c.Sweep.Concurrency = 0 }},
		{"empty regions", func(c *Config) { c.Sweep.Regions = nil }},
		{"missing base url", func(c *Config) { c.Source.BaseURL = "" }},
		{"inverted delay bounds", func(c *Config) { c.Rate.MinDelaySeconds = 5; c.Rate.MaxDelaySeconds = 2 }},
		{"zero retries", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"missing backend url", func(c *Config) { c.Ingest.BackendURL = "" }},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true; c.Auth.APIKey = "" }},
		{"unknown snapshot backend", func(c *Config) { c.Snapshot.Backend = "s3" }},
		{"gcs without bucket", func(c *Config) { c.Snapshot.Backend = "gcs"; c.Snapshot.GCSBucket = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
