package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipflow/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero workers", func(c *config.Config) { c.Pipeline.MaxConcurrentJobs = 0 }, "max_concurrent_jobs"},
		{"negative poll", func(c *config.Config) { c.Discovery.PollInterval = -1 }, "poll_interval"},
		{"inverted backoff", func(c *config.Config) { c.Pipeline.RetryBackoffCeiling = 1; c.Pipeline.RetryBackoffBase = 10 }, "retry_backoff_ceiling"},
		{"crf out of range", func(c *config.Config) { c.Output.CRF = 99 }, "crf"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
api_bind = "127.0.0.1:9999"

[pipeline]
max_concurrent_jobs = 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, loadedPath, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists || loadedPath != path {
		t.Fatalf("expected config at %s to exist, got path=%s exists=%v", path, loadedPath, exists)
	}
	if cfg.Paths.APIBind != "127.0.0.1:9999" {
		t.Fatalf("expected api bind override, got %q", cfg.Paths.APIBind)
	}
	if cfg.Pipeline.MaxConcurrentJobs != 5 {
		t.Fatalf("expected worker override, got %d", cfg.Pipeline.MaxConcurrentJobs)
	}
	if cfg.Pipeline.MaxStageRetries != 3 {
		t.Fatalf("expected default retries to survive, got %d", cfg.Pipeline.MaxStageRetries)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Paths.APIBind != config.Default().Paths.APIBind {
		t.Fatalf("expected defaults, got %q", cfg.Paths.APIBind)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("create sample: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = "/var/lib/clipflow"
	if got := cfg.DownloadsDir(); got != "/var/lib/clipflow/downloads" {
		t.Fatalf("downloads dir: %q", got)
	}
	if got := cfg.DatabasePath(); got != "/var/lib/clipflow/jobs.db" {
		t.Fatalf("database path: %q", got)
	}
}
