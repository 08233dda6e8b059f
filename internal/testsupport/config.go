package testsupport

import (
	"path/filepath"
	"testing"

	"clipflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Publish.InstagramIntegrationID = "test-instagram"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithDestinations replaces the default test destination with the provided
// integration IDs. Empty strings disable a slot.
func WithDestinations(instagram, facebook, youtube string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Publish.InstagramIntegrationID = instagram
		b.cfg.Publish.FacebookIntegrationID = facebook
		b.cfg.Publish.YouTubeIntegrationID = youtube
	}
}

// WithMaxConcurrentJobs overrides the worker pool size on the test config.
func WithMaxConcurrentJobs(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.MaxConcurrentJobs = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
