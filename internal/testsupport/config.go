package testsupport

import (
	"path/filepath"
	"testing"

	"callpipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Source.APIBaseURL = "https://api.example.test/call/v1"
	cfg.Source.Token = "test-token"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithMaxRetry overrides the retry ceiling on the test config.
func WithMaxRetry(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Retry.MaxRetry = n
	}
}

// WithDownloadConcurrency overrides the worker pool size on the test config.
func WithDownloadConcurrency(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Download.Concurrency = n
	}
}
