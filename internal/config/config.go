package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration shared by every stage.
type Paths struct {
	StateDir  string `toml:"state_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// Logging contains logger configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Source contains configuration for the call-recording source API.
type Source struct {
	APIBaseURL     string `toml:"api_base_url"`
	Token          string `toml:"token"`
	PageSize       int    `toml:"page_size"`
	Since          string `toml:"since"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Download contains configuration for the ingest download step.
type Download struct {
	Concurrency       int    `toml:"concurrency"`
	TempSuffix        string `toml:"temp_suffix"`
	ValidateOggHeader bool   `toml:"validate_ogg_header"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

// Transcribe contains configuration for the transcription stage.
type Transcribe struct {
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	Concurrency    int    `toml:"concurrency"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Anonymize contains configuration for the PII redaction stage.
type Anonymize struct {
	Salt        string `toml:"salt"`
	Concurrency int    `toml:"concurrency"`
}

// Upload contains configuration for the document upload step.
type Upload struct {
	Enabled        bool   `toml:"enabled"`
	ExportDir      string `toml:"export_dir"`
	FolderPath     string `toml:"folder_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Retry contains the retry policy applied by the orchestrator.
type Retry struct {
	MaxRetry int `toml:"max_retry"`
}

// Config is the full application configuration. It is constructed once at
// process start and passed by pointer into the store, manifests and runner;
// there is no ambient global configuration.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Logging    Logging    `toml:"logging"`
	Source     Source     `toml:"source"`
	Download   Download   `toml:"download"`
	Transcribe Transcribe `toml:"transcribe"`
	Anonymize  Anonymize  `toml:"anonymize"`
	Upload     Upload     `toml:"upload"`
	Retry      Retry      `toml:"retry"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() string {
	return expandPath("~/.config/callpipe/config.toml")
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// Load reads the configuration at path, falling back to defaults when the
// file does not exist, then normalizes and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(expandPath(path))
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// Defaults apply when no config file is present.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	target := expandPath(path)
	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("config file already exists: %s", target)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the state, output and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// RunDir returns the per-run output directory for a stage run.
func (c *Config) RunDir(runID string) string {
	return filepath.Join(c.Paths.OutputDir, "runs", runID)
}

func (c *Config) normalize() {
	c.Paths.StateDir = expandPath(c.Paths.StateDir)
	c.Paths.OutputDir = expandPath(c.Paths.OutputDir)
	c.Paths.LogDir = expandPath(c.Paths.LogDir)
	c.Upload.ExportDir = expandPath(c.Upload.ExportDir)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Source.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.Source.APIBaseURL), "/")
}

func expandPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
		}
	}
	return trimmed
}
