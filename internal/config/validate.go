package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration invariants and reports every violation.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.StateDir) == "" {
		problems = append(problems, "paths.state_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		problems = append(problems, "paths.output_dir must not be empty")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format: unsupported value %q", c.Logging.Format))
	}
	if c.Source.PageSize <= 0 {
		problems = append(problems, "source.page_size must be positive")
	}
	if c.Download.Concurrency <= 0 {
		problems = append(problems, "download.concurrency must be positive")
	}
	if c.Download.TempSuffix == "" {
		problems = append(problems, "download.temp_suffix must not be empty")
	}
	if c.Transcribe.Concurrency <= 0 {
		problems = append(problems, "transcribe.concurrency must be positive")
	}
	if c.Anonymize.Concurrency <= 0 {
		problems = append(problems, "anonymize.concurrency must be positive")
	}
	if c.Retry.MaxRetry < 0 {
		problems = append(problems, "retry.max_retry must not be negative")
	}
	if c.Upload.Enabled && strings.TrimSpace(c.Upload.ExportDir) == "" {
		problems = append(problems, "upload.export_dir is required when upload is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
