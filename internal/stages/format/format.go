package format

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"callpipe/internal/config"
	"callpipe/internal/ids"
	"callpipe/internal/logging"
	"callpipe/internal/manifest"
	"callpipe/internal/runner"
	"callpipe/internal/stages/transcribe"
)

const (
	StepID        = "04_format"
	Schema        = "bh.v1.transcripts_markdown"
	SchemaVersion = "1.0.0"
)

// Options narrows one format run. InputRunID names the anonymize run whose
// redacted transcripts are rendered.
type Options struct {
	Mode       manifest.RunMode
	RunID      string
	FlowRunID  string
	InputRunID string
	Only       []string
	Limit      int
}

// Stage renders an anonymize run's transcripts as Markdown documents and
// optionally publishes them through an uploader.
type Stage struct {
	cfg      *config.Config
	uploader Uploader
	logger   *slog.Logger
}

// New wires a format stage. A nil uploader disables publishing even when
// upload is enabled in the configuration.
func New(cfg *config.Config, uploader Uploader, logger *slog.Logger) *Stage {
	if uploader == nil && cfg.Upload.Enabled {
		uploader = &LocalUploader{
			ExportDir:  cfg.Upload.ExportDir,
			FolderPath: cfg.Upload.FolderPath,
			Timeout:    time.Duration(cfg.Upload.TimeoutSeconds) * time.Second,
		}
	}
	return &Stage{
		cfg:      cfg,
		uploader: uploader,
		logger:   logging.NewComponentLogger(logger, "format"),
	}
}

// MarkdownDir returns the per-run directory holding rendered documents.
func MarkdownDir(runDir string) string {
	return filepath.Join(runDir, "data", "markdown")
}

// Run renders every transcript of the input run into data/markdown.
func (s *Stage) Run(ctx context.Context, opts Options) (*runner.Outcome, error) {
	if opts.InputRunID == "" {
		return nil, fmt.Errorf("format requires an input run id")
	}
	inputDir := s.cfg.RunDir(opts.InputRunID)
	inputManifest, err := manifest.Load(filepath.Join(inputDir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("load input run %s: %w", opts.InputRunID, err)
	}
	if inputManifest.Status == manifest.StatusError {
		return nil, fmt.Errorf("input run %s finished with status error", opts.InputRunID)
	}

	units, err := loadUnits(inputDir)
	if err != nil {
		return nil, err
	}

	proc := &formatProcessor{
		uploader: s.uploader,
		inputDir: transcribe.TranscriptDir(inputDir),
	}

	runnerOpts := runner.Options{
		StepID:        StepID,
		Schema:        Schema,
		SchemaVersion: SchemaVersion,
		Mode:          opts.Mode,
		RunID:         opts.RunID,
		FlowRunID:     opts.FlowRunID,
		Only:          opts.Only,
		Limit:         opts.Limit,
		InputRefs:     []manifest.InputRef{{Type: "step_run_id", Value: opts.InputRunID}},
		Logger:        s.logger,
	}

	if runnerOpts.RunID == "" {
		runnerOpts.RunID = ids.NewRunID()
	}
	runnerOpts.RunDir = s.cfg.RunDir(runnerOpts.RunID)
	proc.markdownDir = MarkdownDir(runnerOpts.RunDir)
	runnerOpts.WriteOutputs = func(runDir string, m *manifest.Manifest) error {
		return m.SetOutputs("data/markdown", nil)
	}

	return runner.RunUnits(ctx, units, proc, runnerOpts)
}

// loadUnits derives one unit per transcript file of the input run.
func loadUnits(inputDir string) ([]runner.Unit, error) {
	files, err := transcribe.ListTranscriptFiles(inputDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list input transcripts: %w", err)
	}

	units := make([]runner.Unit, 0, len(files))
	for _, file := range files {
		recordingID := strings.TrimSuffix(filepath.Base(file), ".json")
		units = append(units, runner.Unit{GUID: recordingID, UnitID: recordingID})
	}
	return units, nil
}
