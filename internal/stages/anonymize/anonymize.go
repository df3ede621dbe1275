package anonymize

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"callpipe/internal/config"
	"callpipe/internal/ids"
	"callpipe/internal/logging"
	"callpipe/internal/manifest"
	"callpipe/internal/runner"
	"callpipe/internal/stages/transcribe"
)

const (
	StepID        = "03_anonymize"
	Schema        = "bh.v1.transcripts_redacted"
	SchemaVersion = "1.0.0"
)

// Options narrows one anonymize run. InputRunID names the transcribe run
// whose transcripts are redacted.
type Options struct {
	Mode       manifest.RunMode
	RunID      string
	FlowRunID  string
	InputRunID string
	Only       []string
	Limit      int
}

// Stage redacts PII from a transcribe run's transcripts.
type Stage struct {
	cfg      *config.Config
	scrubber Scrubber
	logger   *slog.Logger
}

// New wires an anonymize stage. A nil scrubber gets the default regex rules.
func New(cfg *config.Config, scrubber Scrubber, logger *slog.Logger) *Stage {
	if scrubber == nil {
		scrubber = NewRegexScrubber(cfg.Anonymize.Salt)
	}
	return &Stage{
		cfg:      cfg,
		scrubber: scrubber,
		logger:   logging.NewComponentLogger(logger, "anonymize"),
	}
}

// Run redacts every transcript of the input run, writing redacted
// transcripts plus one vault map per recording into a fresh run directory.
func (s *Stage) Run(ctx context.Context, opts Options) (*runner.Outcome, error) {
	if opts.InputRunID == "" {
		return nil, fmt.Errorf("anonymize requires an input run id")
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

	proc := &anonymizeProcessor{
		scrubber: s.scrubber,
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
		Workers:       s.cfg.Anonymize.Concurrency,
		InputRefs:     []manifest.InputRef{{Type: "step_run_id", Value: opts.InputRunID}},
		Logger:        s.logger,
	}

	if runnerOpts.RunID == "" {
		runnerOpts.RunID = ids.NewRunID()
	}
	runnerOpts.RunDir = s.cfg.RunDir(runnerOpts.RunID)
	proc.transcriptDir = transcribe.TranscriptDir(runnerOpts.RunDir)
	proc.vaultDir = VaultDir(runnerOpts.RunDir)
	runnerOpts.WriteOutputs = func(runDir string, m *manifest.Manifest) error {
		count, err := transcribe.WriteIndex(runDir)
		if err != nil {
			return err
		}
		if err := m.SetCount("transcripts", int64(count)); err != nil {
			return err
		}
		return m.SetOutputs("data/transcripts.jsonl", map[string]string{
			"transcripts_dir": "data/transcripts",
			"vault_dir":       "data/vault",
		})
	}

	return runner.RunUnits(ctx, units, proc, runnerOpts)
}

// VaultDir returns the per-run directory holding tag -> hash vault maps.
func VaultDir(runDir string) string {
	return filepath.Join(runDir, "data", "vault")
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
