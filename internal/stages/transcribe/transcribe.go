package transcribe

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"callpipe/internal/config"
	"callpipe/internal/ids"
	"callpipe/internal/logging"
	"callpipe/internal/manifest"
	"callpipe/internal/runner"
	"callpipe/internal/source"
)

const (
	StepID        = "02_transcribe"
	Schema        = "bh.v1.transcripts"
	SchemaVersion = "1.0.0"
)

// Options narrows one transcribe run. InputRunID names the ingest run whose
// audio is transcribed.
type Options struct {
	Mode       manifest.RunMode
	RunID      string
	FlowRunID  string
	InputRunID string
	Only       []string
	Limit      int
}

// Stage turns an ingest run's audio into normalized transcripts.
type Stage struct {
	cfg    *config.Config
	engine Engine
	logger *slog.Logger
}

// New wires a transcribe stage around an ASR engine.
func New(cfg *config.Config, engine Engine, logger *slog.Logger) *Stage {
	return &Stage{
		cfg:    cfg,
		engine: engine,
		logger: logging.NewComponentLogger(logger, "transcribe"),
	}
}

// Run transcribes every recording of the input run. The input run must have
// a finalized manifest; partial input runs are allowed, their failed units
// simply have no audio to transcribe.
func (s *Stage) Run(ctx context.Context, opts Options) (*runner.Outcome, error) {
	if opts.InputRunID == "" {
		return nil, fmt.Errorf("transcribe requires an input run id")
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

	proc := &transcribeProcessor{
		engine:   s.engine,
		audioDir: filepath.Join(inputDir, "data", "audio"),
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
		Workers:       s.cfg.Transcribe.Concurrency,
		UnitTimeout:   time.Duration(s.cfg.Transcribe.TimeoutSeconds) * time.Second,
		InputRefs:     []manifest.InputRef{{Type: "step_run_id", Value: opts.InputRunID}},
		Logger:        s.logger,
	}

	// The run directory depends on the run id, which the runner generates
	// when unset. Resolve it here instead so the processor knows its target.
	if runnerOpts.RunID == "" {
		runnerOpts.RunID = ids.NewRunID()
	}
	runnerOpts.RunDir = s.cfg.RunDir(runnerOpts.RunID)
	proc.transcriptDir = TranscriptDir(runnerOpts.RunDir)
	runnerOpts.WriteOutputs = func(runDir string, m *manifest.Manifest) error {
		count, err := WriteIndex(runDir)
		if err != nil {
			return err
		}
		if err := m.SetCount("transcripts", int64(count)); err != nil {
			return err
		}
		return m.SetOutputs("data/transcripts.jsonl", map[string]string{
			"transcripts_dir": "data/transcripts",
		})
	}

	return runner.RunUnits(ctx, units, proc, runnerOpts)
}

// loadUnits reads the ingest run's recordings.jsonl; only recordings whose
// audio actually landed become units.
func loadUnits(inputDir string) ([]runner.Unit, error) {
	indexPath := filepath.Join(inputDir, "data", "recordings.jsonl")
	file, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("open recordings index: %w", err)
	}
	defer file.Close()

	var units []runner.Unit
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var meta source.RecordingMeta
		if err := json.Unmarshal(line, &meta); err != nil {
			return nil, fmt.Errorf("parse recordings index: %w", err)
		}
		audioPath := filepath.Join(inputDir, "data", "audio", meta.RecordingID+".ogg")
		if _, err := os.Stat(audioPath); err != nil {
			continue
		}
		units = append(units, runner.Unit{
			GUID:   meta.SourceID,
			UnitID: meta.RecordingID,
			DateMS: meta.RecordingDateMS,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan recordings index: %w", err)
	}
	return units, nil
}
