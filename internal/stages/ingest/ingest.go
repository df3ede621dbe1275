package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"callpipe/internal/config"
	"callpipe/internal/ids"
	"callpipe/internal/logging"
	"callpipe/internal/manifest"
	"callpipe/internal/runner"
	"callpipe/internal/source"
	"callpipe/internal/state"
)

const (
	// StepID names this stage in manifests and logs.
	StepID = "01_ingest"
	// Schema identifies the run output contract.
	Schema        = "bh.v1.raw_audio"
	SchemaVersion = "1.0.0"
)

// Options narrows one ingest run.
type Options struct {
	Mode      manifest.RunMode
	RunID     string
	FlowRunID string
	Since     string
	Only      []string
	MaxRetry  int
	Limit     int
}

// Stage pulls completed calls from the upstream API, records them in the
// store and downloads the audio for every eligible recording.
type Stage struct {
	cfg    *config.Config
	store  *state.Store
	client source.Client
	logger *slog.Logger
}

// New wires an ingest stage.
func New(cfg *config.Config, store *state.Store, client source.Client, logger *slog.Logger) *Stage {
	return &Stage{
		cfg:    cfg,
		store:  store,
		client: client,
		logger: logging.NewComponentLogger(logger, "ingest"),
	}
}

// fetched holds one call with its normalized metadata and recordings.
type fetched struct {
	call       source.CallMeta
	recordings []source.RecordingMeta
}

// Run executes one ingest run and returns its outcome. Dry runs fetch and
// snapshot metadata but leave the store and the audio directory untouched.
func (s *Stage) Run(ctx context.Context, opts Options) (*runner.Outcome, error) {
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = s.cfg.Retry.MaxRetry
	}
	if opts.Since == "" {
		opts.Since = s.cfg.Source.Since
	}

	runID := opts.RunID
	if runID == "" {
		runID = ids.NewRunID()
	}
	runDir := s.cfg.RunDir(runID)
	dataDir := filepath.Join(runDir, "data")
	audioDir := filepath.Join(dataDir, "audio")

	calls, err := s.fetch(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := writeSnapshots(dataDir, calls); err != nil {
		return nil, fmt.Errorf("write snapshots: %w", err)
	}

	if opts.Mode == manifest.ModeDry {
		return s.dryRun(runID, runDir, opts, calls)
	}

	if err := s.upsert(ctx, calls); err != nil {
		return nil, err
	}

	proc := &downloadProcessor{
		client:         s.client,
		audioDir:       audioDir,
		validateHeader: s.cfg.Download.ValidateOggHeader,
	}

	runnerOpts := runner.Options{
		StepID:        StepID,
		Schema:        Schema,
		SchemaVersion: SchemaVersion,
		Mode:          opts.Mode,
		RunID:         runID,
		FlowRunID:     opts.FlowRunID,
		Only:          opts.Only,
		MaxRetry:      opts.MaxRetry,
		Limit:         opts.Limit,
		Workers:       s.cfg.Download.Concurrency,
		UnitTimeout:   time.Duration(s.cfg.Download.TimeoutSeconds) * time.Second,
		RunDir:        runDir,
		Logger:        s.logger,
		WriteOutputs:  declareOutputs,
	}
	if opts.Since != "" {
		runnerOpts.InputRefs = append(runnerOpts.InputRefs, manifest.InputRef{Type: "since", Value: opts.Since})
	}

	outcome, err := runner.Run(ctx, s.store, proc, runnerOpts)
	if err != nil {
		return nil, err
	}
	if err := s.logStats(ctx); err != nil {
		s.logger.Warn("report store stats", logging.Error(err))
	}
	return outcome, nil
}

// fetch lists completed calls and normalizes their recordings. Calls that
// fail validation are logged and skipped rather than failing the run.
func (s *Stage) fetch(ctx context.Context, opts Options) ([]fetched, error) {
	tasks, err := s.client.ListCalls(ctx, opts.Since, 0)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}

	out := make([]fetched, 0, len(tasks))
	for _, task := range tasks {
		call, err := source.NormalizeCall(task)
		if err != nil {
			s.logger.Warn("skipping malformed call",
				logging.String("call_guid", task.GUID),
				logging.Error(err))
			continue
		}

		refs, err := s.client.ListRecordings(ctx, call.CallGUID)
		if err != nil {
			return nil, fmt.Errorf("list recordings for %s: %w", call.CallGUID, err)
		}
		recordings, err := source.BuildRecordingMeta(call, refs)
		if err != nil {
			return nil, fmt.Errorf("normalize recordings for %s: %w", call.CallGUID, err)
		}
		out = append(out, fetched{call: call, recordings: recordings})
	}
	s.logger.Info("fetched calls", logging.Int("calls", len(out)))
	return out, nil
}

func (s *Stage) upsert(ctx context.Context, calls []fetched) error {
	now := time.Now().UTC()
	for _, entry := range calls {
		if _, err := s.store.UpsertCall(ctx, entry.call.CallGUID, entry.call.CallID, entry.call.LastUpdateMS, now); err != nil {
			return fmt.Errorf("upsert call %s: %w", entry.call.CallGUID, err)
		}
		for _, rec := range entry.recordings {
			if _, err := s.store.UpsertRecording(ctx, rec.SourceID, rec.CallGUID, rec.RecordingID, rec.RecordingDateMS, rec.SizeBytes, rec.ContentETag); err != nil {
				return fmt.Errorf("upsert recording %s: %w", rec.SourceID, err)
			}
		}
	}
	return nil
}

// dryRun writes metadata snapshots and a zero-download manifest without
// touching the store or the audio directory.
func (s *Stage) dryRun(runID, runDir string, opts Options, calls []fetched) (*runner.Outcome, error) {
	recordings := 0
	for _, entry := range calls {
		recordings += len(entry.recordings)
	}

	m := manifest.New(Schema, SchemaVersion, StepID, runID, opts.FlowRunID, manifest.ModeDry)
	if err := declareOutputs(runDir, m); err != nil {
		return nil, err
	}
	if err := m.SetCount("calls", int64(len(calls))); err != nil {
		return nil, err
	}
	if err := m.SetCount("recordings", int64(recordings)); err != nil {
		return nil, err
	}
	if err := m.SetCount("downloaded", 0); err != nil {
		return nil, err
	}
	if err := m.FinalizeSuccess(); err != nil {
		return nil, err
	}
	if err := m.Write(filepath.Join(runDir, "manifest.json")); err != nil {
		return nil, err
	}
	if err := manifest.WriteSuccessMarker(runDir); err != nil {
		return nil, err
	}
	s.logger.Info("dry run finished",
		logging.String(logging.FieldRunID, runID),
		logging.Int("calls", len(calls)),
		logging.Int("recordings", recordings))
	return &runner.Outcome{RunID: runID, RunDir: runDir, Manifest: m}, nil
}

func (s *Stage) logStats(ctx context.Context) error {
	stats, err := s.store.GetStats(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("store stats",
		logging.Int("calls", stats.Calls),
		logging.Int("recordings", stats.Recordings),
		logging.Int("downloaded", stats.ByStatus[state.StatusDownloaded]))
	return nil
}

func declareOutputs(_ string, m *manifest.Manifest) error {
	return m.SetOutputs("data/recordings.jsonl", map[string]string{
		"calls":     "data/calls.jsonl",
		"audio_dir": "data/audio",
	})
}
