package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"callpipe/internal/ids"
	"callpipe/internal/logging"
	"callpipe/internal/manifest"
	"callpipe/internal/progress"
	"callpipe/internal/services"
	"callpipe/internal/state"
)

// Unit is one recording to process in a run.
type Unit struct {
	GUID       string
	UnitID     string
	DateMS     int64
	RetryCount int
}

// Result is what a Processor reports for a successfully processed unit.
type Result struct {
	Bytes       int64
	ContentETag string
	Counts      map[string]int64
	Metrics     map[string]float64
}

// Processor performs the stage's external work for one unit. It must not
// touch the store, the manifest or the progress file; the control path owns
// those. Errors are classified through the services markers: permanent
// failures skip the retry budget entirely.
type Processor interface {
	Process(ctx context.Context, unit Unit) (Result, error)
}

// Options configures one orchestrated run.
type Options struct {
	StepID        string
	Schema        string
	SchemaVersion string
	Mode          manifest.RunMode
	RunID         string
	FlowRunID     string

	// Only restricts the run to units whose GUID or derived id is listed.
	Only []string
	// MaxRetry is the transient-failure ceiling; reaching it promotes the
	// unit to failed-permanent.
	MaxRetry int
	Limit    int
	Workers  int
	// UnitTimeout bounds one Process call; expiry surfaces as a transient
	// failure. Zero means no per-unit timeout.
	UnitTimeout time.Duration

	RunDir    string
	InputRefs []manifest.InputRef

	// WriteOutputs lets the stage declare its output files on the manifest
	// before it is finalized. When nil the manifest itself is the primary
	// output.
	WriteOutputs func(runDir string, m *manifest.Manifest) error

	Logger *slog.Logger
}

// Outcome summarizes a finished run.
type Outcome struct {
	RunID     string
	RunDir    string
	Manifest  *manifest.Manifest
	Processed int
	Succeeded int
	Failed    int
	// Promoted counts units moved to failed-permanent by the retry ceiling.
	Promoted  int
	FailedIDs []string
}

// unitOutcome is the tagged result a worker hands back to the control path.
type unitOutcome struct {
	unit   Unit
	result Result
	err    error
}

const defaultWorkers = 4

// Run drives one stage run end to end: TODO computation, fan-out over a
// bounded worker pool, store transitions applied by the single control path
// in completion order, manifest finalization and run-directory artifacts.
// The returned error is non-nil only for stage-level failures; per-unit
// failures are reported through the manifest and Outcome.
func Run(ctx context.Context, store *state.Store, proc Processor, opts Options) (*Outcome, error) {
	normalize(&opts)
	logger := runLogger(&opts)
	ctx = services.WithRunID(ctx, opts.RunID)

	m, err := newManifest(opts)
	if err != nil {
		return nil, err
	}
	units, err := computeTODO(ctx, store, opts)
	if err != nil {
		return nil, abort(opts, logger, fmt.Errorf("compute todo: %w", err))
	}
	return execute(ctx, store, proc, units, opts, m, logger)
}

// RunUnits drives a run over an explicit unit list instead of the store's
// TODO set. Later pipeline stages use it: their units come from an input
// run's outputs and no store transitions apply, so per-unit failures are
// recorded on the manifest only. The allow-list and limit still narrow the
// set.
func RunUnits(ctx context.Context, units []Unit, proc Processor, opts Options) (*Outcome, error) {
	normalize(&opts)
	logger := runLogger(&opts)
	ctx = services.WithRunID(ctx, opts.RunID)

	m, err := newManifest(opts)
	if err != nil {
		return nil, err
	}
	return execute(ctx, nil, proc, filterUnits(units, opts), opts, m, logger)
}

func normalize(opts *Options) {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.RunID == "" {
		opts.RunID = ids.NewRunID()
	}
}

func runLogger(opts *Options) *slog.Logger {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return logger.With(logging.String(logging.FieldRunID, opts.RunID))
}

func newManifest(opts Options) (*manifest.Manifest, error) {
	m := manifest.New(opts.Schema, opts.SchemaVersion, opts.StepID, opts.RunID, opts.FlowRunID, opts.Mode)
	for _, ref := range opts.InputRefs {
		if err := m.AddInputRef(ref.Type, ref.Value); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func execute(ctx context.Context, store *state.Store, proc Processor, units []Unit, opts Options, m *manifest.Manifest, logger *slog.Logger) (*Outcome, error) {
	logger.Info("run started",
		logging.String("step", opts.StepID),
		logging.String("mode", string(opts.Mode)),
		logging.Int("units", len(units)),
		logging.Int("workers", opts.Workers))

	outcome := &Outcome{RunID: opts.RunID, RunDir: opts.RunDir, Manifest: m}
	reporter := progress.NewReporter(opts.RunDir)

	if len(units) == 0 {
		// Nothing to do is still a successful run with a zero-count manifest.
		if err := finalizeSuccess(m, opts, 0, 0); err != nil {
			return nil, abort(opts, logger, err)
		}
		_ = reporter.Update("done", 100, "no work", 0)
		logger.Info("run finished", logging.String("status", string(m.Status)))
		return outcome, nil
	}

	started := time.Now()
	results := fanOut(ctx, proc, units, opts)

	var (
		totalBytes int64
		failedIDs  []string
	)
	counts := map[string]int64{}
	metrics := map[string]float64{}

	for done := 0; done < len(units); done++ {
		out := <-results
		outcome.Processed++
		now := time.Now().UTC()

		if out.err == nil {
			if store != nil {
				if err := store.MarkDownloaded(ctx, out.unit.GUID, out.result.Bytes, out.result.ContentETag, now); err != nil {
					return nil, abort(opts, logger, fmt.Errorf("record success for %s: %w", out.unit.UnitID, err))
				}
			}
			outcome.Succeeded++
			totalBytes += out.result.Bytes
			mergeCounts(counts, out.result.Counts)
			mergeMetrics(metrics, out.result.Metrics)
		} else {
			key := services.Key(out.err)
			if store != nil {
				if applyErr := applyFailure(ctx, store, out.unit, out.err, key, opts.MaxRetry, now, outcome); applyErr != nil {
					return nil, abort(opts, logger, fmt.Errorf("record failure for %s: %w", out.unit.UnitID, applyErr))
				}
			}
			outcome.Failed++
			failedIDs = append(failedIDs, out.unit.UnitID)
			if err := m.AddError(out.unit.UnitID, key, out.err.Error()); err != nil {
				return nil, abort(opts, logger, err)
			}
			logger.Warn("unit failed",
				logging.String(logging.FieldUnitID, out.unit.UnitID),
				logging.String("error_key", key),
				logging.Error(out.err))
		}

		pct := float64(done+1) / float64(len(units)) * 100
		eta := etaSeconds(started, done+1, len(units))
		_ = reporter.Update("process", pct, fmt.Sprintf("%d/%d units", done+1, len(units)), eta)
	}

	elapsed := time.Since(started)
	metrics["throughput_mbps"] = throughputMbps(totalBytes, elapsed)
	metrics["elapsed_s"] = elapsed.Seconds()
	if err := m.MergeMetrics(metrics); err != nil {
		return nil, abort(opts, logger, err)
	}
	for name, value := range counts {
		if err := m.SetCount(name, value); err != nil {
			return nil, abort(opts, logger, err)
		}
	}
	if err := writeMetricsFile(opts.RunDir, m.Metrics); err != nil {
		return nil, abort(opts, logger, err)
	}

	sort.Strings(failedIDs)
	outcome.FailedIDs = failedIDs

	if len(failedIDs) > 0 {
		if err := finalizePartial(m, outcome, opts, failedIDs); err != nil {
			return nil, abort(opts, logger, err)
		}
	} else {
		if err := finalizeSuccess(m, opts, int64(outcome.Processed), int64(outcome.Succeeded)); err != nil {
			return nil, abort(opts, logger, err)
		}
	}
	_ = reporter.Update("done", 100, fmt.Sprintf("%d ok, %d failed", outcome.Succeeded, outcome.Failed), 0)
	logger.Info("run finished",
		logging.String("status", string(m.Status)),
		logging.Int("succeeded", outcome.Succeeded),
		logging.Int("failed", outcome.Failed),
		logging.Int("promoted", outcome.Promoted))
	return outcome, nil
}

// computeTODO narrows the store's eligible set by the allow-list and limit.
// The allow-list matches either the store key or the derived identifier so
// the retry fragment from error.json pastes straight back in.
func computeTODO(ctx context.Context, store *state.Store, opts Options) ([]Unit, error) {
	listLimit := opts.Limit
	if len(opts.Only) > 0 {
		listLimit = 0
	}
	recs, err := store.ListTODO(ctx, opts.MaxRetry, listLimit)
	if err != nil {
		return nil, err
	}

	units := make([]Unit, 0, len(recs))
	for _, rec := range recs {
		units = append(units, Unit{
			GUID:       rec.GUID,
			UnitID:     rec.RecordingID,
			DateMS:     rec.RecordingDateMS,
			RetryCount: rec.RetryCount,
		})
	}
	return filterUnits(units, opts), nil
}

// filterUnits applies the allow-list and limit. The allow-list matches the
// unit's store key or its derived identifier.
func filterUnits(units []Unit, opts Options) []Unit {
	var allow map[string]struct{}
	if len(opts.Only) > 0 {
		allow = make(map[string]struct{}, len(opts.Only))
		for _, id := range opts.Only {
			allow[id] = struct{}{}
		}
	}

	out := make([]Unit, 0, len(units))
	for _, unit := range units {
		if allow != nil {
			if _, ok := allow[unit.GUID]; !ok {
				if _, ok := allow[unit.UnitID]; !ok {
					continue
				}
			}
		}
		out = append(out, unit)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out
}

// fanOut feeds units to a bounded pool and returns the results channel. A
// panicking Process is converted to a permanent failure instead of taking
// the run down.
func fanOut(ctx context.Context, proc Processor, units []Unit, opts Options) <-chan unitOutcome {
	jobs := make(chan Unit)
	results := make(chan unitOutcome, len(units))

	for i := 0; i < opts.Workers; i++ {
		go func() {
			for unit := range jobs {
				results <- processOne(ctx, proc, unit, opts.UnitTimeout)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, unit := range units {
			select {
			case jobs <- unit:
			case <-ctx.Done():
				results <- unitOutcome{unit: unit, err: services.Wrap(services.ErrTransient, "runner", "dispatch", "run cancelled", ctx.Err())}
			}
		}
	}()
	return results
}

func processOne(ctx context.Context, proc Processor, unit Unit, timeout time.Duration) (out unitOutcome) {
	out.unit = unit
	defer func() {
		if r := recover(); r != nil {
			out.err = services.Wrap(services.ErrPermanent, "runner", "process", fmt.Sprintf("panic: %v", r), nil)
		}
	}()

	unitCtx := services.WithUnitID(ctx, unit.UnitID)
	if timeout > 0 {
		var cancel context.CancelFunc
		unitCtx, cancel = context.WithTimeout(unitCtx, timeout)
		defer cancel()
	}

	result, err := proc.Process(unitCtx, unit)
	if err != nil {
		switch {
		case errors.Is(unitCtx.Err(), context.DeadlineExceeded):
			err = services.Wrap(services.ErrTimeout, "runner", "process", "unit timed out", err)
		case unitCtx.Err() != nil:
			err = services.Wrap(services.ErrTransient, "runner", "process", "run cancelled", err)
		}
		out.err = err
		return out
	}
	out.result = result
	return out
}

// applyFailure applies exactly one store transition for a failed unit:
// permanent errors go straight to failed-permanent, transient ones increment
// the retry counter and are promoted once the counter reaches the ceiling.
func applyFailure(ctx context.Context, store *state.Store, unit Unit, cause error, key string, maxRetry int, at time.Time, outcome *Outcome) error {
	if services.IsPermanent(cause) {
		return store.MarkFailedPermanent(ctx, unit.GUID, key, at)
	}
	count, err := store.MarkFailedTransient(ctx, unit.GUID, key, at)
	if err != nil {
		return err
	}
	if maxRetry > 0 && count >= maxRetry {
		if err := store.MarkFailedPermanent(ctx, unit.GUID, key, at); err != nil {
			return err
		}
		outcome.Promoted++
	}
	return nil
}

func finalizeSuccess(m *manifest.Manifest, opts Options, processed, succeeded int64) error {
	if err := m.SetCount("processed", processed); err != nil {
		return err
	}
	if err := m.SetCount("succeeded", succeeded); err != nil {
		return err
	}
	if err := m.SetCount("failed", 0); err != nil {
		return err
	}
	if err := declareOutputs(m, opts); err != nil {
		return err
	}
	if err := m.FinalizeSuccess(); err != nil {
		return err
	}
	if err := m.Write(filepath.Join(opts.RunDir, "manifest.json")); err != nil {
		return err
	}
	return manifest.WriteSuccessMarker(opts.RunDir)
}

func finalizePartial(m *manifest.Manifest, outcome *Outcome, opts Options, failedIDs []string) error {
	if err := m.SetCount("processed", int64(outcome.Processed)); err != nil {
		return err
	}
	if err := m.SetCount("succeeded", int64(outcome.Succeeded)); err != nil {
		return err
	}
	if err := m.SetCount("failed", int64(outcome.Failed)); err != nil {
		return err
	}
	if err := declareOutputs(m, opts); err != nil {
		return err
	}
	if err := m.FinalizeError(outcome.Succeeded > 0); err != nil {
		return err
	}
	if err := m.Write(filepath.Join(opts.RunDir, "manifest.json")); err != nil {
		return err
	}
	return manifest.WriteRunError(opts.RunDir,
		manifest.NewRunError(failedIDs, fmt.Sprintf("%d of %d units failed", outcome.Failed, outcome.Processed)))
}

func declareOutputs(m *manifest.Manifest, opts Options) error {
	if opts.WriteOutputs != nil {
		return opts.WriteOutputs(opts.RunDir, m)
	}
	return m.SetOutputs("manifest.json", nil)
}

// abort writes the stage-level diagnostic error.json and passes the cause
// through.
func abort(opts Options, logger *slog.Logger, cause error) error {
	logger.Error("run aborted", logging.Error(cause))
	if err := manifest.WriteRunAbort(opts.RunDir, opts.RunID, cause); err != nil {
		logger.Error("write abort diagnostic", logging.Error(err))
	}
	return cause
}

func mergeCounts(dst map[string]int64, src map[string]int64) {
	for name, value := range src {
		dst[name] += value
	}
}

func mergeMetrics(dst map[string]float64, src map[string]float64) {
	for name, value := range src {
		dst[name] += value
	}
}

func etaSeconds(started time.Time, done, total int) float64 {
	if done == 0 || done >= total {
		return 0
	}
	perUnit := time.Since(started).Seconds() / float64(done)
	return perUnit * float64(total-done)
}

func throughputMbps(totalBytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(totalBytes) * 8 / 1e6 / elapsed.Seconds()
}

func writeMetricsFile(runDir string, metrics map[string]float64) error {
	payload, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "metrics.json"), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write metrics.json: %w", err)
	}
	return nil
}
