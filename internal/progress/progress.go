// Package progress maintains the advisory progress.json file inside a run
// directory. Readers poll it; nothing in the pipeline depends on it, so a
// failed write is logged and swallowed by callers.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Snapshot is the progress.json payload.
type Snapshot struct {
	Phase        string  `json:"phase"`
	Pct          float64 `json:"pct"`
	Msg          string  `json:"msg"`
	EtaSeconds   float64 `json:"eta_s"`
	UpdatedAtUTC string  `json:"updated_at_utc"`
}

// Reporter overwrites progress.json under a mutex so concurrent updates from
// the control path never interleave.
type Reporter struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewReporter creates a reporter writing into the given run directory.
func NewReporter(runDir string) *Reporter {
	return &Reporter{
		path: filepath.Join(runDir, "progress.json"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Update overwrites progress.json with the current phase and completion
// percentage. The file is written to a temp name and renamed so readers
// never see a torn write.
func (r *Reporter) Update(phase string, pct float64, msg string, etaSeconds float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	snapshot := Snapshot{
		Phase:        phase,
		Pct:          pct,
		Msg:          msg,
		EtaSeconds:   etaSeconds,
		UpdatedAtUTC: r.now().Format("2006-01-02T15:04:05Z"),
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace progress: %w", err)
	}
	return nil
}

// Path returns the progress.json location.
func (r *Reporter) Path() string {
	return r.path
}

// Read loads a progress snapshot; used by the status command and tests.
func Read(runDir string) (Snapshot, error) {
	payload, err := os.ReadFile(filepath.Join(runDir, "progress.json"))
	if err != nil {
		return Snapshot{}, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("parse progress.json: %w", err)
	}
	return snapshot, nil
}
