package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RunError is the error.json payload written next to a partial or failed
// manifest. RetryCommand is a ready-made --only fragment for re-running just
// the failed units.
type RunError struct {
	FailedIDs    []string `json:"failed_ids"`
	Reason       string   `json:"reason"`
	RetryCommand string   `json:"retry_command"`
}

// NewRunError builds the error.json payload for the given failed unit ids.
func NewRunError(failedIDs []string, reason string) RunError {
	return RunError{
		FailedIDs:    failedIDs,
		Reason:       reason,
		RetryCommand: "--only " + strings.Join(failedIDs, ","),
	}
}

// WriteRunError writes error.json into the run directory.
func WriteRunError(runDir string, runErr RunError) error {
	return writeJSON(filepath.Join(runDir, "error.json"), runErr)
}

// RunAbort is the diagnostic error.json written when a run dies before its
// manifest could be finalized.
type RunAbort struct {
	Error     string `json:"error"`
	Type      string `json:"type"`
	StepRunID string `json:"step_run_id"`
}

// WriteRunAbort writes a stage-level diagnostic error.json.
func WriteRunAbort(runDir, stepRunID string, cause error) error {
	abort := RunAbort{
		Error:     cause.Error(),
		Type:      fmt.Sprintf("%T", cause),
		StepRunID: stepRunID,
	}
	return writeJSON(filepath.Join(runDir, "error.json"), abort)
}

// WriteSuccessMarker touches the success.ok marker in the run directory.
func WriteSuccessMarker(runDir string) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "success.ok"), nil, 0o644); err != nil {
		return fmt.Errorf("write success marker: %w", err)
	}
	return nil
}

func writeJSON(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
