package manifest_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"callpipe/internal/manifest"
)

func newTestManifest() *manifest.Manifest {
	return manifest.New("bh.v1.recordings", "1.0.0", "01_ingest", "01J8ZQ2M5T9RY4V6W8XA0BCDEF", "", manifest.ModeIncr)
}

func TestFinalizeSuccess(t *testing.T) {
	m := newTestManifest()
	if err := m.SetOutputs("recordings.jsonl", nil); err != nil {
		t.Fatalf("SetOutputs: %v", err)
	}
	if err := m.SetCount("recordings", 3); err != nil {
		t.Fatalf("SetCount: %v", err)
	}
	if err := m.FinalizeSuccess(); err != nil {
		t.Fatalf("FinalizeSuccess: %v", err)
	}
	if m.Status != manifest.StatusSuccess {
		t.Fatalf("status = %q, want %q", m.Status, manifest.StatusSuccess)
	}
	if m.FinishedAtUTC == "" {
		t.Fatal("finished_at_utc not set")
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestFinalizeSuccessRejectsErrors(t *testing.T) {
	m := newTestManifest()
	if err := m.AddError("20240822_054336_71da9579_p01", "timeout", "download timed out"); err != nil {
		t.Fatalf("AddError: %v", err)
	}
	if err := m.FinalizeSuccess(); err == nil {
		t.Fatal("FinalizeSuccess with errors did not fail")
	}
}

func TestFinalizeErrorRequiresErrors(t *testing.T) {
	m := newTestManifest()
	if err := m.FinalizeError(false); err == nil {
		t.Fatal("FinalizeError without errors did not fail")
	}
	if err := m.AddError("unit-1", "timeout", ""); err != nil {
		t.Fatalf("AddError: %v", err)
	}
	if err := m.FinalizeError(true); err != nil {
		t.Fatalf("FinalizeError: %v", err)
	}
	if m.Status != manifest.StatusPartial {
		t.Fatalf("status = %q, want %q", m.Status, manifest.StatusPartial)
	}
}

func TestMutatorsAfterFinalize(t *testing.T) {
	m := newTestManifest()
	if err := m.SetOutputs("out.jsonl", nil); err != nil {
		t.Fatalf("SetOutputs: %v", err)
	}
	if err := m.FinalizeSuccess(); err != nil {
		t.Fatalf("FinalizeSuccess: %v", err)
	}

	checks := map[string]error{
		"AddInputRef":   m.AddInputRef("recording_id", "x"),
		"SetOutputs":    m.SetOutputs("other.jsonl", nil),
		"SetCount":      m.SetCount("calls", 1),
		"MergeMetrics":  m.MergeMetrics(map[string]float64{"throughput_mbps": 1.5}),
		"AddError":      m.AddError("unit-1", "timeout", ""),
		"SetNotes":      m.SetNotes("note"),
		"FinalizeError": m.FinalizeError(false),
	}
	for name, err := range checks {
		if !errors.Is(err, manifest.ErrFinalized) {
			t.Errorf("%s after finalize = %v, want ErrFinalized", name, err)
		}
	}
}

func TestValidateListsEveryViolation(t *testing.T) {
	m := newTestManifest()
	m.SchemaVersion = "1.2"
	if err := m.AddError("unit-1", "timeout", ""); err != nil {
		t.Fatalf("AddError: %v", err)
	}
	if err := m.FinalizeError(false); err != nil {
		t.Fatalf("FinalizeError: %v", err)
	}

	err := m.Validate()
	if err == nil {
		t.Fatal("Validate passed a manifest with a bad version and no primary output")
	}
	msg := err.Error()
	for _, want := range []string{"schema_version", "outputs.primary"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Validate error %q does not mention %s", msg, want)
		}
	}
}

func TestWriteRequiresFinalize(t *testing.T) {
	m := newTestManifest()
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := m.Write(path); err == nil {
		t.Fatal("Write before finalize did not fail")
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs", "01J8ZQ2M5T9RY4V6W8XA0BCDEF", "manifest.json")

	m := newTestManifest()
	if err := m.AddInputRef("since", "2024-08-01"); err != nil {
		t.Fatalf("AddInputRef: %v", err)
	}
	if err := m.SetOutputs("recordings.jsonl", map[string]string{"calls": "calls.jsonl"}); err != nil {
		t.Fatalf("SetOutputs: %v", err)
	}
	if err := m.SetCount("recordings", 2); err != nil {
		t.Fatalf("SetCount: %v", err)
	}
	if err := m.MergeMetrics(map[string]float64{"throughput_mbps": 12.5}); err != nil {
		t.Fatalf("MergeMetrics: %v", err)
	}
	if err := m.FinalizeSuccess(); err != nil {
		t.Fatalf("FinalizeSuccess: %v", err)
	}
	if err := m.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	loaded, err := manifest.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Finalized() {
		t.Fatal("loaded manifest not finalized")
	}
	if loaded.Counts["recordings"] != 2 || loaded.Metrics["throughput_mbps"] != 12.5 {
		t.Fatalf("round trip lost data: counts=%v metrics=%v", loaded.Counts, loaded.Metrics)
	}
	if err := loaded.AddError("x", "y", ""); !errors.Is(err, manifest.ErrFinalized) {
		t.Fatalf("mutating loaded manifest = %v, want ErrFinalized", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read manifest file: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("manifest file is not JSON: %v", err)
	}
	for _, key := range []string{"schema", "schema_version", "step_id", "step_run_id", "producer", "run_mode", "started_at_utc", "finished_at_utc", "status", "outputs", "counts", "metrics"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("manifest file missing %q", key)
		}
	}
}

func TestRunErrorArtifact(t *testing.T) {
	dir := t.TempDir()
	runErr := manifest.NewRunError([]string{"a_p01", "b_p02"}, "some recordings failed to download")
	if runErr.RetryCommand != "--only a_p01,b_p02" {
		t.Fatalf("retry command = %q", runErr.RetryCommand)
	}
	if err := manifest.WriteRunError(dir, runErr); err != nil {
		t.Fatalf("WriteRunError: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "error.json"))
	if err != nil {
		t.Fatalf("read error.json: %v", err)
	}
	var got manifest.RunError
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("parse error.json: %v", err)
	}
	if len(got.FailedIDs) != 2 || got.FailedIDs[0] != "a_p01" {
		t.Fatalf("failed_ids = %v", got.FailedIDs)
	}
}

func TestSuccessMarker(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	if err := manifest.WriteSuccessMarker(dir); err != nil {
		t.Fatalf("WriteSuccessMarker: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "success.ok")); err != nil {
		t.Fatalf("success.ok missing: %v", err)
	}
}

func TestParseRunMode(t *testing.T) {
	for _, valid := range []string{"backfill", "incr", "dry"} {
		if _, err := manifest.ParseRunMode(valid); err != nil {
			t.Errorf("ParseRunMode(%q): %v", valid, err)
		}
	}
	if _, err := manifest.ParseRunMode("resume"); err == nil {
		t.Error("ParseRunMode accepted unknown mode")
	}
}
