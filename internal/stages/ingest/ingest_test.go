package ingest_test

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"callpipe/internal/logging"
	"callpipe/internal/manifest"
	"callpipe/internal/source"
	"callpipe/internal/stages/ingest"
	"callpipe/internal/state"
	"callpipe/internal/testsupport"
)

func TestRunDownloadsEverything(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := source.NewFakeClient(2)

	stage := ingest.New(cfg, store, client, logging.NewNop())
	outcome, err := stage.Run(context.Background(), ingest.Options{Mode: manifest.ModeIncr})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Manifest.Status != manifest.StatusSuccess {
		t.Fatalf("status = %q, want success", outcome.Manifest.Status)
	}
	if outcome.Succeeded != 4 {
		t.Fatalf("succeeded = %d, want 4 (2 calls x 2 recordings)", outcome.Succeeded)
	}

	stats, err := store.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Calls != 2 || stats.ByStatus[state.StatusDownloaded] != 4 {
		t.Fatalf("stats = %+v", stats)
	}

	audioDir := filepath.Join(outcome.RunDir, "data", "audio")
	entries, err := os.ReadDir(audioDir)
	if err != nil {
		t.Fatalf("read audio dir: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("audio dir has %d files, want 4", len(entries))
	}
	for _, entry := range entries {
		payload, err := os.ReadFile(filepath.Join(audioDir, entry.Name()))
		if err != nil {
			t.Fatalf("read %s: %v", entry.Name(), err)
		}
		if string(payload[:4]) != "OggS" {
			t.Fatalf("%s is not an OGG file", entry.Name())
		}
	}

	if got := countLines(t, filepath.Join(outcome.RunDir, "data", "calls.jsonl")); got != 2 {
		t.Fatalf("calls.jsonl has %d lines, want 2", got)
	}
	if got := countLines(t, filepath.Join(outcome.RunDir, "data", "recordings.jsonl")); got != 4 {
		t.Fatalf("recordings.jsonl has %d lines, want 4", got)
	}
}

func TestRunInvalidAudioGoesPermanent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := source.NewFakeClient(1)

	// One extra recording whose download produces garbage instead of OGG.
	guid := client.Calls[0].GUID
	date := client.Calls[0].LastUpdateMS + 50
	client.Recordings[guid] = append(client.Recordings[guid], source.RecordingRef{
		ID:     guid[:8] + "-rec-fail",
		DateMS: &date,
	})

	stage := ingest.New(cfg, store, client, logging.NewNop())
	outcome, err := stage.Run(context.Background(), ingest.Options{Mode: manifest.ModeIncr})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Manifest.Status != manifest.StatusPartial {
		t.Fatalf("status = %q, want partial", outcome.Manifest.Status)
	}
	if outcome.Failed != 1 || outcome.Succeeded != 2 {
		t.Fatalf("succeeded=%d failed=%d", outcome.Succeeded, outcome.Failed)
	}

	rec, err := store.GetRecording(context.Background(), guid[:8]+"-rec-fail")
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if rec.Status != state.StatusFailedPermanent {
		t.Fatalf("bad audio status = %q, want failed-permanent", rec.Status)
	}
	if _, err := os.Stat(filepath.Join(outcome.RunDir, "error.json")); err != nil {
		t.Fatalf("error.json missing: %v", err)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := source.NewFakeClient(1)
	stage := ingest.New(cfg, store, client, logging.NewNop())

	first, err := stage.Run(context.Background(), ingest.Options{Mode: manifest.ModeIncr})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Succeeded != 2 {
		t.Fatalf("first run succeeded = %d", first.Succeeded)
	}

	second, err := stage.Run(context.Background(), ingest.Options{Mode: manifest.ModeIncr})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Processed != 0 {
		t.Fatalf("second run processed %d units, want 0", second.Processed)
	}
	if second.Manifest.Status != manifest.StatusSuccess {
		t.Fatalf("second run status = %q", second.Manifest.Status)
	}
}

func TestRunDryModeLeavesStoreAlone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := source.NewFakeClient(2)
	stage := ingest.New(cfg, store, client, logging.NewNop())

	outcome, err := stage.Run(context.Background(), ingest.Options{Mode: manifest.ModeDry})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Manifest.Status != manifest.StatusSuccess {
		t.Fatalf("status = %q", outcome.Manifest.Status)
	}
	if outcome.Manifest.RunMode != manifest.ModeDry {
		t.Fatalf("run_mode = %q", outcome.Manifest.RunMode)
	}
	if outcome.Manifest.Counts["recordings"] != 4 || outcome.Manifest.Counts["downloaded"] != 0 {
		t.Fatalf("counts = %v", outcome.Manifest.Counts)
	}

	stats, err := store.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Calls != 0 || stats.Recordings != 0 {
		t.Fatalf("dry run wrote to the store: %+v", stats)
	}
	if _, err := os.Stat(filepath.Join(outcome.RunDir, "data", "audio")); !os.IsNotExist(err) {
		t.Fatal("dry run created the audio directory")
	}
	if _, err := os.Stat(filepath.Join(outcome.RunDir, "data", "calls.jsonl")); err != nil {
		t.Fatalf("dry run snapshot missing: %v", err)
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan %s: %v", path, err)
	}
	return count
}
