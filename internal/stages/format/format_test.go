package format_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"callpipe/internal/config"
	"callpipe/internal/ids"
	"callpipe/internal/logging"
	"callpipe/internal/manifest"
	"callpipe/internal/stages/anonymize"
	"callpipe/internal/stages/format"
	"callpipe/internal/stages/transcribe"
	"callpipe/internal/testsupport"
)

func TestFormatTime(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00"},
		{59.7, "00:00:59"},
		{61, "00:01:01"},
		{3723, "01:02:03"},
	}
	for _, tc := range cases {
		if got := format.FormatTime(tc.seconds); got != tc.want {
			t.Errorf("FormatTime(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestRenderTranscript(t *testing.T) {
	doc := format.RenderTranscript(transcribe.Transcript{
		RecordingID: "20240822_054336_71da9579_p01",
		CallID:      "20240822_054336_71da9579",
		Language:    "cs",
		Model:       "large-v3",
		DurationS:   125,
		Segments: []transcribe.Segment{
			{StartS: 0, EndS: 5, Text: "Dobrý den, volám kvůli @PHONE_1"},
			{StartS: 5, EndS: 10, Text: "  "},
			{StartS: 10, EndS: 15, Text: "Děkuji"},
		},
	}, true)

	for _, want := range []string{
		"# Recording 20240822_054336_71da9579_p01",
		"*Part of call 20240822_054336_71da9579*",
		"- **Duration:** 00:02:05",
		"- **Language:** Czech",
		"- **Model:** large-v3",
		"**[00:00:00]** Dobrý den, volám kvůli @PHONE_1",
		"**[00:00:10]** Děkuji",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q:\n%s", want, doc)
		}
	}
	if strings.Contains(doc, "[00:00:05]") {
		t.Errorf("blank segment rendered:\n%s", doc)
	}
}

func TestRenderTranscriptTextFallback(t *testing.T) {
	doc := format.RenderTranscript(transcribe.Transcript{
		RecordingID: "20240822_054336_71da9579_p01",
		Text:        "Celý přepis bez segmentů",
	}, false)

	if !strings.Contains(doc, "Celý přepis bez segmentů") {
		t.Fatalf("fallback text missing:\n%s", doc)
	}
	if strings.Contains(doc, "## Metadata") {
		t.Fatalf("metadata rendered without being requested:\n%s", doc)
	}
}

// seedRedactedRun forges a finished anonymize run so the format stage has
// input without the full pipeline in front of it.
func seedRedactedRun(t *testing.T, cfg *config.Config, transcripts []transcribe.Transcript) string {
	t.Helper()

	runID := ids.NewRunID()
	runDir := cfg.RunDir(runID)
	for _, transcript := range transcripts {
		path := filepath.Join(transcribe.TranscriptDir(runDir), transcript.RecordingID+".json")
		if err := transcribe.WriteTranscript(path, transcript); err != nil {
			t.Fatalf("WriteTranscript: %v", err)
		}
	}

	m := manifest.New(anonymize.Schema, anonymize.SchemaVersion, anonymize.StepID, runID, "", manifest.ModeIncr)
	if err := m.SetOutputs("data/transcripts.jsonl", nil); err != nil {
		t.Fatalf("SetOutputs: %v", err)
	}
	if err := m.FinalizeSuccess(); err != nil {
		t.Fatalf("FinalizeSuccess: %v", err)
	}
	if err := m.Write(filepath.Join(runDir, "manifest.json")); err != nil {
		t.Fatalf("Write manifest: %v", err)
	}
	return runID
}

func TestRunRendersRedactedRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	inputRunID := seedRedactedRun(t, cfg, []transcribe.Transcript{
		{
			RecordingID: "20240822_054336_71da9579_p01",
			CallID:      "20240822_054336_71da9579",
			Language:    "cs",
			Model:       "large-v3",
			Segments: []transcribe.Segment{
				{StartS: 0, EndS: 5, Text: "Zavolejte na @PHONE_1"},
			},
		},
		{
			RecordingID: "20240822_054336_71da9579_p02",
			CallID:      "20240822_054336_71da9579",
			Text:        "Krátká nahrávka",
		},
	})

	stage := format.New(cfg, nil, logging.NewNop())
	outcome, err := stage.Run(context.Background(), format.Options{
		Mode:       manifest.ModeIncr,
		InputRunID: inputRunID,
	})
	if err != nil {
		t.Fatalf("format Run: %v", err)
	}
	if outcome.Manifest.Status != manifest.StatusSuccess {
		t.Fatalf("status = %q, want success", outcome.Manifest.Status)
	}
	if outcome.Manifest.Counts["documents"] != 2 {
		t.Fatalf("counts = %v", outcome.Manifest.Counts)
	}

	payload, err := os.ReadFile(filepath.Join(format.MarkdownDir(outcome.RunDir), "20240822_054336_71da9579_p01.md"))
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	if !strings.Contains(string(payload), "@PHONE_1") {
		t.Fatalf("document missing redaction tag:\n%s", payload)
	}
}

func TestRunUploadsWhenEnabled(t *testing.T) {
	exportDir := t.TempDir()
	cfg := testsupport.NewConfig(t)
	cfg.Upload.Enabled = true
	cfg.Upload.ExportDir = exportDir
	cfg.Upload.FolderPath = "transcripts"

	inputRunID := seedRedactedRun(t, cfg, []transcribe.Transcript{
		{RecordingID: "20240822_054336_71da9579_p01", Text: "Nahrávka"},
	})

	stage := format.New(cfg, nil, logging.NewNop())
	outcome, err := stage.Run(context.Background(), format.Options{
		Mode:       manifest.ModeIncr,
		InputRunID: inputRunID,
	})
	if err != nil {
		t.Fatalf("format Run: %v", err)
	}
	if outcome.Manifest.Counts["uploaded"] != 1 {
		t.Fatalf("counts = %v", outcome.Manifest.Counts)
	}

	exported := filepath.Join(exportDir, "transcripts", "20240822_054336_71da9579_p01.md")
	if _, err := os.Stat(exported); err != nil {
		t.Fatalf("exported document missing: %v", err)
	}
}

func TestLocalUploaderHonorsContext(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "doc.md")
	if err := os.WriteFile(src, []byte("# Nahrávka\n"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	uploader := &format.LocalUploader{ExportDir: dir, FolderPath: "out", Timeout: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := uploader.Upload(ctx, src, "doc.md"); err == nil {
		t.Fatal("Upload with a dead context did not fail")
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "doc.md")); !os.IsNotExist(err) {
		t.Fatalf("document exported despite dead context: %v", err)
	}

	if err := uploader.Upload(context.Background(), src, "doc.md"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "doc.md")); err != nil {
		t.Fatalf("exported document missing: %v", err)
	}
}
