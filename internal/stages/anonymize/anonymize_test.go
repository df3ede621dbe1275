package anonymize_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"callpipe/internal/config"
	"callpipe/internal/ids"
	"callpipe/internal/logging"
	"callpipe/internal/manifest"
	"callpipe/internal/stages/anonymize"
	"callpipe/internal/stages/transcribe"
	"callpipe/internal/testsupport"
)

func TestRedactDeterministicTags(t *testing.T) {
	scrubber := anonymize.NewRegexScrubber("tajny")

	redacted, stats, vault, err := scrubber.Redact(transcribe.Transcript{
		Text: "Volejte 601 123 456, nebo 601 123 456",
	})
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if redacted.Text != "Volejte @PHONE_1, nebo @PHONE_1" {
		t.Fatalf("text = %q", redacted.Text)
	}
	if stats.Total != 2 || stats.ByType["PHONE"] != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	sum := sha256.Sum256([]byte("tajny:601 123 456"))
	if vault["@PHONE_1"] != hex.EncodeToString(sum[:]) {
		t.Fatalf("vault = %v", vault)
	}
	if len(vault) != 1 {
		t.Fatalf("vault has %d entries, want 1", len(vault))
	}
}

func TestRedactAllTypesAndSegments(t *testing.T) {
	scrubber := anonymize.NewRegexScrubber("")

	redacted, stats, vault, err := scrubber.Redact(transcribe.Transcript{
		Text: "Pište na jan.novak@example.com",
		Segments: []transcribe.Segment{
			{StartS: 0, EndS: 5, Text: "Číslo účtu je CZ6508000000192000145399"},
			{StartS: 5, EndS: 10, Text: "Telefon 601 123 456"},
		},
	})
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if !strings.Contains(redacted.Text, "@EMAIL_1") {
		t.Fatalf("text = %q", redacted.Text)
	}
	if !strings.Contains(redacted.Segments[0].Text, "@IBAN_1") {
		t.Fatalf("segment 0 = %q", redacted.Segments[0].Text)
	}
	if !strings.Contains(redacted.Segments[1].Text, "@PHONE_1") {
		t.Fatalf("segment 1 = %q", redacted.Segments[1].Text)
	}
	if stats.Total != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	for tag, hash := range vault {
		if len(hash) != 64 {
			t.Fatalf("vault[%s] = %q, want 64 hex chars", tag, hash)
		}
	}
}

// seedTranscribeRun forges a finished transcribe run directory so the
// anonymize stage has input without the full pipeline in front of it.
func seedTranscribeRun(t *testing.T, cfg *config.Config, transcripts []transcribe.Transcript) string {
	t.Helper()

	runID := ids.NewRunID()
	runDir := cfg.RunDir(runID)
	for _, transcript := range transcripts {
		path := filepath.Join(transcribe.TranscriptDir(runDir), transcript.RecordingID+".json")
		if err := transcribe.WriteTranscript(path, transcript); err != nil {
			t.Fatalf("WriteTranscript: %v", err)
		}
	}

	m := manifest.New(transcribe.Schema, transcribe.SchemaVersion, transcribe.StepID, runID, "", manifest.ModeIncr)
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

func TestRunRedactsTranscribeOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	inputRunID := seedTranscribeRun(t, cfg, []transcribe.Transcript{
		{
			RecordingID: "20240822_054336_71da9579_p01",
			CallID:      "20240822_054336_71da9579",
			Language:    "cs",
			Model:       "large-v3",
			Text:        "Pište na jan.novak@example.com nebo volejte 601 123 456",
			Segments: []transcribe.Segment{
				{StartS: 0, EndS: 5, Text: "Zavolám na číslo 601 123 456", Confidence: 0.9},
				{StartS: 5, EndS: 10, Text: "Účet CZ6508000000192000145399", Confidence: 0.9},
			},
		},
		{
			RecordingID: "20240822_054336_71da9579_p02",
			CallID:      "20240822_054336_71da9579",
			Language:    "cs",
			Model:       "large-v3",
			Text:        "Tady nic osobního není",
		},
	})

	stage := anonymize.New(cfg, nil, logging.NewNop())
	outcome, err := stage.Run(context.Background(), anonymize.Options{
		Mode:       manifest.ModeIncr,
		InputRunID: inputRunID,
	})
	if err != nil {
		t.Fatalf("anonymize Run: %v", err)
	}
	if outcome.Manifest.Status != manifest.StatusSuccess {
		t.Fatalf("status = %q, want success", outcome.Manifest.Status)
	}
	if outcome.Manifest.Counts["transcripts"] != 2 {
		t.Fatalf("counts = %v", outcome.Manifest.Counts)
	}
	if outcome.Manifest.Counts["replacements"] != 4 {
		t.Fatalf("replacements = %d, want 4", outcome.Manifest.Counts["replacements"])
	}

	redacted, err := transcribe.LoadTranscript(
		filepath.Join(transcribe.TranscriptDir(outcome.RunDir), "20240822_054336_71da9579_p01.json"))
	if err != nil {
		t.Fatalf("LoadTranscript: %v", err)
	}
	if strings.Contains(redacted.Text, "601 123 456") || strings.Contains(redacted.Text, "jan.novak") {
		t.Fatalf("raw PII survived: %q", redacted.Text)
	}
	if !strings.Contains(redacted.Text, "@PHONE_1") || !strings.Contains(redacted.Text, "@EMAIL_1") {
		t.Fatalf("tags missing: %q", redacted.Text)
	}
	if !strings.Contains(redacted.Segments[0].Text, "@PHONE_1") {
		t.Fatalf("segment not redacted: %q", redacted.Segments[0].Text)
	}
	if !strings.Contains(redacted.Segments[1].Text, "@IBAN_1") {
		t.Fatalf("segment not redacted: %q", redacted.Segments[1].Text)
	}

	vault, err := anonymize.LoadVaultMap(
		filepath.Join(anonymize.VaultDir(outcome.RunDir), "20240822_054336_71da9579_p01.json"))
	if err != nil {
		t.Fatalf("LoadVaultMap: %v", err)
	}
	if len(vault) != 3 {
		t.Fatalf("vault has %d entries, want 3", len(vault))
	}
	for tag, hash := range vault {
		if len(hash) != 64 {
			t.Fatalf("vault[%s] = %q, want 64 hex chars", tag, hash)
		}
	}

	if _, err := os.Stat(filepath.Join(outcome.RunDir, "data", "transcripts.jsonl")); err != nil {
		t.Fatalf("transcripts.jsonl missing: %v", err)
	}
}

func TestRunRequiresInputRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stage := anonymize.New(cfg, nil, logging.NewNop())

	if _, err := stage.Run(context.Background(), anonymize.Options{Mode: manifest.ModeIncr}); err == nil {
		t.Fatal("Run without input run id did not fail")
	}
	if _, err := stage.Run(context.Background(), anonymize.Options{
		Mode:       manifest.ModeIncr,
		InputRunID: "01J8ZQ2M5T9RY4V6W8XA0BCDEF",
	}); err == nil {
		t.Fatal("Run with unknown input run id did not fail")
	}
}
