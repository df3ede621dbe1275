package transcribe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// WriteTranscript persists one transcript as indented JSON.
func WriteTranscript(path string, t Transcript) error {
	payload, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript %s: %w", t.RecordingID, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	if err := os.WriteFile(path, append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write transcript %s: %w", t.RecordingID, err)
	}
	return nil
}

// LoadTranscript reads one transcript JSON file.
func LoadTranscript(path string) (Transcript, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Transcript{}, err
	}
	var t Transcript
	if err := json.Unmarshal(payload, &t); err != nil {
		return Transcript{}, fmt.Errorf("parse transcript %s: %w", path, err)
	}
	return t, nil
}

// TranscriptDir returns the per-unit transcript directory inside a run.
func TranscriptDir(runDir string) string {
	return filepath.Join(runDir, "data", "transcripts")
}

// ListTranscriptFiles returns the transcript JSON files of a run in
// lexicographic (and therefore recording_id) order.
func ListTranscriptFiles(runDir string) ([]string, error) {
	dir := TranscriptDir(runDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read transcripts dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// WriteIndex renders the transcripts.jsonl index over every transcript file
// of the run, in recording_id order.
func WriteIndex(runDir string) (int, error) {
	files, err := ListTranscriptFiles(runDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, err
	}

	indexPath := filepath.Join(runDir, "data", "transcripts.jsonl")
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return 0, fmt.Errorf("create data dir: %w", err)
	}
	out, err := os.Create(indexPath)
	if err != nil {
		return 0, fmt.Errorf("create index: %w", err)
	}
	encoder := json.NewEncoder(out)
	for _, file := range files {
		t, err := LoadTranscript(file)
		if err != nil {
			out.Close()
			return 0, err
		}
		if err := encoder.Encode(t); err != nil {
			out.Close()
			return 0, fmt.Errorf("encode index entry %s: %w", t.RecordingID, err)
		}
	}
	return len(files), out.Close()
}
