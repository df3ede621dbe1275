package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"callpipe/internal/source"
)

// writeSnapshots persists the fetched metadata as JSONL audit files in
// deterministic order: calls by call_id, recordings by recording_id.
func writeSnapshots(dataDir string, calls []fetched) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	callMetas := make([]source.CallMeta, 0, len(calls))
	var recordingMetas []source.RecordingMeta
	for _, entry := range calls {
		callMetas = append(callMetas, entry.call)
		recordingMetas = append(recordingMetas, entry.recordings...)
	}
	sort.Slice(callMetas, func(i, j int) bool { return callMetas[i].CallID < callMetas[j].CallID })
	sort.Slice(recordingMetas, func(i, j int) bool { return recordingMetas[i].RecordingID < recordingMetas[j].RecordingID })

	if err := writeJSONL(filepath.Join(dataDir, "calls.jsonl"), len(callMetas), func(i int) any { return callMetas[i] }); err != nil {
		return err
	}
	return writeJSONL(filepath.Join(dataDir, "recordings.jsonl"), len(recordingMetas), func(i int) any { return recordingMetas[i] })
}

func writeJSONL(path string, n int, at func(int) any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	encoder := json.NewEncoder(file)
	for i := 0; i < n; i++ {
		if err := encoder.Encode(at(i)); err != nil {
			file.Close()
			return fmt.Errorf("encode %s line %d: %w", filepath.Base(path), i, err)
		}
	}
	return file.Close()
}
