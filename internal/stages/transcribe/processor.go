package transcribe

import (
	"context"
	"path/filepath"
	"strings"

	"callpipe/internal/runner"
	"callpipe/internal/services"
)

// transcribeProcessor runs the engine on one recording's audio and writes
// the per-unit transcript file.
type transcribeProcessor struct {
	engine        Engine
	audioDir      string
	transcriptDir string
}

func (p *transcribeProcessor) Process(ctx context.Context, unit runner.Unit) (runner.Result, error) {
	audioPath := filepath.Join(p.audioDir, unit.UnitID+".ogg")

	transcript, err := p.engine.Transcribe(ctx, audioPath)
	if err != nil {
		return runner.Result{}, err
	}
	transcript.RecordingID = unit.UnitID
	transcript.CallID = callIDFromRecordingID(unit.UnitID)

	outPath := filepath.Join(p.transcriptDir, unit.UnitID+".json")
	if err := WriteTranscript(outPath, transcript); err != nil {
		return runner.Result{}, services.Wrap(services.ErrTransient, "transcribe", "write_transcript", unit.UnitID, err)
	}

	return runner.Result{
		Counts: map[string]int64{"segments": int64(len(transcript.Segments))},
	}, nil
}

// callIDFromRecordingID strips the _pNN sequence suffix.
func callIDFromRecordingID(recordingID string) string {
	if idx := strings.LastIndex(recordingID, "_p"); idx > 0 {
		return recordingID[:idx]
	}
	return recordingID
}
