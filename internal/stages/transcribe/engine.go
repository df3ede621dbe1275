package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"

	"callpipe/internal/services"
)

// Engine converts one audio file into a transcript. Implementations wrap an
// ASR backend; the stage itself stays backend-agnostic.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string) (Transcript, error)
}

// StubEngine produces deterministic placeholder transcripts. It stands in
// for a real ASR backend in tests and dry runs: output depends only on the
// audio file's size, so repeated runs agree.
type StubEngine struct {
	Model    string
	Language string
}

func (e *StubEngine) Transcribe(_ context.Context, audioPath string) (Transcript, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return Transcript{}, services.Wrap(services.ErrValidation, "transcribe", "read_audio",
			fmt.Sprintf("audio file %s", audioPath), err)
	}

	segments := int(info.Size()/512) + 1
	if segments > 8 {
		segments = 8
	}
	transcript := Transcript{
		Language:  e.Language,
		Model:     e.Model,
		DurationS: float64(segments) * 5,
	}
	var text strings.Builder
	for i := 0; i < segments; i++ {
		segText := fmt.Sprintf("segment %d", i+1)
		transcript.Segments = append(transcript.Segments, Segment{
			StartS:     float64(i) * 5,
			EndS:       float64(i+1) * 5,
			Text:       segText,
			Confidence: 0.9,
		})
		if i > 0 {
			text.WriteByte(' ')
		}
		text.WriteString(segText)
	}
	transcript.Text = text.String()
	return transcript, nil
}
