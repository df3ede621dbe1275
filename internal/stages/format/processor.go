package format

import (
	"context"
	"os"
	"path/filepath"

	"callpipe/internal/runner"
	"callpipe/internal/services"
	"callpipe/internal/stages/transcribe"
)

// formatProcessor renders one transcript as Markdown and optionally hands
// the document to the uploader.
type formatProcessor struct {
	uploader    Uploader
	inputDir    string
	markdownDir string
}

func (p *formatProcessor) Process(ctx context.Context, unit runner.Unit) (runner.Result, error) {
	transcript, err := transcribe.LoadTranscript(filepath.Join(p.inputDir, unit.UnitID+".json"))
	if err != nil {
		return runner.Result{}, services.Wrap(services.ErrValidation, "format", "load_transcript", unit.UnitID, err)
	}

	document := RenderTranscript(transcript, true)
	outPath := filepath.Join(p.markdownDir, unit.UnitID+".md")
	if err := os.MkdirAll(p.markdownDir, 0o755); err != nil {
		return runner.Result{}, services.Wrap(services.ErrTransient, "format", "create_dir", unit.UnitID, err)
	}
	if err := os.WriteFile(outPath, []byte(document), 0o644); err != nil {
		return runner.Result{}, services.Wrap(services.ErrTransient, "format", "write_document", unit.UnitID, err)
	}

	counts := map[string]int64{"documents": 1}
	if p.uploader != nil {
		if err := p.uploader.Upload(ctx, outPath, unit.UnitID+".md"); err != nil {
			return runner.Result{}, services.Wrap(services.ErrTransient, "format", "upload", unit.UnitID, err)
		}
		counts["uploaded"] = 1
	}

	return runner.Result{
		Bytes:  int64(len(document)),
		Counts: counts,
	}, nil
}
