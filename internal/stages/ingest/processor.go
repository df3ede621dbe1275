package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"callpipe/internal/runner"
	"callpipe/internal/services"
	"callpipe/internal/source"
)

// downloadProcessor fetches one recording's audio. The unit's store key is
// the upstream recording id; the derived identifier names the file on disk.
type downloadProcessor struct {
	client         source.Client
	audioDir       string
	validateHeader bool
}

func (p *downloadProcessor) Process(ctx context.Context, unit runner.Unit) (runner.Result, error) {
	finalPath := filepath.Join(p.audioDir, unit.UnitID+".ogg")

	size, err := p.client.DownloadRecording(ctx, unit.GUID, finalPath)
	if err != nil {
		return runner.Result{}, err
	}

	if p.validateHeader {
		if err := validateOgg(finalPath); err != nil {
			_ = os.Remove(finalPath)
			return runner.Result{}, services.Wrap(services.ErrValidation, "ingest", "validate_ogg", unit.UnitID, err)
		}
	}

	return runner.Result{
		Bytes:  size,
		Counts: map[string]int64{"recordings": 1},
	}, nil
}

// validateOgg checks the OGG capture pattern at the start of the file. A
// wrong header means the upstream served something other than audio, which
// no retry will fix.
func validateOgg(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	header := make([]byte, 4)
	if _, err := file.Read(header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if string(header) != "OggS" {
		return fmt.Errorf("invalid_ogg_header")
	}
	return nil
}
