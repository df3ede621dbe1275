package anonymize

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"callpipe/internal/runner"
	"callpipe/internal/services"
	"callpipe/internal/stages/transcribe"
)

// anonymizeProcessor redacts one transcript and writes the redacted copy
// plus its vault map into this run's directories.
type anonymizeProcessor struct {
	scrubber      Scrubber
	inputDir      string
	transcriptDir string
	vaultDir      string
}

func (p *anonymizeProcessor) Process(ctx context.Context, unit runner.Unit) (runner.Result, error) {
	if err := ctx.Err(); err != nil {
		return runner.Result{}, services.Wrap(services.ErrTransient, "anonymize", "context", unit.UnitID, err)
	}

	transcript, err := transcribe.LoadTranscript(filepath.Join(p.inputDir, unit.UnitID+".json"))
	if err != nil {
		return runner.Result{}, services.Wrap(services.ErrValidation, "anonymize", "load_transcript", unit.UnitID, err)
	}

	redacted, stats, vault, err := p.scrubber.Redact(transcript)
	if err != nil {
		return runner.Result{}, services.Wrap(services.ErrPermanent, "anonymize", "redact", unit.UnitID, err)
	}

	outPath := filepath.Join(p.transcriptDir, unit.UnitID+".json")
	if err := transcribe.WriteTranscript(outPath, redacted); err != nil {
		return runner.Result{}, services.Wrap(services.ErrTransient, "anonymize", "write_transcript", unit.UnitID, err)
	}
	if err := writeVaultMap(filepath.Join(p.vaultDir, unit.UnitID+".json"), vault); err != nil {
		return runner.Result{}, services.Wrap(services.ErrTransient, "anonymize", "write_vault", unit.UnitID, err)
	}

	counts := map[string]int64{"replacements": int64(stats.Total)}
	for kind, n := range stats.ByType {
		counts["replacements_"+kind] = int64(n)
	}
	return runner.Result{Counts: counts}, nil
}

// writeVaultMap persists the tag -> hash map for one recording. An empty
// vault is still written so downstream audits can tell "nothing found" from
// "never scanned".
func writeVaultMap(path string, vault map[string]string) error {
	if vault == nil {
		vault = map[string]string{}
	}
	payload, err := json.MarshalIndent(vault, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal vault map: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}
	if err := os.WriteFile(path, append(payload, '\n'), 0o600); err != nil {
		return fmt.Errorf("write vault map: %w", err)
	}
	return nil
}

// LoadVaultMap reads one recording's vault map.
func LoadVaultMap(path string) (map[string]string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var vault map[string]string
	if err := json.Unmarshal(payload, &vault); err != nil {
		return nil, fmt.Errorf("parse vault map %s: %w", path, err)
	}
	return vault, nil
}
