package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"callpipe/internal/config"
	"callpipe/internal/manifest"
	"callpipe/internal/runlock"
	"callpipe/internal/runner"
	"callpipe/internal/source"
	"callpipe/internal/stages/anonymize"
	"callpipe/internal/stages/format"
	"callpipe/internal/stages/ingest"
	"callpipe/internal/stages/transcribe"
	"callpipe/internal/state"
)

// stageFlags are the knobs shared by every stage command.
type stageFlags struct {
	mode      string
	runID     string
	flowRunID string
	inputRun  string
	only      []string
	limit     int
}

func (f *stageFlags) register(cmd *cobra.Command, withInputRun bool) {
	cmd.Flags().StringVar(&f.mode, "mode", string(manifest.ModeIncr), "Run mode: backfill, incr or dry")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "Step run ID (a ULID is generated when empty)")
	cmd.Flags().StringVar(&f.flowRunID, "flow-run-id", "", "Flow run ID grouping the pipeline's stages")
	cmd.Flags().StringSliceVar(&f.only, "only", nil, "Restrict the run to these unit IDs")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Process at most this many units (0 = all)")
	if withInputRun {
		cmd.Flags().StringVar(&f.inputRun, "input-run", "", "Step run ID of the previous stage")
		_ = cmd.MarkFlagRequired("input-run")
	}
}

func (f *stageFlags) runMode() (manifest.RunMode, error) {
	return manifest.ParseRunMode(f.mode)
}

// reportOutcome prints the run summary and turns a non-success run into a
// non-zero exit.
func reportOutcome(cmd *cobra.Command, outcome *runner.Outcome) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d processed, %d succeeded, %d failed\n",
		outcome.RunID, outcome.Processed, outcome.Succeeded, outcome.Failed)
	fmt.Fprintf(out, "run directory: %s\n", outcome.RunDir)

	if outcome.Manifest.Status != manifest.StatusSuccess {
		return fmt.Errorf("run %s finished with status %s; see %s/error.json",
			outcome.RunID, outcome.Manifest.Status, outcome.RunDir)
	}
	return nil
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var flags stageFlags
	var since string
	var maxRetry int

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch call metadata and download recording audio",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := flags.runMode()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *state.Store) error {
				lock := runlock.New(cfg.Paths.StateDir)
				if err := lock.Acquire(); err != nil {
					return err
				}
				defer lock.Release()

				stage := ingest.New(cfg, store, source.NewHTTPClient(cfg), logger)
				outcome, err := stage.Run(cmd.Context(), ingest.Options{
					Mode:      mode,
					RunID:     flags.runID,
					FlowRunID: flags.flowRunID,
					Since:     since,
					Only:      flags.only,
					MaxRetry:  maxRetry,
					Limit:     flags.limit,
				})
				if err != nil {
					return err
				}
				return reportOutcome(cmd, outcome)
			})
		},
	}

	flags.register(cmd, false)
	cmd.Flags().StringVar(&since, "since", "", "Only fetch calls updated at or after this ISO timestamp")
	cmd.Flags().IntVar(&maxRetry, "max-retry", 0, "Transient failure ceiling (0 = config default)")
	return cmd
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var flags stageFlags

	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe an ingest run's audio",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := flags.runMode()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			engine := &transcribe.StubEngine{
				Model:    cfg.Transcribe.Model,
				Language: cfg.Transcribe.Language,
			}
			stage := transcribe.New(cfg, engine, logger)
			outcome, err := stage.Run(cmd.Context(), transcribe.Options{
				Mode:       mode,
				RunID:      flags.runID,
				FlowRunID:  flags.flowRunID,
				InputRunID: flags.inputRun,
				Only:       flags.only,
				Limit:      flags.limit,
			})
			if err != nil {
				return err
			}
			return reportOutcome(cmd, outcome)
		},
	}

	flags.register(cmd, true)
	return cmd
}

func newAnonymizeCommand(ctx *commandContext) *cobra.Command {
	var flags stageFlags

	cmd := &cobra.Command{
		Use:   "anonymize",
		Short: "Redact PII from a transcribe run's transcripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := flags.runMode()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			stage := anonymize.New(cfg, nil, logger)
			outcome, err := stage.Run(cmd.Context(), anonymize.Options{
				Mode:       mode,
				RunID:      flags.runID,
				FlowRunID:  flags.flowRunID,
				InputRunID: flags.inputRun,
				Only:       flags.only,
				Limit:      flags.limit,
			})
			if err != nil {
				return err
			}
			return reportOutcome(cmd, outcome)
		},
	}

	flags.register(cmd, true)
	return cmd
}

func newFormatCommand(ctx *commandContext) *cobra.Command {
	var flags stageFlags

	cmd := &cobra.Command{
		Use:   "format",
		Short: "Render redacted transcripts as Markdown documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := flags.runMode()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			stage := format.New(cfg, nil, logger)
			outcome, err := stage.Run(cmd.Context(), format.Options{
				Mode:       mode,
				RunID:      flags.runID,
				FlowRunID:  flags.flowRunID,
				InputRunID: flags.inputRun,
				Only:       flags.only,
				Limit:      flags.limit,
			})
			if err != nil {
				return err
			}
			return reportOutcome(cmd, outcome)
		},
	}

	flags.register(cmd, true)
	return cmd
}
