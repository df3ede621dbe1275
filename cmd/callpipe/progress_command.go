package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"callpipe/internal/progress"
)

func newProgressCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <run-id>",
		Short: "Show the progress snapshot of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snapshot, err := progress.Read(cfg.RunDir(args[0]))
			if err != nil {
				return fmt.Errorf("read progress for run %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Phase:   %s\n", snapshot.Phase)
			fmt.Fprintf(out, "Done:    %.1f%%\n", snapshot.Pct)
			if snapshot.Msg != "" {
				fmt.Fprintf(out, "Message: %s\n", snapshot.Msg)
			}
			if snapshot.EtaSeconds > 0 {
				fmt.Fprintf(out, "ETA:     %.0fs\n", snapshot.EtaSeconds)
			}
			fmt.Fprintf(out, "Updated: %s\n", snapshot.UpdatedAtUTC)
			return nil
		},
	}
}
