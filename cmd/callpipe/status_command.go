package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"callpipe/internal/config"
	"callpipe/internal/state"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var failures int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store statistics and recent failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *state.Store) error {
				stats, err := store.GetStats(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Store: %s\n", store.Path())
				fmt.Fprintf(out, "Calls: %d  Recordings: %d\n\n", stats.Calls, stats.Recordings)

				rows := make([][]string, 0, len(state.AllStatuses()))
				for _, status := range state.AllStatuses() {
					rows = append(rows, []string{string(status), strconv.Itoa(stats.ByStatus[status])})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))

				if failures <= 0 {
					return nil
				}
				failed, err := store.ListByStatus(cmd.Context(), failures,
					state.StatusFailedTransient, state.StatusFailedPermanent, state.StatusQuarantined)
				if err != nil {
					return err
				}
				if len(failed) == 0 {
					return nil
				}

				failRows := make([][]string, 0, len(failed))
				for _, rec := range failed {
					failRows = append(failRows, []string{
						rec.RecordingID,
						string(rec.Status),
						strconv.Itoa(rec.RetryCount),
						rec.LastError,
						formatWhen(rec.LastErrorAt),
					})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable(
					[]string{"Recording", "Status", "Retries", "Last Error", "When"},
					failRows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&failures, "failures", 10, "Show up to this many failed recordings (0 = none)")
	return cmd
}

func newQuarantineCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "quarantine <recording-guid>",
		Short: "Remove a recording from all automatic processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *state.Store) error {
				key := "operator_quarantine"
				if reason != "" {
					key = reason
				}
				if err := store.Quarantine(cmd.Context(), args[0], key, time.Now().UTC()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Quarantined %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Error key recorded with the quarantine")
	return cmd
}

func formatWhen(at *time.Time) string {
	if at == nil {
		return ""
	}
	return at.UTC().Format("2006-01-02 15:04:05")
}
