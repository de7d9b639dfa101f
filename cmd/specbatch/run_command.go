package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"specbatch/internal/ledger"
	"specbatch/internal/scheduler"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	var workers int
	var estimatorTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "run CONFIG...",
		Short: "Classify and execute compute and plot jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := opts.logger()
			if err != nil {
				return err
			}

			var store *ledger.Store
			if opts.ledgerPath != "" {
				store, err = ledger.Open(opts.ledgerPath)
				if err != nil {
					return fmt.Errorf("open ledger: %w", err)
				}
				defer store.Close()
			}

			s := scheduler.New(scheduler.Options{
				Logger:           logger,
				Workers:          workers,
				EstimatorTimeout: estimatorTimeout,
				Ledger:           store,
			})
			summary, err := s.Run(cmd.Context(), args)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderSummaryTable(summary))
			if failed := summary.Failed(); failed > 0 {
				return fmt.Errorf("%d of %d jobs failed", failed, len(summary.Results))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 4, "Concurrent jobs per phase")
	cmd.Flags().DurationVar(&estimatorTimeout, "estimator-timeout", 0, "Per-segment estimator time budget (0 disables)")
	return cmd
}

func renderSummaryTable(summary *scheduler.Summary) string {
	rows := make([][]string, 0, len(summary.Results))
	for _, result := range summary.Results {
		reason := result.Reason
		if result.Status == scheduler.StatusSucceeded {
			reason = ""
		}
		rows = append(rows, []string{
			result.Source,
			result.Kind,
			result.Status,
			reason,
			fmt.Sprintf("%d", len(result.Outputs)),
			formatDuration(result.Finished.Sub(result.Started)),
		})
	}
	return renderTable(
		[]string{"Source", "Kind", "Status", "Reason", "Outputs", "Elapsed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
