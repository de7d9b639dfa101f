package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"specbatch/internal/ledger"
)

func newRunsCommand(opts *rootOptions) *cobra.Command {
	var limit int
	var showJobs bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.ledgerPath == "" {
				return fmt.Errorf("no ledger configured (set --ledger)")
			}
			store, err := ledger.Open(opts.ledgerPath)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No recorded runs.")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				finished := "-"
				if !run.FinishedAt.IsZero() {
					finished = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
				}
				rows = append(rows, []string{
					run.ID,
					run.StartedAt.Format(time.RFC3339),
					run.Status,
					fmt.Sprintf("%d", run.Workers),
					finished,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Started", "Status", "Workers", "Elapsed"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))

			if !showJobs {
				return nil
			}
			for _, run := range runs {
				jobs, err := store.Jobs(cmd.Context(), run.ID)
				if err != nil {
					return fmt.Errorf("list jobs for %s: %w", run.ID, err)
				}
				jobRows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					jobRows = append(jobRows, []string{
						job.Source, job.Kind, job.Status, job.Reason, fmt.Sprintf("%d", len(job.Outputs)),
					})
				}
				fmt.Fprintf(out, "\nRun %s:\n", run.ID)
				fmt.Fprintln(out, renderTable(
					[]string{"Source", "Kind", "Status", "Reason", "Outputs"},
					jobRows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	cmd.Flags().BoolVar(&showJobs, "jobs", false, "Also list each run's jobs")
	return cmd
}
