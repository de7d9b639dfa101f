package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"specbatch/internal/classify"
)

func newClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify CONFIG...",
		Short: "Show how each config document would be classified",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(args))
			failures := 0
			for _, source := range args {
				kind, err := classify.Classify(source)
				if err != nil {
					failures++
					rows = append(rows, []string{source, "-", err.Error()})
					continue
				}
				rows = append(rows, []string{source, kind.String(), ""})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Source", "Kind", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))
			if failures > 0 {
				return fmt.Errorf("%d of %d sources are unclassifiable", failures, len(args))
			}
			return nil
		},
	}
}
