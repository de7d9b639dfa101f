package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"specbatch/internal/logging"
)

// rootOptions carries the persistent flags every subcommand can use.
type rootOptions struct {
	logLevel   string
	logFormat  string
	ledgerPath string
}

func (o *rootOptions) logger() (*slog.Logger, error) {
	return logging.New(logging.Options{Level: o.logLevel, Format: o.logFormat})
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "specbatch",
		Short:         "Batch PPSD accumulation and plotting",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "auto", "Log format (console, json, auto)")
	rootCmd.PersistentFlags().StringVar(&opts.ledgerPath, "ledger", "", "Run ledger database path (empty disables the ledger)")

	rootCmd.AddCommand(newRunCommand(opts))
	rootCmd.AddCommand(newClassifyCommand())
	rootCmd.AddCommand(newRunsCommand(opts))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
