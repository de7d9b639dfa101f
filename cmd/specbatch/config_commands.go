package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"specbatch/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetDir string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write annotated sample job documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := config.WriteSamples(targetDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, path := range paths {
				fmt.Fprintf(out, "Wrote %s\n", path)
			}
			fmt.Fprintln(out, "Edit mseed_pattern, inventory_path, and output_dir before running.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetDir, "dir", "d", ".", "Directory for the sample documents")
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [compute|plot]",
		Short: "Print a sample job document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := "compute"
			if len(args) == 1 {
				kind = args[0]
			}
			out := cmd.OutOrStdout()
			switch kind {
			case "compute":
				fmt.Fprint(out, config.SampleCompute())
			case "plot":
				fmt.Fprint(out, config.SamplePlot())
			default:
				return fmt.Errorf("unknown document kind %q (use compute or plot)", kind)
			}
			return nil
		},
	}
}
