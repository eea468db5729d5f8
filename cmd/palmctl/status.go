package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/palmistry/internal/poller"
)

var (
	statusWatch    bool
	statusInterval time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the status of an analysis, or follow it with --watch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := args[0]
		if statusWatch {
			out, err := follow(cmd.Context(), jobID, jobID, statusInterval, stdoutIsTTY())
			return printOutcome(jobID, out, err)
		}

		st, out, err := poller.Step(cmd.Context(), api, jobID)
		if err != nil {
			return err
		}
		fmt.Println(describe(st))
		if out.Succeeded() {
			printReading(cmd.OutOrStdout(), out.Result)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Poll until the analysis finishes")
	statusCmd.Flags().DurationVar(&statusInterval, "interval", poller.DefaultInterval, "Status query interval")
	rootCmd.AddCommand(statusCmd)
}
