package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	listLimit int
	listJSON  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your analyses, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := api.ListAnalyses(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		if listJSON {
			b, _ := json.MarshalIndent(jobs, "", "  ")
			fmt.Println(string(b))
			return nil
		}
		for _, j := range jobs {
			msg := ""
			if j.ErrorMessage != nil {
				msg = *j.ErrorMessage
			}
			fmt.Printf("%s  %-10s  %3d%%  %s  %s\n",
				j.ID, j.Status, j.Progress, j.CreatedAt.Local().Format(time.DateTime), msg)
		}
		return nil
	},
}

var dashboardJSON bool

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Count your analyses by status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := api.Dashboard(cmd.Context())
		if err != nil {
			return err
		}
		if dashboardJSON {
			b, _ := json.MarshalIndent(s, "", "  ")
			fmt.Println(string(b))
			return nil
		}
		fmt.Printf("total=%d queued=%d processing=%d completed=%d failed=%d\n",
			s.Total, s.Queued, s.Processing, s.Completed, s.Failed)
		return nil
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show uploads made from this machine",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, r := range state.Recent {
			fmt.Printf("%s  %s  %s\n", r.JobID, r.SubmittedAt.Local().Format(time.DateTime), r.File)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "Max rows")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "JSON output")
	dashboardCmd.Flags().BoolVar(&dashboardJSON, "json", false, "JSON output")
	rootCmd.AddCommand(listCmd, dashboardCmd, recentCmd)
}
