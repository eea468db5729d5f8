package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <job-id> <question...>",
	Short: "Ask a follow-up question about a completed analysis",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := api.AskQuestion(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Println(f.Answer)
		return nil
	},
}

var questionsCmd = &cobra.Command{
	Use:   "questions <job-id>",
	Short: "Show the follow-up questions asked about an analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := api.ListQuestions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("no questions yet")
			return nil
		}
		for i, f := range list {
			fmt.Printf("Q%d: %s\nA%d: %s\n\n", i+1, f.Question, i+1, f.Answer)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd, questionsCmd)
}
