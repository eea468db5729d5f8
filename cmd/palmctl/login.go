package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/palmistry/internal/appstate"
)

var loginCmd = &cobra.Command{
	Use:   "login <user>",
	Short: "Obtain a token from the server and save it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, exp, err := api.Login(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		state.User, state.Token, state.ExpiresAt = args[0], tok, exp
		if serverURL != "" {
			state.Server = serverURL
		}
		if err := appstate.Save(statePath, state); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		fmt.Printf("logged in as %s (token expires %s)\n", args[0], exp.Local().Format("2006-01-02 15:04"))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		state.Token, state.User = "", ""
		return appstate.Save(statePath, state)
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd)
}
