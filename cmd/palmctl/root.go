package main

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/palmistry/internal/appstate"
	"github.com/joseph-ayodele/palmistry/internal/client"
	"github.com/joseph-ayodele/palmistry/internal/common"
)

const defaultServer = "http://localhost:8080"

// errSilent marks failures that were already reported to the user.
var errSilent = errors.New("reported")

var (
	serverURL string
	tokenFlag string
	statePath string
	verbose   bool
	timeout   time.Duration

	state  *appstate.State
	api    *client.Client
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "palmctl",
	Short:         "Upload palm photos and follow their analyses.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		logger = common.NewLogger(os.Stderr, common.LogConfig{Format: "text", Level: level})

		if statePath == "" {
			statePath = appstate.DefaultPath()
		}
		s, err := appstate.Load(statePath)
		if err != nil {
			return err
		}
		state = s

		saved := ""
		if state.TokenValid(time.Now()) {
			saved = state.Token
		}
		api = client.New(client.Config{
			BaseURL: firstNonEmpty(serverURL, os.Getenv("PALMISTRY_SERVER"), state.Server, defaultServer),
			Token:   firstNonEmpty(tokenFlag, os.Getenv("PALMISTRY_TOKEN"), saved),
			Timeout: timeout,
		}, logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "API base URL (default $PALMISTRY_SERVER, saved login, or "+defaultServer+")")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "Bearer token (default $PALMISTRY_TOKEN or saved login)")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "", "Path to state file (default $HOME/.palmistry/state.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log HTTP traffic to stderr")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "Per-request timeout")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
