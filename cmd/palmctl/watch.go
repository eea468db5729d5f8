package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/palmistry/constants"
	"github.com/joseph-ayodele/palmistry/internal/ingest"
	"github.com/joseph-ayodele/palmistry/internal/poller"
)

var (
	watchHand     string
	watchInitial  bool
	watchInterval time.Duration
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir...>",
	Short: "Upload new palm photos as they appear and follow each analysis",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hand, ok := constants.CanonicalizeHand(firstNonEmpty(watchHand, state.Hand))
		if !ok {
			return fmt.Errorf("--hand must be left or right, got %q", watchHand)
		}
		ctx := cmd.Context()

		paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       args,
			InitialScan: watchInitial,
			SkipHidden:  true,
			Debounce:    watchDebounce,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		fmt.Printf("watching %v (Ctrl-C to stop)\n", args)

		var wg sync.WaitGroup
		defer wg.Wait()
		for {
			select {
			case err, ok := <-errs:
				if ok && err != nil {
					fmt.Fprintln(os.Stderr, "watch:", err)
				}
				if !ok {
					errs = nil
				}
			case path, ok := <-paths:
				if !ok {
					return nil
				}
				res, err := api.UploadImage(ctx, path, hand)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
					continue
				}
				remember(res.JobID, path)
				label := filepath.Base(path)
				outMu.Lock()
				fmt.Printf("%s -> job %s\n", label, res.JobID)
				outMu.Unlock()

				wg.Add(1)
				go func() {
					defer wg.Done()
					out, err := follow(ctx, res.JobID, label, watchInterval, false)
					_ = printOutcome(label, out, err)
				}()
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchHand, "hand", "", "Which hand the photos show: left or right (default right)")
	watchCmd.Flags().BoolVar(&watchInitial, "initial", false, "Also upload photos already in the directories")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", poller.DefaultInterval, "Status query interval")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "Wait for writes to settle before uploading")
	rootCmd.AddCommand(watchCmd)
}
