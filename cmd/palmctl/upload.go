package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/palmistry/constants"
	"github.com/joseph-ayodele/palmistry/internal/appstate"
	"github.com/joseph-ayodele/palmistry/internal/ingest"
	"github.com/joseph-ayodele/palmistry/internal/poller"
)

var (
	uploadHand       string
	uploadWait       bool
	uploadInterval   time.Duration
	uploadSkipHidden bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <image|dir>",
	Short: "Upload a palm photo (or every photo in a directory) for analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hand, ok := constants.CanonicalizeHand(firstNonEmpty(uploadHand, state.Hand))
		if !ok {
			return fmt.Errorf("--hand must be left or right, got %q", uploadHand)
		}
		ctx := cmd.Context()

		st, err := os.Stat(args[0])
		if err != nil {
			return err
		}
		if st.IsDir() {
			return uploadDir(ctx, args[0], hand)
		}

		res, err := api.UploadImage(ctx, args[0], hand)
		if err != nil {
			return err
		}
		remember(res.JobID, args[0])
		note := ""
		if res.Deduplicated {
			note = " (already uploaded)"
		}
		fmt.Printf("job %s %s%s\n", res.JobID, res.Status, note)
		if !uploadWait {
			return nil
		}
		out, err := follow(ctx, res.JobID, filepath.Base(args[0]), uploadInterval, stdoutIsTTY())
		return printOutcome(filepath.Base(args[0]), out, err)
	},
}

func uploadDir(ctx context.Context, root string, hand constants.Hand) error {
	var jobs []struct{ id, path string }
	results, stats, err := ingest.UploadDirectory(ctx, root, uploadSkipHidden, func(ctx context.Context, path string) (string, bool, error) {
		res, err := api.UploadImage(ctx, path, hand)
		if err != nil {
			return "", false, err
		}
		remember(res.JobID, path)
		jobs = append(jobs, struct{ id, path string }{res.JobID, path})
		return res.JobID, res.Deduplicated, nil
	})
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != "" {
			fmt.Fprintf(os.Stderr, "%s: %s\n", r.SourcePath, r.Err)
			continue
		}
		fmt.Printf("%s -> job %s\n", r.SourcePath, r.JobID)
	}
	fmt.Printf("scanned=%d matched=%d uploaded=%d deduplicated=%d failed=%d\n",
		stats.Scanned, stats.Matched, stats.Succeeded, stats.Deduplicated, stats.Failed)

	if !uploadWait || len(jobs) == 0 {
		return nil
	}
	var g errgroup.Group
	failed := false
	for _, j := range jobs {
		g.Go(func() error {
			label := filepath.Base(j.path)
			out, err := follow(ctx, j.id, label, uploadInterval, false)
			if perr := printOutcome(label, out, err); perr != nil {
				outMu.Lock()
				failed = true
				outMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if failed || stats.Failed > 0 {
		return errSilent
	}
	return nil
}

func remember(jobID, path string) {
	state.Remember(jobID, path, time.Now())
	if err := appstate.Save(statePath, state); err != nil {
		logger.Warn("could not save state", "error", err)
	}
}

func init() {
	uploadCmd.Flags().StringVar(&uploadHand, "hand", "", "Which hand is pictured: left or right (default right)")
	uploadCmd.Flags().BoolVar(&uploadWait, "wait", false, "Follow the analysis until it finishes")
	uploadCmd.Flags().DurationVar(&uploadInterval, "interval", poller.DefaultInterval, "Status query interval")
	uploadCmd.Flags().BoolVar(&uploadSkipHidden, "skip-hidden", true, "Skip dot files when uploading a directory")
	rootCmd.AddCommand(uploadCmd)
}
