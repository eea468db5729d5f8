package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/joseph-ayodele/palmistry/constants"
	"github.com/joseph-ayodele/palmistry/internal/analysis"
	"github.com/joseph-ayodele/palmistry/internal/poller"
)

// outMu serializes writes from concurrent sessions.
var outMu sync.Mutex

func stdoutIsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// progress renders a session's status: a redrawn bar on a terminal, one line
// per change otherwise.
type progress struct {
	w     io.Writer
	tty   bool
	label string
	last  string
}

func newProgress(w io.Writer, label string, tty bool) *progress {
	return &progress{w: w, tty: tty, label: label}
}

func (p *progress) update(st poller.JobStatus) {
	line := describe(st)
	outMu.Lock()
	defer outMu.Unlock()
	if p.tty {
		fmt.Fprintf(p.w, "\r%s %s %s\033[K", p.label, bar(st, barWidth()), line)
		return
	}
	if line != p.last {
		fmt.Fprintf(p.w, "%s: %s\n", p.label, line)
		p.last = line
	}
}

func (p *progress) finish() {
	if p.tty {
		outMu.Lock()
		fmt.Fprintln(p.w)
		outMu.Unlock()
	}
}

func describe(st poller.JobStatus) string {
	switch st.Status {
	case constants.JobStatusProcessing:
		if st.Progress != nil {
			return fmt.Sprintf("processing %d%%", *st.Progress)
		}
		return "processing"
	case constants.JobStatusFailed:
		return "failed: " + st.Error
	}
	return string(st.Status)
}

func bar(st poller.JobStatus, width int) string {
	pct := 0
	switch {
	case st.Status.Terminal():
		pct = 100
	case st.Progress != nil:
		pct = *st.Progress
	}
	filled := width * pct / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func barWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 30
	}
	return max(10, min(40, w-50))
}

// follow runs a poller session for jobID, rendering progress until it ends.
func follow(ctx context.Context, jobID, label string, interval time.Duration, tty bool) (poller.Outcome, error) {
	s, err := poller.Start(ctx, api, jobID,
		poller.WithInterval(interval),
		poller.WithLogger(logger),
	)
	if err != nil {
		return poller.Outcome{}, err
	}

	p := newProgress(os.Stdout, label, tty)
	refresh := time.NewTicker(150 * time.Millisecond)
	defer refresh.Stop()
	for {
		select {
		case <-s.Done():
			p.update(s.Status())
			p.finish()
			return s.Wait(context.Background())
		case <-refresh.C:
			p.update(s.Status())
		}
	}
}

// printOutcome reports a finished session and returns errSilent for failures.
func printOutcome(label string, out poller.Outcome, err error) error {
	outMu.Lock()
	defer outMu.Unlock()
	switch {
	case errors.Is(err, poller.ErrCancelled):
		fmt.Printf("%s: stopped\n", label)
		return errSilent
	case err != nil:
		return err
	case out.Succeeded():
		printReading(os.Stdout, out.Result)
		return nil
	}
	fmt.Fprintf(os.Stderr, "%s: %s\n", label, out.Error)
	return errSilent
}

func printReading(w io.Writer, raw json.RawMessage) {
	var r analysis.PalmReading
	if err := json.Unmarshal(raw, &r); err != nil || r.Summary == "" {
		var pretty bytes.Buffer
		if json.Indent(&pretty, raw, "", "  ") == nil {
			fmt.Fprintln(w, pretty.String())
		} else {
			fmt.Fprintln(w, string(raw))
		}
		return
	}
	fmt.Fprintf(w, "Hand:        %s\n", r.Hand)
	fmt.Fprintf(w, "Life line:   %s\n", r.LifeLine)
	fmt.Fprintf(w, "Heart line:  %s\n", r.HeartLine)
	fmt.Fprintf(w, "Head line:   %s\n", r.HeadLine)
	if r.FateLine != "" {
		fmt.Fprintf(w, "Fate line:   %s\n", r.FateLine)
	}
	for _, m := range analysis.MountNames {
		if v, ok := r.Mounts[m]; ok {
			fmt.Fprintf(w, "Mount of %-8s %s\n", m+":", v)
		}
	}
	fmt.Fprintf(w, "Personality: %s\n", r.Personality)
	fmt.Fprintf(w, "Summary:     %s\n", r.Summary)
	fmt.Fprintf(w, "Confidence:  %.0f%%\n", r.Confidence*100)
}
