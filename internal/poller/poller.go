// Package poller tracks a single analysis job until it reaches a terminal
// status, the caller stops it, or its context is cancelled.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/palmistry/constants"
)

var (
	ErrEmptyJobID      = errors.New("job id is required")
	ErrNilFetcher      = errors.New("fetcher is required")
	ErrInvalidInterval = errors.New("interval must be positive")
	ErrCancelled       = errors.New("polling cancelled")
)

// Session polls one job. The first query is issued by Start; later ones
// fire every interval regardless of whether the previous one returned.
// Responses that arrive after the session ended are discarded.
type Session struct {
	jobID      string
	fetcher    Fetcher
	interval   time.Duration
	onComplete func(json.RawMessage)
	onError    func(string)
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	polling bool
	last    JobStatus
	outcome Outcome
	queries int
}

// Start validates its inputs, issues the first query and returns the running session.
func Start(ctx context.Context, f Fetcher, jobID string, opts ...Option) (*Session, error) {
	if jobID == "" {
		return nil, ErrEmptyJobID
	}
	if f == nil {
		return nil, ErrNilFetcher
	}
	s := &Session{
		jobID:    jobID,
		fetcher:  f,
		interval: DefaultInterval,
		logger:   slog.Default(),
		done:     make(chan struct{}),
		polling:  true,
		last:     JobStatus{Status: constants.JobStatusQueued},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, s.interval)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Debug("poller.start", "job_id", jobID, "interval", s.interval)
	s.tick()
	go s.loop()
	return s, nil
}

func (s *Session) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			s.Stop()
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Session) tick() {
	s.mu.Lock()
	if !s.polling {
		s.mu.Unlock()
		return
	}
	s.queries++
	n := s.queries
	s.mu.Unlock()

	go func() {
		st, out, err := Step(s.ctx, s.fetcher, s.jobID)
		s.apply(n, st, out, err)
	}()
}

func (s *Session) apply(n int, st JobStatus, out Outcome, err error) {
	if err != nil && s.ctx.Err() != nil {
		// our own cancellation, not a check failure
		s.Stop()
		return
	}

	s.mu.Lock()
	if !s.polling {
		s.mu.Unlock()
		s.logger.Debug("poller.discard", "job_id", s.jobID, "query", n)
		return
	}
	if err == nil {
		s.last = st
	}
	if !out.Done() {
		s.mu.Unlock()
		s.logger.Debug("poller.tick", "job_id", s.jobID, "query", n, "status", st.Status)
		return
	}
	s.polling = false
	s.outcome = out
	s.mu.Unlock()

	// Callbacks run before Done closes so waiters observe their effects.
	defer close(s.done)
	defer s.cancel()

	switch {
	case err != nil:
		s.logger.Warn("poller.check_failed", "job_id", s.jobID, "query", n, "error", err)
		s.fireError(out.Error)
	case out.Succeeded():
		s.logger.Info("poller.completed", "job_id", s.jobID, "queries", n)
		if s.onComplete != nil {
			s.onComplete(out.Result)
		}
	default:
		s.logger.Info("poller.failed", "job_id", s.jobID, "queries", n, "error", out.Error)
		s.fireError(out.Error)
	}
}

func (s *Session) fireError(msg string) {
	if s.onError != nil {
		s.onError(msg)
	}
}

// Stop ends the session without invoking any callback. Calling it after the
// session ended is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.polling {
		s.mu.Unlock()
		return
	}
	s.polling = false
	s.outcome = Outcome{Cancelled: true}
	s.mu.Unlock()

	s.cancel()
	close(s.done)
	s.logger.Debug("poller.stopped", "job_id", s.jobID)
}

// JobID returns the id of the tracked job.
func (s *Session) JobID() string { return s.jobID }

// Status returns the most recent successfully observed status.
func (s *Session) Status() JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// IsPolling reports whether the session is still active.
func (s *Session) IsPolling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polling
}

// Done is closed once the session ends for any reason, after the terminal
// callback has returned. Callbacks must not block on Done or Wait.
func (s *Session) Done() <-chan struct{} { return s.done }

// Outcome returns how the session ended; the zero Outcome while it is running.
func (s *Session) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Wait blocks until the session ends or ctx is done.
func (s *Session) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-s.done:
		out := s.Outcome()
		if out.Cancelled {
			return out, ErrCancelled
		}
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Wait starts a session and blocks until it ends. A cancelled ctx yields
// ErrCancelled; completed and failed jobs both return a nil error and are
// told apart by the Outcome.
func Wait(ctx context.Context, f Fetcher, jobID string, opts ...Option) (Outcome, error) {
	s, err := Start(ctx, f, jobID, opts...)
	if err != nil {
		return Outcome{}, err
	}
	<-s.done
	out := s.Outcome()
	if out.Cancelled {
		return out, ErrCancelled
	}
	return out, nil
}
