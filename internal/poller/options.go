package poller

import (
	"encoding/json"
	"log/slog"
	"time"
)

// DefaultInterval is the tick spacing used when WithInterval is not given.
const DefaultInterval = 2 * time.Second

// Option configures a Session.
type Option func(*Session)

// WithInterval sets the wall-clock spacing between ticks. It must be positive.
func WithInterval(d time.Duration) Option {
	return func(s *Session) {
		s.interval = d
	}
}

// WithOnComplete registers the callback that receives the result of a completed job.
func WithOnComplete(fn func(result json.RawMessage)) Option {
	return func(s *Session) {
		s.onComplete = fn
	}
}

// WithOnError registers the callback that receives the failure message.
func WithOnError(fn func(message string)) Option {
	return func(s *Session) {
		s.onError = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}
