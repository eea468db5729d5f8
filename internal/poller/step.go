package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/joseph-ayodele/palmistry/constants"
	"github.com/joseph-ayodele/palmistry/internal/entity"
)

// Messages handed to the error callback.
const (
	MsgAnalysisFailed = "Analysis failed"
	MsgCheckFailed    = "Failed to check analysis status"
)

var ErrUnknownStatus = errors.New("unknown job status")

// Fetcher returns the current wire status of a job.
type Fetcher interface {
	FetchStatus(ctx context.Context, jobID string) (entity.StatusView, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context, jobID string) (entity.StatusView, error)

func (f FetcherFunc) FetchStatus(ctx context.Context, jobID string) (entity.StatusView, error) {
	return f(ctx, jobID)
}

// JobStatus is a normalized status as observed by the poller.
// Progress is set only while processing, Result only when completed,
// Error only when failed.
type JobStatus struct {
	Status   constants.JobStatus
	Progress *int
	Result   json.RawMessage
	Error    string
}

// Outcome is how a session ended. The zero value means "not finished".
type Outcome struct {
	Status    constants.JobStatus
	Result    json.RawMessage
	Error     string
	Cancelled bool
}

// Done reports whether the outcome ends a session.
func (o Outcome) Done() bool {
	return o.Cancelled || o.Status.Terminal()
}

// Succeeded reports whether the job completed.
func (o Outcome) Succeeded() bool {
	return o.Status == constants.JobStatusCompleted
}

// Normalize validates a wire status and drops fields that do not belong to it.
func Normalize(v entity.StatusView) (JobStatus, error) {
	status, ok := constants.ParseJobStatus(v.Status)
	if !ok {
		return JobStatus{}, fmt.Errorf("%w: %q", ErrUnknownStatus, v.Status)
	}
	out := JobStatus{Status: status}
	switch status {
	case constants.JobStatusProcessing:
		if v.Progress != nil {
			p := clamp(*v.Progress, 0, 100)
			out.Progress = &p
		}
	case constants.JobStatusCompleted:
		out.Result = v.Result
	case constants.JobStatusFailed:
		if v.Error != nil {
			out.Error = *v.Error
		}
	}
	return out, nil
}

// Step runs one fetch-and-inspect cycle. A non-nil error means the fetch
// itself failed (transport, non-2xx, malformed body); the returned Outcome
// is then the failure the session would report.
func Step(ctx context.Context, f Fetcher, jobID string) (JobStatus, Outcome, error) {
	v, err := f.FetchStatus(ctx, jobID)
	if err == nil {
		var st JobStatus
		st, err = Normalize(v)
		if err == nil {
			return st, outcomeOf(st), nil
		}
	}
	return JobStatus{}, Outcome{Status: constants.JobStatusFailed, Error: MsgCheckFailed}, err
}

func outcomeOf(st JobStatus) Outcome {
	switch st.Status {
	case constants.JobStatusCompleted:
		return Outcome{Status: st.Status, Result: st.Result}
	case constants.JobStatusFailed:
		msg := st.Error
		if msg == "" {
			msg = MsgAnalysisFailed
		}
		return Outcome{Status: st.Status, Error: msg}
	}
	return Outcome{}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
