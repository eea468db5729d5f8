package constants

import "strings"

// JobStatus is the canonical status of an analysis job, on the wire and in the DB.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued     JobStatus = "queued"     // accepted, waiting for a worker
	JobStatusProcessing JobStatus = "processing" // a worker is analyzing the image
	JobStatusCompleted  JobStatus = "completed"  // terminal, result available
	JobStatusFailed     JobStatus = "failed"     // terminal, error message available
)

var statusAliases = map[string]JobStatus{
	"queued":     JobStatusQueued,
	"pending":    JobStatusQueued,
	"processing": JobStatusProcessing,
	"running":    JobStatusProcessing,
	"completed":  JobStatusCompleted,
	"complete":   JobStatusCompleted,
	"succeeded":  JobStatusCompleted,
	"failed":     JobStatusFailed,
	"error":      JobStatusFailed,
}

// ParseJobStatus maps a raw status string onto a canonical JobStatus.
// Matching is case-insensitive; unknown values return false.
func ParseJobStatus(raw string) (JobStatus, bool) {
	s, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]
	return s, ok
}

// Terminal reports whether no further transitions may happen.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Rank orders statuses along queued -> processing -> terminal.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	}
	return -1
}

// CanTransition reports whether moving from s to next respects the ordering.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.Terminal() || next.Rank() < 0 {
		return false
	}
	return next.Rank() > s.Rank()
}

// AllJobStatuses lists the canonical values in lifecycle order.
func AllJobStatuses() []JobStatus {
	return []JobStatus{JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed}
}
