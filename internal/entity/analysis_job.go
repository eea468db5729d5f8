package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/palmistry/constants"
)

// AnalysisJob represents a background palm analysis for data transfer between layers.
type AnalysisJob struct {
	ID           uuid.UUID           `json:"id"`
	ImageID      uuid.UUID           `json:"image_id"`
	OwnerID      string              `json:"owner_id"`
	Status       constants.JobStatus `json:"status"`
	Progress     int                 `json:"progress"`
	Result       json.RawMessage     `json:"result,omitempty"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	ModelName    *string             `json:"model_name,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}

// StatusView is the JSON shape served by the job status endpoint and
// decoded by the client.
type StatusView struct {
	Status   string          `json:"status"`
	Progress *int            `json:"progress,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    *string         `json:"error,omitempty"`
}

// View projects the job onto the wire status, populating only the fields
// that are meaningful for its current status.
func (j *AnalysisJob) View() StatusView {
	v := StatusView{Status: string(j.Status)}
	switch j.Status {
	case constants.JobStatusProcessing:
		p := j.Progress
		v.Progress = &p
	case constants.JobStatusCompleted:
		v.Result = j.Result
	case constants.JobStatusFailed:
		if j.ErrorMessage != nil && *j.ErrorMessage != "" {
			msg := *j.ErrorMessage
			v.Error = &msg
		}
	}
	return v
}
