package entity

import (
	"time"

	"github.com/google/uuid"
)

// FollowUp is a question asked about a completed analysis, with the model's answer.
type FollowUp struct {
	ID        uuid.UUID `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}
