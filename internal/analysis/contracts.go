package analysis

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotConfigured  = errors.New("analyzer not configured")
	ErrInvalidReading = errors.New("model returned an unusable reading")
)

// PalmReading is the normalized shape we want from the model.
type PalmReading struct {
	Hand        string            `json:"hand"`
	LifeLine    string            `json:"life_line"`
	HeartLine   string            `json:"heart_line"`
	HeadLine    string            `json:"head_line"`
	FateLine    string            `json:"fate_line,omitempty"`
	Mounts      map[string]string `json:"mounts,omitempty"` // venus, jupiter, saturn, apollo, mercury, luna, mars
	Personality string            `json:"personality"`
	Summary     string            `json:"summary"`
	Confidence  float32           `json:"confidence"` // 0..1
}

type AnalyzeRequest struct {
	Image        []byte
	MimeType     string
	Hand         string
	FilenameHint string
}

// FollowUpTurn is an earlier question and answer shown to the model for context.
type FollowUpTurn struct {
	Question string
	Answer   string
}

type AnswerRequest struct {
	Reading  json.RawMessage
	Hand     string
	Question string
	History  []FollowUpTurn
}

// Analyzer reads a palm image. The raw JSON is what gets stored as the job result.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (PalmReading, []byte, error)
	ModelName() string
}

// Answerer answers follow-up questions about an existing reading.
type Answerer interface {
	Answer(ctx context.Context, req AnswerRequest) (string, error)
}
