package ingest

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/palmistry/constants"
	"github.com/joseph-ayodele/palmistry/internal/async"
	"github.com/joseph-ayodele/palmistry/internal/common"
	"github.com/joseph-ayodele/palmistry/internal/ingest"
)

// Service handles upload business logic.
type Service struct {
	ingestor ingest.Ingestor
	queue    async.Queue
	logger   *slog.Logger
}

// NewService creates a new ingest service.
func NewService(ing ingest.Ingestor, q async.Queue, logger *slog.Logger) *Service {
	return &Service{
		ingestor: ing,
		queue:    q,
		logger:   logger,
	}
}

// UploadRequest represents one palm image upload.
type UploadRequest struct {
	OwnerID  string
	Filename string
	Hand     string
	Body     io.Reader
}

// UploadResult is what the API returns for an accepted upload.
type UploadResult struct {
	JobID        string              `json:"job_id"`
	ImageID      string              `json:"image_id"`
	Status       constants.JobStatus `json:"status"`
	Deduplicated bool                `json:"deduplicated"`
}

// Upload stores the image and queues its analysis. A duplicate whose job is
// still queued is enqueued again; workers skip jobs already claimed.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	var v common.Validator
	v.Field("filename", strings.TrimSpace(req.Filename), common.Required, common.MaxLength(255))
	if err := v.Err(); err != nil {
		return UploadResult{}, err
	}
	hand, ok := constants.CanonicalizeHand(req.Hand)
	if !ok {
		s.logger.Warn("upload rejected: unknown hand", "owner_id", req.OwnerID, "hand", req.Hand)
		return UploadResult{}, common.NewAppError("INVALID_HAND", "hand must be left or right", common.ErrInvalidInput)
	}

	s.logger.Info("starting upload", "owner_id", req.OwnerID, "filename", req.Filename, "hand", hand)
	r, err := s.ingestor.IngestUpload(ctx, req.OwnerID, req.Filename, req.Body, hand)
	if err != nil {
		return UploadResult{}, err
	}

	out := UploadResult{JobID: r.JobID, ImageID: r.ImageID, Status: r.JobStatus, Deduplicated: r.Deduplicated}
	if r.JobStatus != constants.JobStatusQueued {
		s.logger.Info("upload reuses existing analysis", "job_id", r.JobID, "status", r.JobStatus)
		return out, nil
	}

	jobID, err := uuid.Parse(r.JobID)
	if err != nil {
		return UploadResult{}, common.WrapError(common.ErrInternal, "invalid job id")
	}
	if err := s.queue.Enqueue(ctx, async.Job{
		JobID:       jobID,
		SubmittedAt: time.Now(),
		TraceID:     common.RequestIDFromContext(ctx),
	}); err != nil {
		s.logger.Error("enqueue failed for job", "job_id", r.JobID, "err", err)
		return UploadResult{}, common.NewAppError("ENQUEUE_FAILED", "could not schedule analysis", err)
	}

	s.logger.Info("upload accepted", "owner_id", req.OwnerID, "job_id", r.JobID, "deduplicated", r.Deduplicated)
	return out, nil
}
