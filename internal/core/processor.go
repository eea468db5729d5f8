package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/palmistry/constants"
	"github.com/joseph-ayodele/palmistry/internal/analysis"
	"github.com/joseph-ayodele/palmistry/internal/async"
	"github.com/joseph-ayodele/palmistry/internal/common"
	"github.com/joseph-ayodele/palmistry/internal/entity"
	"github.com/joseph-ayodele/palmistry/internal/imageprep"
	"github.com/joseph-ayodele/palmistry/internal/repository"
)

// Progress checkpoints written while a job runs.
const (
	ProgressStarted  = 10
	ProgressLoaded   = 40
	ProgressAnalyzed = 90
)

// Messages stored on failed jobs. Raw errors stay in the logs.
const (
	MsgAnalysisFailed = "Analysis failed"
	MsgTimedOut       = "Analysis timed out"
	MsgBusy           = "The analysis service is busy, please try again later"
	MsgNotConfigured  = "Analysis service is not configured"
	MsgUnreadable     = "Could not read palm lines from this image"
	MsgInterrupted    = "Analysis was interrupted, please upload again"
)

// ImageLoader turns a stored image into model-ready bytes.
type ImageLoader interface {
	Load(ctx context.Context, img *entity.PalmImage) (imageprep.Image, error)
}

// Processor runs one analysis job from queued to a terminal status.
type Processor struct {
	logger   *slog.Logger
	analyzer analysis.Analyzer
	loader   ImageLoader
	images   repository.ImageRepository
	jobs     repository.JobRepository
}

func NewProcessor(
	logger *slog.Logger,
	analyzer analysis.Analyzer,
	loader ImageLoader,
	images repository.ImageRepository,
	jobs repository.JobRepository,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:   logger,
		analyzer: analyzer,
		loader:   loader,
		images:   images,
		jobs:     jobs,
	}
}

// ProcessJob claims a queued job and drives it to completed or failed.
// A job that another worker already claimed, or that is already terminal,
// is skipped without error.
func (p *Processor) ProcessJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status != constants.JobStatusQueued {
		p.logger.Info("processor.skip", "job_id", jobID, "status", job.Status)
		return nil
	}

	if err := p.jobs.MarkProcessing(ctx, jobID, p.analyzer.ModelName()); err != nil {
		if errors.Is(err, common.ErrInvalidTransition) {
			p.logger.Info("processor.already_claimed", "job_id", jobID)
			return nil
		}
		return err
	}

	start := time.Now()
	raw, err := p.run(ctx, job)
	if err != nil {
		msg := UserMessage(err)
		p.logger.Error("processor.failed", "job_id", jobID, "error", err, "message", msg, "elapsed_ms", time.Since(start).Milliseconds())
		if ferr := p.persist(ctx, func(c context.Context) error { return p.jobs.Fail(c, jobID, msg) }); ferr != nil {
			p.logger.Error("processor.fail_persist_error", "job_id", jobID, "error", ferr)
		}
		return err
	}

	if err := p.persist(ctx, func(c context.Context) error { return p.jobs.Complete(c, jobID, raw) }); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	p.logger.Info("processor.completed", "job_id", jobID, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *Processor) run(ctx context.Context, job *entity.AnalysisJob) ([]byte, error) {
	if err := p.jobs.UpdateProgress(ctx, job.ID, ProgressStarted); err != nil {
		return nil, err
	}

	img, err := p.images.GetByID(ctx, job.ImageID)
	if err != nil {
		return nil, fmt.Errorf("load image row: %w", err)
	}
	prepared, err := p.loader.Load(ctx, img)
	if err != nil {
		return nil, err
	}
	if err := p.jobs.UpdateProgress(ctx, job.ID, ProgressLoaded); err != nil {
		return nil, err
	}

	p.logger.Debug("processor.analyze.start",
		"job_id", job.ID, "image_id", img.ID,
		"hash", hex.EncodeToString(img.ContentHash), "bytes", len(prepared.Data), "mime", prepared.MimeType,
	)
	reading, raw, err := p.analyzer.Analyze(ctx, analysis.AnalyzeRequest{
		Image:        prepared.Data,
		MimeType:     prepared.MimeType,
		Hand:         img.Hand,
		FilenameHint: filepath.Base(img.Filename),
	})
	if err != nil {
		return nil, err
	}
	if err := p.jobs.UpdateProgress(ctx, job.ID, ProgressAnalyzed); err != nil {
		return nil, err
	}
	p.logger.Debug("processor.analyze.ok", "job_id", job.ID, "confidence", reading.Confidence)
	return raw, nil
}

// persist writes a terminal status even if ctx already expired.
func (p *Processor) persist(ctx context.Context, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return fn(c)
}

// UserMessage maps a processing error to the message shown to the user.
func UserMessage(err error) string {
	var se *analysis.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return MsgTimedOut
	case errors.As(err, &se) && se.Code == http.StatusTooManyRequests:
		return MsgBusy
	case errors.Is(err, analysis.ErrNotConfigured):
		return MsgNotConfigured
	case errors.Is(err, analysis.ErrInvalidReading):
		return MsgUnreadable
	}
	return MsgAnalysisFailed
}

// RecoverInterrupted fails jobs left in processing by a previous run.
func (p *Processor) RecoverInterrupted(ctx context.Context) (int, error) {
	stuck, err := p.jobs.ListByStatus(ctx, constants.JobStatusProcessing, 500)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range stuck {
		if err := p.jobs.Fail(ctx, j.ID, MsgInterrupted); err != nil {
			p.logger.Warn("processor.recover_failed", "job_id", j.ID, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		p.logger.Warn("processor.recovered_interrupted", "count", n)
	}
	return n, nil
}

// Requeue hands every queued job back to q, oldest first.
func (p *Processor) Requeue(ctx context.Context, q async.Queue) (int, error) {
	queued, err := p.jobs.ListByStatus(ctx, constants.JobStatusQueued, 500)
	if err != nil {
		return 0, err
	}
	for i, j := range queued {
		if err := q.Enqueue(ctx, async.Job{JobID: j.ID, SubmittedAt: j.CreatedAt, TraceID: "requeue"}); err != nil {
			return i, err
		}
	}
	if len(queued) > 0 {
		p.logger.Info("processor.requeued", "count", len(queued))
	}
	return len(queued), nil
}
