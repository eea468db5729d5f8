package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/palmistry/constants"
	"github.com/joseph-ayodele/palmistry/internal/common"
	"github.com/joseph-ayodele/palmistry/internal/entity"
)

// JobRepository stores analysis jobs. Status changes only move forward:
// queued -> processing -> completed|failed, and progress never decreases.
type JobRepository interface {
	Create(ctx context.Context, imageID uuid.UUID, ownerID string) (*entity.AnalysisJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.AnalysisJob, error)
	GetForOwner(ctx context.Context, id uuid.UUID, ownerID string) (*entity.AnalysisJob, error)
	LatestForImage(ctx context.Context, imageID uuid.UUID) (*entity.AnalysisJob, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*entity.AnalysisJob, error)
	ListByStatus(ctx context.Context, status constants.JobStatus, limit int) ([]*entity.AnalysisJob, error)
	CountByStatus(ctx context.Context, ownerID string) (entity.DashboardStats, error)

	MarkProcessing(ctx context.Context, id uuid.UUID, modelName string) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
}

type jobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewJobRepository(db *DB, log *slog.Logger) JobRepository {
	return &jobRepo{db: db, log: log}
}

const jobColumns = `id, image_id, owner_id, status, progress, result_json, error_message, model_name, created_at, started_at, finished_at`

func scanJob(row interface{ Scan(...any) error }) (*entity.AnalysisJob, error) {
	var (
		job        entity.AnalysisJob
		status     string
		result     sql.NullString
		errMsg     sql.NullString
		model      sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	if err := row.Scan(&job.ID, &job.ImageID, &job.OwnerID, &status, &job.Progress,
		&result, &errMsg, &model, &job.CreatedAt, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	job.Status = constants.JobStatus(status)
	if result.Valid {
		job.Result = json.RawMessage(result.String)
	}
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	if model.Valid {
		job.ModelName = &model.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	return &job, nil
}

func (r *jobRepo) Create(ctx context.Context, imageID uuid.UUID, ownerID string) (*entity.AnalysisJob, error) {
	job := &entity.AnalysisJob{
		ID:        uuid.New(),
		ImageID:   imageID,
		OwnerID:   ownerID,
		Status:    constants.JobStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.db.exec(ctx,
		`INSERT INTO analysis_jobs (id, image_id, owner_id, status, progress, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		job.ID, job.ImageID, job.OwnerID, string(job.Status), job.CreatedAt)
	if err != nil {
		r.log.Error("analysis_job create failed", "image_id", imageID, "err", err)
		return nil, dbError("analysis_jobs", err)
	}
	r.log.Info("analysis_job queued", "job_id", job.ID, "image_id", imageID, "owner_id", ownerID)
	return job, nil
}

func (r *jobRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.AnalysisJob, error) {
	return r.one(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = ?`, id)
}

// GetForOwner hides jobs of other owners behind ErrNotFound.
func (r *jobRepo) GetForOwner(ctx context.Context, id uuid.UUID, ownerID string) (*entity.AnalysisJob, error) {
	return r.one(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = ? AND owner_id = ?`, id, ownerID)
}

func (r *jobRepo) LatestForImage(ctx context.Context, imageID uuid.UUID) (*entity.AnalysisJob, error) {
	return r.one(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE image_id = ? ORDER BY created_at DESC LIMIT 1`, imageID)
}

func (r *jobRepo) one(ctx context.Context, query string, args ...any) (*entity.AnalysisJob, error) {
	job, err := scanJob(r.db.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("NOT_FOUND", "analysis not found", common.ErrNotFound)
	}
	if err != nil {
		r.log.Error("analysis_job query failed", "err", err)
		return nil, dbError("analysis_jobs", err)
	}
	return job, nil
}

func (r *jobRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*entity.AnalysisJob, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE owner_id = ? ORDER BY created_at DESC LIMIT ?`, ownerID, clampLimit(limit))
}

// ListByStatus returns the oldest jobs first so a restarted worker resumes in order.
func (r *jobRepo) ListByStatus(ctx context.Context, status constants.JobStatus, limit int) ([]*entity.AnalysisJob, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE status = ? ORDER BY created_at ASC LIMIT ?`, string(status), clampLimit(limit))
}

func (r *jobRepo) list(ctx context.Context, query string, args ...any) ([]*entity.AnalysisJob, error) {
	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		r.log.Error("analysis_job list failed", "err", err)
		return nil, dbError("analysis_jobs", err)
	}
	defer rows.Close()

	var jobs []*entity.AnalysisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, dbError("analysis_jobs", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("analysis_jobs", err)
	}
	return jobs, nil
}

// CountByStatus counts the owner's jobs; an empty owner counts every job.
func (r *jobRepo) CountByStatus(ctx context.Context, ownerID string) (entity.DashboardStats, error) {
	var stats entity.DashboardStats
	rows, err := r.db.query(ctx,
		`SELECT status, COUNT(*) FROM analysis_jobs WHERE (? = '' OR owner_id = ?) GROUP BY status`, ownerID, ownerID)
	if err != nil {
		r.log.Error("analysis_job count failed", "owner_id", ownerID, "err", err)
		return stats, dbError("analysis_jobs", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return stats, dbError("analysis_jobs", err)
		}
		stats.Total += n
		switch constants.JobStatus(status) {
		case constants.JobStatusQueued:
			stats.Queued += n
		case constants.JobStatusProcessing:
			stats.Processing += n
		case constants.JobStatusCompleted:
			stats.Completed += n
		case constants.JobStatusFailed:
			stats.Failed += n
		}
	}
	return stats, dbError("analysis_jobs", rows.Err())
}

func (r *jobRepo) MarkProcessing(ctx context.Context, id uuid.UUID, modelName string) error {
	res, err := r.db.exec(ctx,
		`UPDATE analysis_jobs SET status = ?, progress = 0, model_name = ?, started_at = ? WHERE id = ? AND status = ?`,
		string(constants.JobStatusProcessing), modelName, time.Now().UTC(), id, string(constants.JobStatusQueued))
	if err := r.checkTransition(ctx, id, res, err, constants.JobStatusProcessing); err != nil {
		return err
	}
	r.log.Info("analysis_job processing", "job_id", id, "model", modelName)
	return nil
}

func (r *jobRepo) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	if progress < 0 || progress > 100 {
		return common.NewAppError("INVALID_PROGRESS", "progress must be between 0 and 100", common.ErrInvalidInput)
	}
	res, err := r.db.exec(ctx,
		`UPDATE analysis_jobs SET progress = ? WHERE id = ? AND status = ? AND progress <= ?`,
		progress, id, string(constants.JobStatusProcessing), progress)
	if err := r.checkTransition(ctx, id, res, err, constants.JobStatusProcessing); err != nil {
		return err
	}
	r.log.Debug("analysis_job progress", "job_id", id, "progress", progress)
	return nil
}

func (r *jobRepo) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	res, err := r.db.exec(ctx,
		`UPDATE analysis_jobs SET status = ?, progress = 100, result_json = ?, error_message = NULL, finished_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(constants.JobStatusCompleted), string(result), time.Now().UTC(), id,
		string(constants.JobStatusQueued), string(constants.JobStatusProcessing))
	if err := r.checkTransition(ctx, id, res, err, constants.JobStatusCompleted); err != nil {
		return err
	}
	r.log.Info("analysis_job completed", "job_id", id)
	return nil
}

func (r *jobRepo) Fail(ctx context.Context, id uuid.UUID, message string) error {
	res, err := r.db.exec(ctx,
		`UPDATE analysis_jobs SET status = ?, error_message = ?, finished_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(constants.JobStatusFailed), message, time.Now().UTC(), id,
		string(constants.JobStatusQueued), string(constants.JobStatusProcessing))
	if err := r.checkTransition(ctx, id, res, err, constants.JobStatusFailed); err != nil {
		return err
	}
	r.log.Warn("analysis_job failed", "job_id", id, "error", message)
	return nil
}

// checkTransition turns a conditional UPDATE that touched no rows into
// ErrNotFound or ErrInvalidTransition.
func (r *jobRepo) checkTransition(ctx context.Context, id uuid.UUID, res sql.Result, err error, target constants.JobStatus) error {
	if err != nil {
		r.log.Error("analysis_job update failed", "job_id", id, "target", target, "err", err)
		return dbError("analysis_jobs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("analysis_jobs", err)
	}
	if n > 0 {
		return nil
	}
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	r.log.Warn("analysis_job transition rejected", "job_id", id, "from", current.Status, "to", target)
	return common.NewAppError("INVALID_TRANSITION",
		"cannot move analysis from "+string(current.Status)+" to "+string(target), common.ErrInvalidTransition)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	}
	return limit
}
