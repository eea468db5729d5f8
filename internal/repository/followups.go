package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/palmistry/internal/common"
	"github.com/joseph-ayodele/palmistry/internal/entity"
)

var ErrFollowUpLimit = fmt.Errorf("follow-up limit reached: %w", common.ErrConflict)

type FollowUpRepository interface {
	// Create stores a follow-up unless the job already has limit of them.
	// limit <= 0 means no limit.
	Create(ctx context.Context, jobID uuid.UUID, question, answer string, limit int) (*entity.FollowUp, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*entity.FollowUp, error)
	CountByJob(ctx context.Context, jobID uuid.UUID) (int, error)
}

type followUpRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewFollowUpRepository(db *DB, logger *slog.Logger) FollowUpRepository {
	return &followUpRepo{db: db, logger: logger}
}

func (r *followUpRepo) Create(ctx context.Context, jobID uuid.UUID, question, answer string, limit int) (*entity.FollowUp, error) {
	fu := &entity.FollowUp{
		ID:        uuid.New(),
		JobID:     jobID,
		Question:  question,
		Answer:    answer,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return nil, dbError("follow_ups", err)
	}
	defer func() { _ = tx.Rollback() }()

	// The job row lock serializes writers across processes on Postgres;
	// SQLite runs on a single connection, so the transaction alone does.
	if r.db.Dialect == DialectPostgres {
		var locked uuid.UUID
		err := tx.QueryRowContext(ctx, r.db.rebind(`SELECT id FROM analysis_jobs WHERE id = ? FOR UPDATE`), jobID).Scan(&locked)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("analysis job %s: %w", jobID, common.ErrNotFound)
		}
		if err != nil {
			return nil, dbError("analysis_jobs", err)
		}
	}
	if limit > 0 {
		var n int
		if err := tx.QueryRowContext(ctx, r.db.rebind(`SELECT COUNT(*) FROM follow_ups WHERE job_id = ?`), jobID).Scan(&n); err != nil {
			return nil, dbError("follow_ups", err)
		}
		if n >= limit {
			r.logger.Warn("follow-up limit reached", "job_id", jobID, "count", n, "limit", limit)
			return nil, ErrFollowUpLimit
		}
	}
	if _, err := tx.ExecContext(ctx, r.db.rebind(
		`INSERT INTO follow_ups (id, job_id, question, answer, created_at) VALUES (?, ?, ?, ?, ?)`),
		fu.ID, fu.JobID, fu.Question, fu.Answer, fu.CreatedAt); err != nil {
		r.logger.Error("failed to create follow-up", "job_id", jobID, "error", err)
		return nil, dbError("follow_ups", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, dbError("follow_ups", err)
	}
	return fu, nil
}

func (r *followUpRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*entity.FollowUp, error) {
	rows, err := r.db.query(ctx,
		`SELECT id, job_id, question, answer, created_at FROM follow_ups WHERE job_id = ? ORDER BY created_at ASC`, jobID)
	if err != nil {
		r.logger.Error("failed to list follow-ups", "job_id", jobID, "error", err)
		return nil, dbError("follow_ups", err)
	}
	defer rows.Close()

	out := make([]*entity.FollowUp, 0)
	for rows.Next() {
		var fu entity.FollowUp
		if err := rows.Scan(&fu.ID, &fu.JobID, &fu.Question, &fu.Answer, &fu.CreatedAt); err != nil {
			return nil, dbError("follow_ups", err)
		}
		out = append(out, &fu)
	}
	return out, dbError("follow_ups", rows.Err())
}

func (r *followUpRepo) CountByJob(ctx context.Context, jobID uuid.UUID) (int, error) {
	var n int
	if err := r.db.queryRow(ctx, `SELECT COUNT(*) FROM follow_ups WHERE job_id = ?`, jobID).Scan(&n); err != nil {
		r.logger.Error("failed to count follow-ups", "job_id", jobID, "error", err)
		return 0, dbError("follow_ups", err)
	}
	return n, nil
}
