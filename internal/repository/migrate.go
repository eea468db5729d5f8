package repository

import (
	"context"
	"fmt"
	"log/slog"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS palm_images (
		id           UUID PRIMARY KEY,
		owner_id     TEXT NOT NULL,
		filename     TEXT NOT NULL,
		file_ext     TEXT NOT NULL,
		content_hash BYTEA NOT NULL,
		size_bytes   BIGINT NOT NULL,
		storage_path TEXT NOT NULL,
		hand         TEXT NOT NULL,
		uploaded_at  TIMESTAMPTZ NOT NULL,
		UNIQUE (owner_id, content_hash)
	)`,
	`CREATE TABLE IF NOT EXISTS analysis_jobs (
		id            UUID PRIMARY KEY,
		image_id      UUID NOT NULL REFERENCES palm_images(id) ON DELETE CASCADE,
		owner_id      TEXT NOT NULL,
		status        TEXT NOT NULL,
		progress      INTEGER NOT NULL DEFAULT 0,
		result_json   TEXT,
		error_message TEXT,
		model_name    TEXT,
		created_at    TIMESTAMPTZ NOT NULL,
		started_at    TIMESTAMPTZ,
		finished_at   TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_owner ON analysis_jobs (owner_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_status ON analysis_jobs (status)`,
	`CREATE TABLE IF NOT EXISTS follow_ups (
		id         UUID PRIMARY KEY,
		job_id     UUID NOT NULL REFERENCES analysis_jobs(id) ON DELETE CASCADE,
		question   TEXT NOT NULL,
		answer     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_follow_ups_job ON follow_ups (job_id, created_at)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS palm_images (
		id           TEXT PRIMARY KEY,
		owner_id     TEXT NOT NULL,
		filename     TEXT NOT NULL,
		file_ext     TEXT NOT NULL,
		content_hash BLOB NOT NULL,
		size_bytes   INTEGER NOT NULL,
		storage_path TEXT NOT NULL,
		hand         TEXT NOT NULL,
		uploaded_at  TIMESTAMP NOT NULL,
		UNIQUE (owner_id, content_hash)
	)`,
	`CREATE TABLE IF NOT EXISTS analysis_jobs (
		id            TEXT PRIMARY KEY,
		image_id      TEXT NOT NULL REFERENCES palm_images(id) ON DELETE CASCADE,
		owner_id      TEXT NOT NULL,
		status        TEXT NOT NULL,
		progress      INTEGER NOT NULL DEFAULT 0,
		result_json   TEXT,
		error_message TEXT,
		model_name    TEXT,
		created_at    TIMESTAMP NOT NULL,
		started_at    TIMESTAMP,
		finished_at   TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_owner ON analysis_jobs (owner_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_status ON analysis_jobs (status)`,
	`CREATE TABLE IF NOT EXISTS follow_ups (
		id         TEXT PRIMARY KEY,
		job_id     TEXT NOT NULL REFERENCES analysis_jobs(id) ON DELETE CASCADE,
		question   TEXT NOT NULL,
		answer     TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_follow_ups_job ON follow_ups (job_id, created_at)`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	stmts := sqliteSchema
	if db.Dialect == DialectPostgres {
		stmts = postgresSchema
	}
	for i, stmt := range stmts {
		if _, err := db.SQL.ExecContext(ctx, stmt); err != nil {
			logger.Error("migration failed", "step", i, "error", err)
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	logger.Info("database schema ready", "dialect", db.Dialect, "statements", len(stmts))
	return nil
}
