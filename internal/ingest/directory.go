package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// UploadFunc sends one file to the server and reports the job it landed in.
type UploadFunc func(ctx context.Context, path string) (jobID string, deduplicated bool, err error)

// UploadDirectory walks root, skips hidden entries if requested, and uploads
// every palm image it finds. Per-file failures are recorded, not returned.
func UploadDirectory(ctx context.Context, root string, skipHidden bool, upload UploadFunc) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		jobID, dedup, err := upload(ctx, path)
		if err != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		results = append(results, IngestionResult{
			SourcePath:   path,
			JobID:        jobID,
			Deduplicated: dedup,
			FileExt:      strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		})
		stats.Succeeded++
		if dedup {
			stats.Deduplicated++
		}
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}
