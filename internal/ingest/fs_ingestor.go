package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/palmistry/constants"
	"github.com/joseph-ayodele/palmistry/internal/common"
	"github.com/joseph-ayodele/palmistry/internal/entity"
	"github.com/joseph-ayodele/palmistry/internal/repository"
)

// FSIngestor stores uploads on the local filesystem under Root/<owner>/<sha256>.<ext>.
type FSIngestor struct {
	Images   repository.ImageRepository
	Jobs     repository.JobRepository
	Root     string
	MaxBytes int64
	Logger   *slog.Logger
}

func NewFSIngestor(images repository.ImageRepository, jobs repository.JobRepository, root string, maxBytes int64, logger *slog.Logger) *FSIngestor {
	if maxBytes <= 0 {
		maxBytes = constants.DefaultMaxUploadBytes
	}
	return &FSIngestor{
		Images:   images,
		Jobs:     jobs,
		Root:     root,
		MaxBytes: maxBytes,
		Logger:   logger,
	}
}

// IngestUpload hashes and stores the image, deduplicating per owner. A
// duplicate reuses the image's latest job unless that job failed, in which
// case a fresh job is queued.
func (i *FSIngestor) IngestUpload(ctx context.Context, ownerID, filename string, r io.Reader, hand constants.Hand) (IngestionResult, error) {
	var out IngestionResult

	ext := constants.NormalizeExt(filepath.Ext(filename))
	if ext == "" || !AllowedExt(ext) {
		i.Logger.Warn("ingest.rejected", "owner_id", ownerID, "filename", filename, "reason", "extension")
		return out, common.NewAppError("UNSUPPORTED_FILE",
			fmt.Sprintf("unsupported or missing extension %q", ext), common.ErrInvalidInput)
	}
	if strings.TrimSpace(ownerID) == "" {
		return out, common.NewAppError("MISSING_OWNER", "owner is required", common.ErrUnauthorized)
	}

	dir := filepath.Join(i.Root, safeSegment(ownerID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		i.Logger.Error("ingest.mkdir_failed", "dir", dir, "error", err)
		return out, fmt.Errorf("create upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		i.Logger.Error("ingest.tempfile_failed", "dir", dir, "error", err)
		return out, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmpPath)
	}()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(h, tmp), io.LimitReader(r, i.MaxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		i.Logger.Error("ingest.copy_failed", "owner_id", ownerID, "filename", filename, "error", err)
		return out, fmt.Errorf("store upload: %w", err)
	}
	switch {
	case n == 0:
		return out, common.NewAppError("EMPTY_FILE", "uploaded file is empty", common.ErrInvalidInput)
	case n > i.MaxBytes:
		i.Logger.Warn("ingest.rejected", "owner_id", ownerID, "filename", filename, "reason", "size", "limit", i.MaxBytes)
		return out, common.NewAppError("FILE_TOO_LARGE",
			fmt.Sprintf("file exceeds %d bytes", i.MaxBytes), common.ErrInvalidInput)
	}

	sum := h.Sum(nil)
	hashHex := hex.EncodeToString(sum)
	finalPath := filepath.Join(dir, hashHex+"."+ext)
	if _, statErr := os.Stat(finalPath); errors.Is(statErr, os.ErrNotExist) {
		if err := os.Rename(tmpPath, finalPath); err != nil {
			i.Logger.Error("ingest.rename_failed", "path", finalPath, "error", err)
			return out, fmt.Errorf("store upload: %w", err)
		}
	}

	img, dedup, err := i.Images.UpsertByHash(ctx, &entity.PalmImage{
		OwnerID:     ownerID,
		Filename:    filepath.Base(filename),
		FileExt:     ext,
		ContentHash: sum,
		SizeBytes:   n,
		StoragePath: finalPath,
		Hand:        string(hand),
		UploadedAt:  time.Now().UTC(),
	})
	if err != nil {
		return out, err
	}

	job, err := i.jobFor(ctx, img, dedup)
	if err != nil {
		return out, err
	}

	out = IngestionResult{
		SourcePath:   filename,
		ImageID:      img.ID.String(),
		JobID:        job.ID.String(),
		JobStatus:    job.Status,
		Deduplicated: dedup,
		HashHex:      hashHex,
		FileExt:      img.FileExt,
		StoragePath:  img.StoragePath,
		UploadedAt:   img.UploadedAt,
	}
	i.Logger.Info("ingest.accepted", "owner_id", ownerID, "image_id", out.ImageID, "job_id", out.JobID, "deduplicated", dedup, "bytes", n)
	return out, nil
}

func (i *FSIngestor) jobFor(ctx context.Context, img *entity.PalmImage, dedup bool) (*entity.AnalysisJob, error) {
	if dedup {
		job, err := i.Jobs.LatestForImage(ctx, img.ID)
		switch {
		case err == nil && job.Status != constants.JobStatusFailed:
			return job, nil
		case err != nil && !errors.Is(err, common.ErrNotFound):
			return nil, err
		}
	}
	return i.Jobs.Create(ctx, img.ID, img.OwnerID)
}

// ReadImage loads a stored image for analysis.
func ReadImage(img *entity.PalmImage) ([]byte, error) {
	b, err := os.ReadFile(img.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", img.ID, err)
	}
	return b, nil
}
