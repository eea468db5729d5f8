package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/palmistry/internal/common"
	"github.com/joseph-ayodele/palmistry/internal/entity"
)

type ImageRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.PalmImage, error)
	GetByOwnerAndHash(ctx context.Context, ownerID string, hash []byte) (*entity.PalmImage, error)
	Create(ctx context.Context, img *entity.PalmImage) (*entity.PalmImage, error)
	UpsertByHash(ctx context.Context, img *entity.PalmImage) (*entity.PalmImage, bool, error)
}

type imageRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewImageRepository(db *DB, logger *slog.Logger) ImageRepository {
	return &imageRepo{
		db:     db,
		logger: logger,
	}
}

const imageColumns = `id, owner_id, filename, file_ext, content_hash, size_bytes, storage_path, hand, uploaded_at`

func scanImage(row interface{ Scan(...any) error }) (*entity.PalmImage, error) {
	var img entity.PalmImage
	if err := row.Scan(&img.ID, &img.OwnerID, &img.Filename, &img.FileExt, &img.ContentHash,
		&img.SizeBytes, &img.StoragePath, &img.Hand, &img.UploadedAt); err != nil {
		return nil, err
	}
	return &img, nil
}

func (r *imageRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.PalmImage, error) {
	img, err := scanImage(r.db.queryRow(ctx, `SELECT `+imageColumns+` FROM palm_images WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("NOT_FOUND", "image not found", common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get palm image", "image_id", id, "error", err)
		return nil, dbError("palm_images", err)
	}
	return img, nil
}

func (r *imageRepo) GetByOwnerAndHash(ctx context.Context, ownerID string, hash []byte) (*entity.PalmImage, error) {
	img, err := scanImage(r.db.queryRow(ctx,
		`SELECT `+imageColumns+` FROM palm_images WHERE owner_id = ? AND content_hash = ?`, ownerID, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("NOT_FOUND", "image not found", common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get palm image by owner and hash", "owner_id", ownerID, "error", err)
		return nil, dbError("palm_images", err)
	}
	return img, nil
}

func (r *imageRepo) Create(ctx context.Context, img *entity.PalmImage) (*entity.PalmImage, error) {
	row := *img
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.UploadedAt.IsZero() {
		row.UploadedAt = time.Now().UTC()
	}
	_, err := r.db.exec(ctx,
		`INSERT INTO palm_images (`+imageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.OwnerID, row.Filename, row.FileExt, row.ContentHash,
		row.SizeBytes, row.StoragePath, row.Hand, row.UploadedAt)
	if err != nil {
		r.logger.Error("failed to create palm image", "owner_id", row.OwnerID, "filename", row.Filename, "error", err)
		return nil, dbError("palm_images", err)
	}
	return &row, nil
}

// UpsertByHash returns the owner's existing image with the same content, or
// creates it. The bool reports whether the image already existed.
func (r *imageRepo) UpsertByHash(ctx context.Context, img *entity.PalmImage) (*entity.PalmImage, bool, error) {
	if existing, err := r.GetByOwnerAndHash(ctx, img.OwnerID, img.ContentHash); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, false, err
	}
	row, err := r.Create(ctx, img)
	if err != nil {
		r.logger.Error("failed to upsert palm image by hash", "owner_id", img.OwnerID, "filename", img.Filename, "error", err)
		return nil, false, err
	}
	return row, false, nil
}
