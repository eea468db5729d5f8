package entity

import (
	"time"

	"github.com/google/uuid"
)

// PalmImage represents an uploaded palm photo for data transfer between layers.
type PalmImage struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Filename    string    `json:"filename"`
	FileExt     string    `json:"file_ext"`
	ContentHash []byte    `json:"content_hash"`
	SizeBytes   int64     `json:"size_bytes"`
	StoragePath string    `json:"storage_path"`
	Hand        string    `json:"hand"`
	UploadedAt  time.Time `json:"uploaded_at"`
}
