package ingest

import (
	"context"
	"io"
	"time"

	"github.com/joseph-ayodele/palmistry/constants"
)

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string
	ImageID      string
	JobID        string
	JobStatus    constants.JobStatus
	Deduplicated bool
	HashHex      string
	FileExt      string
	StoragePath  string
	UploadedAt   time.Time
	Err          string
}

// DirStats summarizes a directory upload.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingestor is the behavior the server depends on.
type Ingestor interface {
	// IngestUpload stores one palm image and makes sure a job exists for it.
	IngestUpload(ctx context.Context, ownerID, filename string, r io.Reader, hand constants.Hand) (IngestionResult, error)
}
