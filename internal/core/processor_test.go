package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/palmistry/constants"
	"github.com/joseph-ayodele/palmistry/internal/analysis"
	"github.com/joseph-ayodele/palmistry/internal/async"
	"github.com/joseph-ayodele/palmistry/internal/entity"
	"github.com/joseph-ayodele/palmistry/internal/imageprep"
	"github.com/joseph-ayodele/palmistry/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAnalyzer struct {
	raw   []byte
	err   error
	calls int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req analysis.AnalyzeRequest) (analysis.PalmReading, []byte, error) {
	f.calls++
	if f.err != nil {
		return analysis.PalmReading{}, nil, f.err
	}
	return analysis.PalmReading{Hand: req.Hand, Confidence: 0.8}, f.raw, nil
}

func (f *fakeAnalyzer) ModelName() string { return "fake-vision" }

type fakeLoader struct{ err error }

func (f fakeLoader) Load(_ context.Context, img *entity.PalmImage) (imageprep.Image, error) {
	if f.err != nil {
		return imageprep.Image{}, f.err
	}
	return imageprep.Image{Data: []byte("img"), MimeType: "image/jpeg", Path: img.StoragePath}, nil
}

type fixture struct {
	jobs   repository.JobRepository
	images repository.ImageRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{Driver: "sqlite", DSN: ":memory:"}, testLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { repository.Close(db, testLogger()) })
	if err := repository.Migrate(ctx, db, testLogger()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return fixture{
		jobs:   repository.NewJobRepository(db, testLogger()),
		images: repository.NewImageRepository(db, testLogger()),
	}
}

func (f fixture) queuedJob(t *testing.T, hash string) *entity.AnalysisJob {
	t.Helper()
	ctx := context.Background()
	img, err := f.images.Create(ctx, &entity.PalmImage{
		OwnerID: "alice", Filename: "palm.jpg", FileExt: "jpg",
		ContentHash: []byte(hash), SizeBytes: 3, StoragePath: "/tmp/" + hash + ".jpg", Hand: "left",
	})
	if err != nil {
		t.Fatalf("Create image failed: %v", err)
	}
	job, err := f.jobs.Create(ctx, img.ID, img.OwnerID)
	if err != nil {
		t.Fatalf("Create job failed: %v", err)
	}
	return job
}

func TestProcessJobCompletes(t *testing.T) {
	f := newFixture(t)
	job := f.queuedJob(t, "h1")
	an := &fakeAnalyzer{raw: []byte(`{"hand":"left","summary":"steady"}`)}
	p := NewProcessor(testLogger(), an, fakeLoader{}, f.images, f.jobs)

	if err := p.ProcessJob(context.Background(), job.ID); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}
	got, err := f.jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != constants.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
	if string(got.Result) != `{"hand":"left","summary":"steady"}` {
		t.Errorf("result = %s", got.Result)
	}
	if got.ModelName == nil || *got.ModelName != "fake-vision" {
		t.Errorf("model name not recorded: %v", got.ModelName)
	}

	// second run is a no-op
	if err := p.ProcessJob(context.Background(), job.ID); err != nil {
		t.Errorf("reprocessing a terminal job should be skipped, got %v", err)
	}
	if an.calls != 1 {
		t.Errorf("analyzer called %d times, want 1", an.calls)
	}
}

func TestProcessJobFailureMessages(t *testing.T) {
	tests := []struct {
		name     string
		analyze  error
		load     error
		expected string
	}{
		{"generic", errors.New("boom"), nil, MsgAnalysisFailed},
		{"timeout", fmt.Errorf("call: %w", context.DeadlineExceeded), nil, MsgTimedOut},
		{"rate limited", &analysis.StatusError{Code: http.StatusTooManyRequests}, nil, MsgBusy},
		{"not configured", fmt.Errorf("key: %w", analysis.ErrNotConfigured), nil, MsgNotConfigured},
		{"unreadable", fmt.Errorf("%w: bad json", analysis.ErrInvalidReading), nil, MsgUnreadable},
		{"load error", nil, errors.New("disk gone"), MsgAnalysisFailed},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			job := f.queuedJob(t, fmt.Sprintf("h%d", i))
			p := NewProcessor(testLogger(), &fakeAnalyzer{err: tt.analyze}, fakeLoader{err: tt.load}, f.images, f.jobs)

			if err := p.ProcessJob(context.Background(), job.ID); err == nil {
				t.Fatal("expected error")
			}
			got, _ := f.jobs.GetByID(context.Background(), job.ID)
			if got.Status != constants.JobStatusFailed {
				t.Fatalf("status = %s, want failed", got.Status)
			}
			if got.ErrorMessage == nil || *got.ErrorMessage != tt.expected {
				t.Errorf("error message = %v, want %q", got.ErrorMessage, tt.expected)
			}
		})
	}
}

func TestProcessJobSkipsClaimedJob(t *testing.T) {
	f := newFixture(t)
	job := f.queuedJob(t, "h1")
	if err := f.jobs.MarkProcessing(context.Background(), job.ID, "other"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	an := &fakeAnalyzer{}
	p := NewProcessor(testLogger(), an, fakeLoader{}, f.images, f.jobs)
	if err := p.ProcessJob(context.Background(), job.ID); err != nil {
		t.Errorf("expected nil for claimed job, got %v", err)
	}
	if an.calls != 0 {
		t.Error("analyzer should not run for a job owned by another worker")
	}
}

func TestProcessJobUnknown(t *testing.T) {
	f := newFixture(t)
	p := NewProcessor(testLogger(), &fakeAnalyzer{}, fakeLoader{}, f.images, f.jobs)
	if err := p.ProcessJob(context.Background(), uuid.New()); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestRecoverInterrupted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stuck := f.queuedJob(t, "h1")
	waiting := f.queuedJob(t, "h2")
	_ = f.jobs.MarkProcessing(ctx, stuck.ID, "m")

	p := NewProcessor(testLogger(), &fakeAnalyzer{}, fakeLoader{}, f.images, f.jobs)
	n, err := p.RecoverInterrupted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RecoverInterrupted = %d, %v", n, err)
	}
	got, _ := f.jobs.GetByID(ctx, stuck.ID)
	if got.Status != constants.JobStatusFailed || *got.ErrorMessage != MsgInterrupted {
		t.Errorf("stuck job = %s %v", got.Status, got.ErrorMessage)
	}
	got, _ = f.jobs.GetByID(ctx, waiting.ID)
	if got.Status != constants.JobStatusQueued {
		t.Errorf("queued job should be untouched, got %s", got.Status)
	}
}

type captureQueue struct {
	mu   sync.Mutex
	jobs []async.Job
}

func (c *captureQueue) Enqueue(_ context.Context, j async.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, j)
	return nil
}

func (c *captureQueue) Shutdown(context.Context) {}

func TestRequeue(t *testing.T) {
	f := newFixture(t)
	a := f.queuedJob(t, "h1")
	b := f.queuedJob(t, "h2")
	done := f.queuedJob(t, "h3")
	_ = f.jobs.Complete(context.Background(), done.ID, []byte(`{}`))

	q := &captureQueue{}
	p := NewProcessor(testLogger(), &fakeAnalyzer{}, fakeLoader{}, f.images, f.jobs)
	n, err := p.Requeue(context.Background(), q)
	if err != nil || n != 2 {
		t.Fatalf("Requeue = %d, %v", n, err)
	}
	if q.jobs[0].JobID != a.ID || q.jobs[1].JobID != b.ID {
		t.Errorf("requeue order = %v, want oldest first", q.jobs)
	}
}
