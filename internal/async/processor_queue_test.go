package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type recordingProcessor struct {
	mu    sync.Mutex
	seen  []uuid.UUID
	block chan struct{}
}

func (p *recordingProcessor) ProcessJob(ctx context.Context, jobID uuid.UUID) error {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	p.seen = append(p.seen, jobID)
	p.mu.Unlock()
	return nil
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestQueueProcessesAndDrains(t *testing.T) {
	proc := &recordingProcessor{}
	q := NewProcessorQueue(proc, quietLogger(), WithWorkers(2), WithQueueSize(8))

	for i := 0; i < 5; i++ {
		if err := q.Enqueue(context.Background(), Job{JobID: uuid.New()}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	if proc.count() != 5 {
		t.Errorf("expected 5 processed jobs, got %d", proc.count())
	}
	if err := q.Enqueue(context.Background(), Job{JobID: uuid.New()}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed after shutdown, got %v", err)
	}
	q.Shutdown(ctx)
}

func TestEnqueueBackpressureHonorsContext(t *testing.T) {
	proc := &recordingProcessor{block: make(chan struct{})}
	q := NewProcessorQueue(proc, quietLogger(), WithWorkers(1), WithQueueSize(1))

	// one in the worker, one in the buffer
	_ = q.Enqueue(context.Background(), Job{JobID: uuid.New()})
	_ = q.Enqueue(context.Background(), Job{JobID: uuid.New()})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, Job{JobID: uuid.New()})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("unexpected error %v", err)
	}

	close(proc.block)
	done, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	q.Shutdown(done)
	if proc.count() < 2 {
		t.Errorf("expected queued jobs to finish, got %d", proc.count())
	}
}

func TestWorkerTimeout(t *testing.T) {
	proc := &recordingProcessor{block: make(chan struct{})}
	q := NewProcessorQueue(proc, quietLogger(), WithWorkers(1), WithProcessTimeout(20*time.Millisecond))
	_ = q.Enqueue(context.Background(), Job{JobID: uuid.New()})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q.Shutdown(ctx)
	if proc.count() != 0 {
		t.Errorf("timed out job should not be recorded, got %d", proc.count())
	}
}
