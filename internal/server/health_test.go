package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/palmistry/internal/common"
)

func TestHealthProbeReportsDatabaseOutage(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	var pingErr error
	h := NewHealthServer(func(context.Context) error { return pingErr }, time.Hour, logger)
	t.Cleanup(h.Stop)
	ctx := context.Background()

	check := func() grpc_health_v1.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := h.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: HealthService})
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		return resp.GetStatus()
	}

	h.probe(ctx)
	if got := check(); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", got)
	}

	pingErr = fmt.Errorf("%w: ping: %w", common.ErrDatabase, errors.New("connection refused"))
	h.probe(ctx)
	if got := check(); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", got)
	}
	out := logs.String()
	if !strings.Contains(out, "code=Unavailable") || !strings.Contains(out, `message="internal error"`) {
		t.Errorf("probe log missing grpc status: %s", out)
	}

	pingErr = nil
	h.probe(ctx)
	if got := check(); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected recovery to SERVING, got %v", got)
	}
}
