package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/joseph-ayodele/palmistry/internal/common"
)

// HealthService is the service name reported alongside the overall status.
const HealthService = "palmistry.v1.Analyses"

// Health answers /api/health with the database ping result.
func (a *API) Health(c *gin.Context) {
	if a.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := a.ping(ctx); err != nil {
			a.logger.Warn("http.health.degraded", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HealthServer runs the gRPC health service and keeps its status in sync with
// a periodic database ping.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	ping   func(context.Context) error
	every  time.Duration
	logger *slog.Logger
}

func NewHealthServer(ping func(context.Context) error, every time.Duration, logger *slog.Logger) *HealthServer {
	if every <= 0 {
		every = 15 * time.Second
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	// reflection for grpcurl
	reflection.Register(gs)
	return &HealthServer{grpc: gs, health: hs, ping: ping, every: every, logger: logger}
}

// Serve blocks serving on lis until Stop is called. Status probes run until
// ctx is done.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	h.probe(ctx)
	go func() {
		t := time.NewTicker(h.every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				h.probe(ctx)
			}
		}
	}()
	h.logger.Info("grpc health listening", "addr", lis.Addr().String())
	return h.grpc.Serve(lis)
}

func (h *HealthServer) probe(ctx context.Context) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if h.ping != nil {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := h.ping(pctx)
		cancel()
		if err != nil {
			st := grpcstatus.Convert(common.GRPCError(err))
			h.logger.Warn("health.probe.failed", "code", st.Code().String(), "message", st.Message(), "error", err)
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(HealthService, status)
}

// Stop marks the service as not serving and drains connections.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}
