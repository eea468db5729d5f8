package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/palmistry/internal/analysis/openai"
	"github.com/joseph-ayodele/palmistry/internal/async"
	"github.com/joseph-ayodele/palmistry/internal/common"
	"github.com/joseph-ayodele/palmistry/internal/core"
	"github.com/joseph-ayodele/palmistry/internal/export"
	"github.com/joseph-ayodele/palmistry/internal/imageprep"
	"github.com/joseph-ayodele/palmistry/internal/ingest"
	repo "github.com/joseph-ayodele/palmistry/internal/repository"
	"github.com/joseph-ayodele/palmistry/internal/server"
	"github.com/joseph-ayodele/palmistry/internal/services/analyses"
	ingestsvc "github.com/joseph-ayodele/palmistry/internal/services/ingest"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := common.LoadConfig()
	logger := common.NewLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := server.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer repo.Close(db, logger)

	if err := server.PingDB(ctx, db, logger, 5*time.Second); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	ping := func(ctx context.Context) error { return server.PingDB(ctx, db, logger, 2*time.Second) }

	imagesRepo := repo.NewImageRepository(db, logger)
	jobsRepo := repo.NewJobRepository(db, logger)
	followUpsRepo := repo.NewFollowUpRepository(db, logger)

	llm := openai.NewClient(openai.Config{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		Model:           cfg.LLM.Model,
		Temperature:     cfg.LLM.Temperature,
		Timeout:         cfg.LLM.Timeout,
		LenientOptional: true,
	}, logger)
	preparer := imageprep.NewPreparer(cfg.Storage.HeicConverter, cfg.Storage.CacheDir, logger)
	processor := core.NewProcessor(logger, llm, preparer, imagesRepo, jobsRepo)

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.JobTimeout),
	)

	// Jobs a previous run was processing can't be resumed; queued ones can.
	if n, err := processor.RecoverInterrupted(ctx); err != nil {
		logger.Error("recover interrupted jobs", "error", err)
	} else if n > 0 {
		logger.Warn("failed interrupted jobs", "count", n)
	}
	if n, err := processor.Requeue(ctx, queue); err != nil {
		logger.Error("requeue pending jobs", "error", err)
	} else if n > 0 {
		logger.Info("requeued pending jobs", "count", n)
	}

	ingestor := ingest.NewFSIngestor(imagesRepo, jobsRepo, cfg.Storage.UploadDir, cfg.Storage.MaxUploadBytes, logger)
	api := server.NewAPI(server.Deps{
		Ingest:   ingestsvc.NewService(ingestor, queue, logger),
		Analyses: analyses.NewService(jobsRepo, imagesRepo, followUpsRepo, llm, logger),
		Export:   export.NewService(jobsRepo, imagesRepo, followUpsRepo, logger),
		Auth:     cfg.Auth,
		MaxBytes: cfg.Storage.MaxUploadBytes,
		Ping:     ping,
		Logger:   logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("palmistry listening", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	var health *server.HealthServer
	if cfg.Server.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.HealthAddr)
		if err != nil {
			logger.Error("failed to listen on health address", "addr", cfg.Server.HealthAddr, "error", err)
			os.Exit(1)
		}
		health = server.NewHealthServer(ping, 15*time.Second, logger)
		go func() {
			if err := health.Serve(ctx, lis); err != nil {
				logger.Error("grpc health serve error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	if health != nil {
		health.Stop()
	}
	logger.Info("stopped")
}
