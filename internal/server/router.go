package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/palmistry/internal/analysis"
	"github.com/joseph-ayodele/palmistry/internal/common"
	"github.com/joseph-ayodele/palmistry/internal/export"
	"github.com/joseph-ayodele/palmistry/internal/services/analyses"
	ingestsvc "github.com/joseph-ayodele/palmistry/internal/services/ingest"
)

const requestIDKey = "req_id"

// API serves the HTTP surface over the services.
type API struct {
	ingest   *ingestsvc.Service
	analyses *analyses.Service
	export   *export.Service
	auth     common.AuthConfig
	maxBytes int64
	ping     func(context.Context) error
	logger   *slog.Logger
}

type Deps struct {
	Ingest   *ingestsvc.Service
	Analyses *analyses.Service
	Export   *export.Service
	Auth     common.AuthConfig
	MaxBytes int64
	// Ping reports database health for /api/health. Optional.
	Ping   func(context.Context) error
	Logger *slog.Logger
}

func NewAPI(d Deps) *API {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &API{
		ingest:   d.Ingest,
		analyses: d.Analyses,
		export:   d.Export,
		auth:     d.Auth,
		maxBytes: d.MaxBytes,
		ping:     d.Ping,
		logger:   d.Logger,
	}
}

// Router builds the gin engine with every route registered.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), a.requestLogger())
	if a.maxBytes > 0 {
		r.MaxMultipartMemory = a.maxBytes
	}

	api := r.Group("/api")
	api.GET("/health", a.Health)
	api.POST("/login", a.Login)

	authed := api.Group("", a.requireAuth())
	{
		authed.POST("/analyses", a.Upload)
		authed.GET("/analyses", a.ListAnalyses)
		authed.GET("/analyses/:id", a.GetAnalysis)
		authed.GET("/analyses/:id/status", a.Status)
		authed.POST("/analyses/:id/questions", a.Ask)
		authed.GET("/analyses/:id/questions", a.Questions)
		authed.GET("/dashboard", a.Dashboard)
		authed.GET("/export.xlsx", a.ExportXLSX)
	}
	return r
}

// requestLogger assigns a request id and logs each request once it finishes.
func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Header("X-Request-ID", rid)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), rid))

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		a.logger.Log(c.Request.Context(), level, "http.request",
			"req_id", rid,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"bytes", c.Writer.Size(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

// fail writes {error} with the status mapped from the error chain.
func (a *API) fail(c *gin.Context, err error) {
	status := common.HTTPStatus(err)
	if errors.Is(err, analysis.ErrNotConfigured) {
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error("http.handler.error", "req_id", c.GetString(requestIDKey), "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": common.PublicMessage(err)})
}
