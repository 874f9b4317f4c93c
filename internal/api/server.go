// Package api exposes the scan orchestrator over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/securescope/internal/engine"
	"github.com/pankaj-dahiya-devops/securescope/internal/models"
	"github.com/pankaj-dahiya-devops/securescope/internal/store"
)

// Scans is the orchestrator surface the API serves. *engine.Orchestrator
// satisfies it.
type Scans interface {
	StartScan(ctx context.Context, req engine.ScanRequest) (string, error)
	GetStatus(ctx context.Context, scanID string) (*models.ScanStatus, error)
	GetSummary(ctx context.Context, scanID string) (*models.Summary, error)
	ListFindings(ctx context.Context, scanID string, filter store.FindingFilter) ([]models.Finding, error)
	ExportScan(ctx context.Context, scanID string, format string) (*engine.ExportResult, error)
	ListRules(service string) ([]models.Rule, error)
}

type Dependencies struct {
	Scans  Scans
	Logger zerolog.Logger

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

type Config struct {
	Addr            string
	Prefix          string
	EnforceHTTPS    bool
	ShutdownTimeout time.Duration
	Dependencies    Dependencies
}

// WebAPI is the HTTP server.
type WebAPI struct {
	logger          zerolog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

// NewWebAPI builds the server. Call Run to serve.
func NewWebAPI(config Config) *WebAPI {
	timeout := config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebAPI{
		logger: config.Dependencies.Logger,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           ConfigureRouter(config),
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: timeout,
	}
}

// ConfigureRouter wires middleware and routes. Exposed for tests.
func ConfigureRouter(config Config) http.Handler {
	deps := config.Dependencies
	prefix := config.Prefix
	if prefix == "" {
		prefix = "/api"
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &handler{scans: deps.Scans}

	router := chi.NewRouter()
	router.Use(Logger(deps.Logger))
	router.Use(middleware.Recoverer)
	if config.EnforceHTTPS {
		router.Use(RequireHTTPS("/healthz", "/metrics"))
	}

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	router.Route(prefix, func(r chi.Router) {
		r.Post("/scans/start", h.startScan)
		r.Get("/scans/{scanID}/status", h.scanStatus)
		r.Get("/scans/{scanID}/summary", h.scanSummary)
		r.Get("/scans/{scanID}/findings", h.listFindings)
		r.Get("/scans/{scanID}/export.json", h.exportJSON)
		r.Get("/scans/{scanID}/export.md", h.exportMarkdown)
		r.Get("/catalog/rules", h.listRules)
	})
	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (w *WebAPI) Run(ctx context.Context) error {
	serverErrors := make(chan error, 1)
	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		w.logger.Info().Msg("shutdown initiated")

		// Give outstanding requests a deadline for completion.
		sctx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()

		err := w.server.Shutdown(sctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			err = w.server.Close()
		}
		return err
	}
}
