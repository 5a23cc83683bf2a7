// Package server exposes the audit pipeline over HTTP: upload NFS-e XML files
// or ZIP archives, receive the normalized table in the requested format.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ginjaninja78/nfse-tax-audit/internal/export"
	nfsemiddleware "github.com/ginjaninja78/nfse-tax-audit/internal/server/middleware"
	"github.com/ginjaninja78/nfse-tax-audit/internal/source"
	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
)

const defaultShutdownTimeout = 10 * time.Second

// Collector unpacks one upload into raw documents.
type Collector interface {
	FromBlob(ctx context.Context, name string, data []byte) (*source.Result, error)
}

// Aggregator turns raw documents into the normalized table.
type Aggregator interface {
	Aggregate(ctx context.Context, docs []types.RawDocument) (types.Table, error)
}

type WebAPI struct {
	router *chi.Mux
	logger *zerolog.Logger
	server *http.Server
	config Config
}

type Dependencies struct {
	Collector  Collector
	Aggregator Aggregator
	Export     export.Options
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration

	// MaxUploadBytes caps one request body.
	MaxUploadBytes int64

	// OutputName is the download file name pattern.
	OutputName string

	Dependencies Dependencies
}

func NewWebAPI(logger zerolog.Logger, config Config) *WebAPI {
	h := &handler{
		collector:  config.Dependencies.Collector,
		aggregator: config.Dependencies.Aggregator,
		export:     config.Dependencies.Export,
		maxUpload:  config.MaxUploadBytes,
		outputName: config.OutputName,
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(nfsemiddleware.Logger(&logger))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", h.Health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/columns", h.ListColumns)
		r.Post("/audit", h.Audit)
	})

	return &WebAPI{
		router: router,
		logger: &logger,
		config: config,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the routed handler, for tests and embedding.
func (w *WebAPI) Handler() http.Handler {
	return w.router
}

// Start serves until the server fails, ctx is cancelled or the process
// receives SIGINT/SIGTERM, then shuts down gracefully.
func (w *WebAPI) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

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
	case <-shutdown:
	case <-ctx.Done():
	}
	w.logger.Info().Msg("shutdown initiated")

	timeout := w.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	// Give outstanding requests a deadline for completion.
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := w.server.Shutdown(sctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("graceful shutdown failed")
		err = w.server.Close()
	}
	return err
}
