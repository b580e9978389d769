// Package web serves the browse and control API over the patent store.
package web

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nben/cipofetch/internal/progress"
)

// Server exposes the query interface and the async fetch trigger. The
// pipeline itself is injected as a run function so the web layer never
// touches ingestion internals.
type Server struct {
	db          *sql.DB
	reporter    *progress.Reporter
	runPipeline func(ctx context.Context) error
	logger      *slog.Logger

	// baseCtx bounds background fetch runs; Run replaces it with the
	// server-lifetime context so shutdown cancels an in-flight batch.
	baseCtx context.Context

	fetchActive atomic.Bool
}

func NewServer(db *sql.DB, reporter *progress.Reporter, runPipeline func(ctx context.Context) error, logger *slog.Logger) *Server {
	return &Server{
		db:          db,
		reporter:    reporter,
		runPipeline: runPipeline,
		logger:      logger,
		baseCtx:     context.Background(),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api")
	{
		api.GET("/patents", s.handleSearch)
		api.GET("/patents/:number", s.handleDetail)
		api.GET("/patents/:number/claims", s.handleClaims)
		api.GET("/patents/:number/disclosures", s.handleDisclosures)
		api.GET("/status", s.handleStatus)
		api.POST("/fetch", s.handleFetch)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening.", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
