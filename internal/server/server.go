// Package server assembles the HTTP API around an import service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/rpattn/tabimport/internal/auth"
	"github.com/rpattn/tabimport/internal/config"
	"github.com/rpattn/tabimport/internal/importer"
	"github.com/rpattn/tabimport/internal/middleware"
)

const shutdownTimeout = 30 * time.Second

// Handler routes the import API and wraps it with CORS, panic recovery,
// request logging and user scoping.
func Handler(service *importer.Service, cfg config.ServerConfig, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	api := importer.NewHTTPHandler(service)

	mux := http.NewServeMux()
	mux.Handle("/imports", api)
	mux.Handle("/imports/", api)
	mux.Handle("/mappings", api)
	mux.Handle("/mappings/", api)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*", auth.UserHeader},
	})
	return c.Handler(middleware.Recover(logger)(middleware.Logging(logger)(auth.Middleware(mux))))
}

// New returns an http.Server for the import API.
func New(service *importer.Service, cfg config.ServerConfig, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:    cfg.Addr,
		Handler: Handler(service, cfg, logger),
		// uploads can be large
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting import API", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}
