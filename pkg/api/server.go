// Package api serves a filekv store over HTTP.
//
// Routes live under /api/v1 and answer with the APIResponse envelope.
// When an API key is configured every /api/v1 request must carry it in
// the X-API-Key header. Prometheus metrics are served on /metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsInterval = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Router builds the HTTP handler for the server
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// unprotected for scraping
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		if s.config.APIKey != "" {
			r.Use(s.metrics.InstrumentAuthMiddleware(apiKeyMiddleware(s.config.APIKey)))
		}

		r.Get("/health", s.metrics.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))

		r.Get("/kv", s.metrics.InstrumentHandler("GET", "/api/v1/kv", s.handleListKeys))
		r.Post("/kv/{key}", s.metrics.InstrumentHandler("POST", "/api/v1/kv/{key}", s.handleCreate))
		r.Get("/kv/{key}", s.metrics.InstrumentHandler("GET", "/api/v1/kv/{key}", s.handleGet))
		r.Put("/kv/{key}", s.metrics.InstrumentHandler("PUT", "/api/v1/kv/{key}", s.handleUpdate))
		r.Delete("/kv/{key}", s.metrics.InstrumentHandler("DELETE", "/api/v1/kv/{key}", s.handleDelete))

		r.Get("/lists/{name}", s.metrics.InstrumentHandler("GET", "/api/v1/lists/{name}", s.handleListGet))
		r.Post("/lists/{name}", s.metrics.InstrumentHandler("POST", "/api/v1/lists/{name}", s.handleListAppend))
		r.Delete("/lists/{name}", s.metrics.InstrumentHandler("DELETE", "/api/v1/lists/{name}", s.handleListDelete))

		r.Post("/compact", s.metrics.InstrumentHandler("POST", "/api/v1/compact", s.handleCompact))
		r.Get("/stats", s.metrics.InstrumentHandler("GET", "/api/v1/stats", s.handleStats))
	})

	return r
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	updaterCtx, stopUpdater := context.WithCancel(ctx)
	defer stopUpdater()
	go s.startMetricsUpdater(updaterCtx, metricsInterval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("filekv API listening",
		"addr", ln.Addr().String(),
		"metrics", fmt.Sprintf("http://%s/metrics", ln.Addr().String()),
		"auth", s.config.APIKey != "")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down API server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// StartServer listens on the configured address and serves the store
// until ctx is cancelled
func StartServer(ctx context.Context, store IKVStore, config ServerConfig) error {
	server := NewServer(store, config, NewMetrics())

	addr := net.JoinHostPort(config.Bind, fmt.Sprint(config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return server.Serve(ctx, ln)
}
