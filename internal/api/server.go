// Package api exposes the RAG pipeline over HTTP: a public chat surface
// authenticated per tenant, and an internal ingestion surface guarded by
// a shared key.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr               string
	InternalAPIKey     string
	RateLimitPerMinute int
	Logger             *slog.Logger
	DB                 Pinger
}

// Server is the askbase HTTP server.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// NewServer wires routes and the middleware stack:
// recovery, then logging, then per-client rate limiting; the internal
// surface additionally requires the shared key.
func NewServer(cfg ServerConfig, handlers *Handlers) (*Server, error) {
	if cfg.InternalAPIKey == "" {
		return nil, errors.New("internal API key is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	// Probe routes skip auth and throttling.
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		if cfg.DB != nil {
			if err := cfg.DB.Ping(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "database unreachable")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	public := http.NewServeMux()
	public.HandleFunc("POST /api/public/tenants/{tenantID}/chat", handlers.Chat)
	public.HandleFunc("GET /api/public/tenants/{tenantID}/health", handlers.TenantHealth)
	mux.Handle("/api/public/", RateLimitMiddleware(cfg.RateLimitPerMinute)(public))

	internal := http.NewServeMux()
	internal.HandleFunc("POST /api/internal/tenants/{tenantID}/sources/{sourceType}/{sourceID}/embed", handlers.EmbedSource)
	internal.HandleFunc("DELETE /api/internal/tenants/{tenantID}/sources/{sourceType}/{sourceID}", handlers.DeleteSource)
	internal.HandleFunc("DELETE /api/internal/tenants/{tenantID}", handlers.DeleteTenant)
	mux.Handle("/api/internal/", InternalAuthMiddleware(cfg.InternalAPIKey)(internal))

	var handler http.Handler = mux
	handler = LoggingMiddleware(logger)(handler)
	handler = RecoveryMiddleware(logger)(handler)

	return &Server{
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			// The write timeout must outlast the generation
			// backend's total timeout.
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  2 * time.Minute,
		},
		logger: logger,
	}, nil
}

// Handler exposes the configured handler for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return <-errCh
}
