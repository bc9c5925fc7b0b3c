package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"poolvault/internal/api/handlers"
	"poolvault/internal/api/health"
	"poolvault/internal/metrics"
	"poolvault/pkg/logger"
)

// Config holds server configuration
type Config struct {
	Port        int
	ServiceName string
	Version     string
}

// Server wraps the HTTP listener and its lifecycle
type Server struct {
	httpServer *http.Server
	cfg        Config
	log        *logger.Logger
}

// NewServer creates the HTTP server with all routes wired
func NewServer(cfg Config, healthHandler *health.Handler, apiHandler *handlers.Handler, log *logger.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", healthHandler.HandleReadiness)
	mux.HandleFunc("GET /live", healthHandler.HandleLiveness)
	mux.Handle("GET /metrics", metrics.Handler())

	apiHandler.Register(mux)

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"service": cfg.ServiceName,
			"version": cfg.Version,
			"status":  "running",
		})
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		cfg: cfg,
		log: log.With("component", "http"),
	}
}

// Start blocks serving HTTP until Shutdown is called
func (s *Server) Start() error {
	s.log.Infow("HTTP server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Infow("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
