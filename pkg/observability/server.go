package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Server provides HTTP endpoints for observability
type Server struct {
	httpServer *http.Server
	checker    *HealthChecker
	port       int
}

// NewServer creates a new observability server
func NewServer(port int, checker *HealthChecker) *Server {
	if checker == nil {
		checker = NewHealthChecker()
	}
	return &Server{
		port:    port,
		checker: checker,
	}
}

// Start starts the observability server. It blocks until the server exits.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.checker.HealthHandler())
	mux.HandleFunc("/health/live", LivenessHandler())
	mux.Handle("/metrics", MetricsHandler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
