// Package health exposes liveness and metrics endpoints for the
// long-running processes.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker is one dependency the process needs to be useful.
type Checker interface {
	Name() string
	Health(ctx context.Context) error
}

// CheckFunc adapts a function to the Checker interface.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string                     { return c.CheckName }
func (c CheckFunc) Health(ctx context.Context) error { return c.Fn(ctx) }

// Server serves /health and /metrics, plus any operational endpoints
// registered with Handle before Start.
type Server struct {
	checkers []Checker
	mux      *http.ServeMux
	server   *http.Server
}

// NewServer creates a health server on the given port.
func NewServer(port int, checkers ...Checker) *Server {
	mux := http.NewServeMux()
	s := &Server{
		checkers: checkers,
		mux:      mux,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Handle registers an extra endpoint on the server. Call before Start.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	details := make(map[string]string, len(s.checkers))
	for _, c := range s.checkers {
		if err := c.Health(ctx); err != nil {
			status = "unhealthy"
			details[c.Name()] = err.Error()
		} else {
			details[c.Name()] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": details,
	})
}
