// Package metrics serves the Prometheus registry over HTTP.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// DefaultAddr is the default listen address for the metrics server.
const DefaultAddr = ":9090"

// Server serves Prometheus metrics over HTTP.
// It exposes /metrics for scraping and /health for liveness probes.
type Server struct {
	log        *zap.SugaredLogger
	httpServer *http.Server
}

// NewServer creates a new metrics HTTP server listening on addr
// (e.g., ":9090").
func NewServer(log *zap.SugaredLogger, addr string, gatherer prometheus.Gatherer) (*Server, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if addr == "" {
		return nil, errors.New("invalid address: must not be empty")
	}
	if gatherer == nil {
		return nil, errors.New("invalid gatherer: must not be nil")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok")) //nolint:errcheck // best-effort health response
	})

	return &Server{
		log: log,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Start begins serving metrics. This is non-blocking.
// Returns a channel that receives an error if the server fails.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("metrics server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully stops the metrics server, waiting for active connections
// to complete or until the context is cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Infow("metrics server shutting down")
	return s.httpServer.Shutdown(ctx)
}
