// Package server exposes the HTTP trigger surface: endpoints for external
// schedulers to run a dispatch cycle, a webhook queue pass, or a
// maintenance sweep, plus health and Prometheus metrics endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/outflowhq/outflow/config"
	"github.com/outflowhq/outflow/dispatch"
	"github.com/outflowhq/outflow/internal/metrics"
	"github.com/outflowhq/outflow/maintenance"
	"github.com/outflowhq/outflow/version"
	"github.com/outflowhq/outflow/webhookq"
)

// Server hosts the trigger endpoints. All endpoints call the same pass
// functions the internal tickers use; the stores' conditional updates make
// overlapping invocations safe.
type Server struct {
	dispatcher    *dispatch.Dispatcher
	runner        *webhookq.Runner
	sweeper       *maintenance.Sweeper
	collector     *metrics.Collector
	triggerSecret string
	httpServer    *http.Server
	log           *zap.SugaredLogger
}

// New creates the trigger server.
func New(
	dispatcher *dispatch.Dispatcher,
	runner *webhookq.Runner,
	sweeper *maintenance.Sweeper,
	collector *metrics.Collector,
	cfg config.ServerConfig,
	log *zap.SugaredLogger,
) *Server {
	s := &Server{
		dispatcher:    dispatcher,
		runner:        runner,
		sweeper:       sweeper,
		collector:     collector,
		triggerSecret: cfg.TriggerSecret,
		log:           log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/trigger/dispatch", s.requireSecret(s.handleTriggerDispatch))
	mux.HandleFunc("/api/trigger/queue", s.requireSecret(s.handleTriggerQueue))
	mux.HandleFunc("/api/trigger/maintenance", s.requireSecret(s.handleTriggerMaintenance))
	mux.Handle("/metrics", collector.Handler())

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Infow("Trigger server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}
