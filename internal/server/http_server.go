// Package server exposes the runtime over HTTP: Prometheus metrics,
// health and readiness probes, and read-only inspection endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/docpulse/runtime-node/internal/errors"
	"github.com/docpulse/runtime-node/internal/model"
	"github.com/docpulse/runtime-node/internal/service"
)

// Config holds HTTP server configuration
type Config struct {
	Port        int
	MetricsPath string
}

// Server serves the runtime's HTTP surface
type Server struct {
	httpServer *http.Server
	runtime    *service.Runtime
	gossip     *service.GossipService
	logger     *zap.Logger
}

// New creates a server over the given runtime. gossip may be nil.
func New(cfg Config, rt *service.Runtime, gossip *service.GossipService, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		runtime: rt,
		gossip:  gossip,
		logger:  logger,
	}

	mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.HandleFunc("/v1/cache/stats", s.cacheStatsHandler)
	mux.HandleFunc("/v1/trails/", s.trailsHandler)
	mux.HandleFunc("/v1/smells", s.smellsHandler)
	mux.HandleFunc("/v1/jobs", s.jobsHandler)
	mux.HandleFunc("/v1/advice", s.adviceHandler)
	mux.HandleFunc("/v1/peers", s.peersHandler)

	return s
}

// Start begins serving. It returns immediately.
func (s *Server) Start() {
	s.logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", zap.Error(err))
		}
	}()
}

// Shutdown stops the server, letting in-flight requests finish
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// healthHandler returns the full health snapshot. An unhealthy node
// answers 503 so load balancers can steer traffic away.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.runtime.Health()

	status := http.StatusOK
	if snap.Status == model.HealthStateUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, snap)
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.runtime.StoreDown() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "reason": "backing store unreachable"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) cacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runtime.CacheStats())
}

// trailsHandler serves /v1/trails/{scope}?limit=N
func (s *Server) trailsHandler(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Path[len("/v1/trails/"):]

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, errors.InvalidArgument(fmt.Sprintf("invalid limit %q", raw), err))
			return
		}
		limit = n
	}

	hot, err := s.runtime.HotTrails(scope, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	report, err := s.runtime.ScopeReport(scope)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"scope":  report,
		"trails": hot,
	})
}

func (s *Server) smellsHandler(w http.ResponseWriter, r *http.Request) {
	if scope := r.URL.Query().Get("scope"); scope != "" {
		smells, err := s.runtime.DetectSmells(scope)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, smells)
		return
	}
	s.writeJSON(w, http.StatusOK, s.runtime.SmellReport())
}

func (s *Server) jobsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runtime.Jobs())
}

func (s *Server) adviceHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runtime.Advise())
}

func (s *Server) peersHandler(w http.ResponseWriter, r *http.Request) {
	if s.gossip == nil {
		s.writeJSON(w, http.StatusOK, map[string]service.PeerHealth{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.gossip.Peers())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidArgument, errors.ErrCodeInvalidScope,
		errors.ErrCodeInvalidKey, errors.ErrCodeInvalidTTL:
		status = http.StatusBadRequest
	case errors.ErrCodeDuplicateJob:
		status = http.StatusConflict
	case errors.ErrCodeStoreUnavailable:
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
