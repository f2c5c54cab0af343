// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctlplane

import (
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/stonewall/internal/engine"
	"grimm.is/stonewall/internal/logging"
)

// HTTPServer serves the read-only observability endpoints: the log ring,
// the connection table export, and Prometheus metrics.
type HTTPServer struct {
	pipeline *engine.Pipeline
	ring     *logging.Ring
	registry *prometheus.Registry
	logger   *logging.Logger

	srv *http.Server
}

// NewHTTPServer builds the observability server.
func NewHTTPServer(pipeline *engine.Pipeline, ring *logging.Ring, registry *prometheus.Registry, logger *logging.Logger) *HTTPServer {
	h := &HTTPServer{
		pipeline: pipeline,
		ring:     ring,
		registry: registry,
		logger:   logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/logs", h.handleLogs).Methods(http.MethodGet)
	r.HandleFunc("/connections", h.handleConnections).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	h.srv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return h
}

// Start serves on addr in the background.
func (h *HTTPServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		if err := h.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Error("observability server failed", "error", err)
		}
	}()
	h.logger.Info("observability endpoints listening", "addr", addr)
	return nil
}

// Stop closes the server.
func (h *HTTPServer) Stop() {
	_ = h.srv.Close()
}

// Handler returns the router, for tests.
func (h *HTTPServer) Handler() http.Handler {
	return h.srv.Handler
}

func (h *HTTPServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(h.ring.Bytes())
}

func (h *HTTPServer) handleConnections(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	_, _ = w.Write(ExportConnections(h.pipeline.Table))
}
