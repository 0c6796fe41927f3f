// Package httpadapter serves health, readiness, progress, and metrics
// endpoints while a batch is running.
package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Batch is the running batch as seen by the server. Readiness turns true
// once the batch has its weather files and starts running jobs.
type Batch interface {
	sharedobs.ReadinessChecker
	Progress() domain.BatchProgress
}

// progressView is the /progress response body.
type progressView struct {
	domain.BatchProgress
	Remaining      int     `json:"remaining"`
	Percent        float64 `json:"percent"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Server exposes the batch over HTTP.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates an HTTP server with /healthz, /readyz, /progress, and
// /metrics routes for batch.
func NewServer(addr string, batch Batch, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(batch))
	mux.HandleFunc("GET /progress", handleProgress(batch, logger))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start listens on the configured address and serves until Shutdown.
// Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("batch status server listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Addr returns the bound address once Start is listening, else the
// configured one. With port 0 this is where the OS put the server.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func handleProgress(batch Batch, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		p := batch.Progress()
		view := progressView{
			BatchProgress:  p,
			Remaining:      p.Remaining(),
			Percent:        p.Percent(),
			ElapsedSeconds: p.Elapsed(domain.Now()).Seconds(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(view); err != nil {
			logger.Warn("write progress response failed", "error", err)
		}
	}
}
