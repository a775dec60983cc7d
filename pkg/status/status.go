// Package status serves health, readiness, supervisor state and metrics over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"tgvisor/pkg/metrics"
	"tgvisor/pkg/scheduler"
	"tgvisor/pkg/supervisor"
)

const shutdownTimeout = 5 * time.Second

// SnapshotSource reports supervisor state. *supervisor.Supervisor satisfies it.
type SnapshotSource interface {
	Snapshot() supervisor.Snapshot
}

// JobLister reports scheduled jobs. *scheduler.Scheduler satisfies it.
type JobLister interface {
	Entries() []scheduler.Entry
}

type Options struct {
	Address string
	Source  SnapshotSource
	Jobs    JobLister
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Server struct {
	addr    string
	source  SnapshotSource
	jobs    JobLister
	metrics *metrics.Metrics
	log     *slog.Logger

	mu        sync.RWMutex
	startedAt time.Time
	boundAddr string
}

type identityResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	IsBot    bool   `json:"is_bot"`
}

type jobResponse struct {
	Name    string `json:"name"`
	Spec    string `json:"spec"`
	NextRun string `json:"next_run,omitempty"`
}

type statusResponse struct {
	Status        string            `json:"status"`
	State         string            `json:"state"`
	Failures      int               `json:"consecutive_failures"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	ConnectedAt   string            `json:"connected_at,omitempty"`
	LastUpdateAt  string            `json:"last_update_at,omitempty"`
	Identity      *identityResponse `json:"identity,omitempty"`
	Jobs          []jobResponse     `json:"jobs,omitempty"`
}

func New(opts Options) (*Server, error) {
	if opts.Source == nil {
		return nil, errors.New("snapshot source is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		addr:      opts.Address,
		source:    opts.Source,
		jobs:      opts.Jobs,
		metrics:   opts.Metrics,
		log:       log.With("component", "status"),
		startedAt: time.Now().UTC(),
	}, nil
}

// Handler returns the status mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("start status server: %w", err)
	}

	s.mu.Lock()
	s.boundAddr = listener.Addr().String()
	s.mu.Unlock()

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Status server started", "address", listener.Addr().String())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve status: %w", err)
	}
	return nil
}

// Addr returns the bound listen address once Run has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.boundAddr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, "ok")
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.source.Snapshot().State != supervisor.StateServing {
		s.respond(w, http.StatusServiceUnavailable, "not_ready")
		return
	}
	s.respond(w, http.StatusOK, "ready")
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := "not_ready"
	if s.source.Snapshot().State == supervisor.StateServing {
		status = "ready"
	}
	s.respond(w, http.StatusOK, status)
}

func (s *Server) respond(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Server) currentStatus(status string) statusResponse {
	snap := s.source.Snapshot()

	resp := statusResponse{
		Status:        status,
		State:         snap.State.String(),
		Failures:      snap.Failures,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ConnectedAt:   formatTime(snap.ConnectedAt),
		LastUpdateAt:  formatTime(snap.LastUpdateAt),
	}
	if snap.Identity.ID != 0 {
		resp.Identity = &identityResponse{
			ID:       snap.Identity.ID,
			Username: snap.Identity.Username,
			Name:     snap.Identity.Name,
			IsBot:    snap.Identity.IsBot,
		}
	}
	if s.jobs != nil {
		for _, e := range s.jobs.Entries() {
			resp.Jobs = append(resp.Jobs, jobResponse{Name: e.Name, Spec: e.Spec, NextRun: formatTime(e.Next)})
		}
	}

	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
