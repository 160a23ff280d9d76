// Package server exposes a running search over HTTP and coordinates
// shutdown of the command's services.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// RunState is the lifecycle state of the search behind a status server.
type RunState string

const (
	RunStateStarting  RunState = "starting"
	RunStateRunning   RunState = "running"
	RunStateFinished  RunState = "finished"
	RunStateFailed    RunState = "failed"
	RunStateCancelled RunState = "cancelled"
)

// Progress is the live machine count of a search.
type Progress interface {
	Done() uint64
	Total() uint64
}

// StatusResponse is the body of the /progress endpoint.
type StatusResponse struct {
	State     RunState  `json:"state"`
	RunID     string    `json:"run_id,omitempty"`
	States    int       `json:"states,omitempty"`
	Done      uint64    `json:"done"`
	Total     uint64    `json:"total"`
	Fraction  float64   `json:"fraction"`
	Elapsed   string    `json:"elapsed"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusConfig configures a status server.
type StatusConfig struct {
	RunID    string
	States   int
	Progress Progress
	// Metrics serves /metrics. Nil leaves the route unset.
	Metrics http.Handler
}

// StatusServer serves progress, health checks and metrics of one search.
type StatusServer struct {
	mu      sync.RWMutex
	cfg     StatusConfig
	state   RunState
	started time.Time
	now     func() time.Time

	srv *http.Server
}

// NewStatusServer creates a status server in the starting state.
func NewStatusServer(cfg StatusConfig) *StatusServer {
	return &StatusServer{
		cfg:     cfg,
		state:   RunStateStarting,
		started: time.Now(),
		now:     time.Now,
	}
}

// SetState records a lifecycle transition.
func (s *StatusServer) SetState(state RunState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// State returns the current lifecycle state.
func (s *StatusServer) State() RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Handler returns an http.Handler for the status endpoints.
func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/progress", s.handleProgress)
	mux.HandleFunc("/livez", s.handleLive)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/healthz", s.handleLive)
	if s.cfg.Metrics != nil {
		mux.Handle("/metrics", s.cfg.Metrics)
	}
	return mux
}

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when addr has port 0.
func (s *StatusServer) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status server listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.SetState(RunStateFailed)
		}
	}()
	return ln.Addr(), nil
}

// Shutdown gracefully stops a started server.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.srv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *StatusServer) snapshot() StatusResponse {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()

	now := s.now()
	resp := StatusResponse{
		State:     state,
		RunID:     s.cfg.RunID,
		States:    s.cfg.States,
		Elapsed:   now.Sub(s.started).Round(time.Millisecond).String(),
		Timestamp: now.UTC(),
	}
	if p := s.cfg.Progress; p != nil {
		resp.Done, resp.Total = p.Done(), p.Total()
		if resp.Total > 0 {
			resp.Fraction = float64(resp.Done) / float64(resp.Total)
		}
	}
	return resp
}

// handleProgress handles /progress: machine counts of the run.
func (s *StatusServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

// handleLive handles /livez: the process answers while the search has not
// failed.
func (s *StatusServer) handleLive(w http.ResponseWriter, r *http.Request) {
	resp := s.snapshot()
	status := http.StatusOK
	if resp.State == RunStateFailed {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

// handleReady handles /readyz: ready only while workers are running.
func (s *StatusServer) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := s.snapshot()
	status := http.StatusOK
	if resp.State != RunStateRunning {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *StatusServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
