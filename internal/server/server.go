// Package server exposes the operator control surface over HTTP:
// status, start/stop, configuration replacement, full rescans, recent
// logs and directory probes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prostopil/patchwatch/internal/config"
	"github.com/prostopil/patchwatch/internal/engine"
	"github.com/prostopil/patchwatch/internal/fsutil"
	"github.com/prostopil/patchwatch/internal/logging"
	"github.com/prostopil/patchwatch/internal/mapping"
	"github.com/prostopil/patchwatch/internal/model"
	"github.com/prostopil/patchwatch/internal/policy"
)

// Controller is the slice of the orchestrator the control surface
// drives.
type Controller interface {
	Start() error
	Stop()
	Status() engine.Status
	Pending() []model.Intent
	Confirm(targets ...string) int
	Rescan(ctx context.Context, force bool, progress func(done, total int)) (*engine.ScanReport, error)
	ReplaceConfig(p policy.Policy, rules []mapping.Rule) error
}

// Options configures the control server.
type Options struct {
	Addr       string
	Controller Controller

	// Ring serves GET /logs; nil disables the endpoint's content.
	Ring *logging.Ring
}

// Server is the HTTP control surface.
type Server struct {
	addr string
	ctrl Controller
	ring *logging.Ring
}

// New builds a control server around a controller.
func New(opts Options) *Server {
	return &Server{
		addr: opts.Addr,
		ctrl: opts.Controller,
		ring: opts.Ring,
	}
}

// Handler returns the route table. Exposed separately so tests can
// drive it without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /control", s.handleControl)
	mux.HandleFunc("POST /config", s.handleConfig)
	mux.HandleFunc("POST /scan", s.handleScan)
	mux.HandleFunc("GET /logs", s.handleLogs)
	mux.HandleFunc("POST /test-path", s.handleTestPath)
	mux.HandleFunc("GET /pending", s.handlePending)
	mux.HandleFunc("POST /confirm", s.handleConfirm)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logging.Info("control server listening", logging.Path(s.addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	switch req.Action {
	case "start":
		if err := s.ctrl.Start(); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
	case "stop":
		s.ctrl.Stop()
	default:
		writeError(w, http.StatusBadRequest, "action must be start or stop")
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Policy   policy.Policy  `json:"policy"`
		Mappings []mapping.Rule `json:"mappings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := s.ctrl.ReplaceConfig(req.Policy, req.Mappings); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrFatalConfig) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Force bool `json:"force"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}

	report, err := s.ctrl.Rescan(r.Context(), req.Force, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	n := 100
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}

	entries := []logging.Entry{}
	if s.ring != nil {
		entries = s.ring.Tail(n)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleTestPath(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	writeJSON(w, http.StatusOK, fsutil.ProbeDir(req.Path))
}

type pendingItem struct {
	Kind       string    `json:"kind"`
	SourcePath string    `json:"source_path"`
	TargetPath string    `json:"target_path"`
	DetectedAt time.Time `json:"detected_at"`
}

func (s *Server) handlePending(w http.ResponseWriter, _ *http.Request) {
	intents := s.ctrl.Pending()
	items := make([]pendingItem, 0, len(intents))
	for _, in := range intents {
		items = append(items, pendingItem{
			Kind:       string(in.Kind),
			SourcePath: in.SourcePath,
			TargetPath: in.TargetPath,
			DetectedAt: in.DetectedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": items})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Targets []string `json:"targets"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}
	n := s.ctrl.Confirm(req.Targets...)
	writeJSON(w, http.StatusOK, map[string]int{"confirmed": n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", logging.Err(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
