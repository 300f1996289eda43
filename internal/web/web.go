// Package web serves the current agenda and lets other devices trigger
// refreshes.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/beekhof/mirror-agenda/internal/logging"
	"github.com/beekhof/mirror-agenda/internal/render"
	"github.com/beekhof/mirror-agenda/internal/sync"
)

// Controller is what the HTTP API drives.
type Controller interface {
	Sync(ctx context.Context, trigger sync.Trigger) sync.Display
	SignOut(ctx context.Context) sync.Display
	State() sync.State
}

// Server exposes the agenda over HTTP.
type Server struct {
	ctrl    Controller
	board   *render.Board
	metrics http.Handler
	loc     *time.Location
	logger  zerolog.Logger
	mux     *http.ServeMux
}

// NewServer builds the routes. metrics may be nil to leave /metrics out.
func NewServer(ctrl Controller, board *render.Board, metrics http.Handler, loc *time.Location, logger zerolog.Logger) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		ctrl:    ctrl,
		board:   board,
		metrics: metrics,
		loc:     loc,
		logger:  logging.Component(logger, "web"),
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/agenda", s.handleAgenda)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /api/network", s.handleNetwork)
	s.mux.HandleFunc("POST /api/signout", s.handleSignOut)
	s.mux.HandleFunc("GET /agenda.ics", s.handleICS)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", addr).Msg("starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleAgenda(w http.ResponseWriter, _ *http.Request) {
	d, ok := s.board.Current()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "agenda not loaded yet")
		return
	}
	writeJSON(w, http.StatusOK, newAgendaResponse(d))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	d := s.ctrl.Sync(r.Context(), sync.TriggerManual)
	writeJSON(w, http.StatusOK, newAgendaResponse(d))
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	var trigger sync.Trigger
	switch r.URL.Query().Get("state") {
	case "online":
		trigger = sync.TriggerOnline
	case "offline":
		trigger = sync.TriggerOffline
	default:
		writeError(w, http.StatusBadRequest, "state must be 'online' or 'offline'")
		return
	}
	d := s.ctrl.Sync(r.Context(), trigger)
	writeJSON(w, http.StatusOK, newAgendaResponse(d))
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	d := s.ctrl.SignOut(r.Context())
	writeJSON(w, http.StatusOK, newAgendaResponse(d))
}

type itemResponse struct {
	Summary string    `json:"summary"`
	Label   string    `json:"label"`
	AllDay  bool      `json:"all_day"`
	Start   time.Time `json:"start"`
}

type agendaResponse struct {
	Heading     string         `json:"heading"`
	Title       string         `json:"title"`
	Message     string         `json:"message,omitempty"`
	Footer      string         `json:"footer,omitempty"`
	Source      string         `json:"source"`
	SignedIn    bool           `json:"signed_in"`
	HasData     bool           `json:"has_data"`
	State       string         `json:"state"`
	Trigger     string         `json:"trigger"`
	GeneratedAt time.Time      `json:"generated_at"`
	Items       []itemResponse `json:"items"`
}

func newAgendaResponse(d sync.Display) agendaResponse {
	resp := agendaResponse{
		Heading:     render.Heading(d),
		Title:       string(d.Title),
		Message:     render.Message(d),
		Footer:      render.Footer(d),
		Source:      string(d.Source),
		SignedIn:    d.SignedIn,
		HasData:     d.HasData,
		State:       d.State.String(),
		Trigger:     string(d.Trigger),
		GeneratedAt: d.GeneratedAt,
		Items:       make([]itemResponse, 0, len(d.Items)),
	}
	for _, it := range d.Items {
		resp.Items = append(resp.Items, itemResponse{
			Summary: it.Summary,
			Label:   it.Label,
			AllDay:  it.AllDay,
			Start:   it.Start,
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
