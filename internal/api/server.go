package api

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/wakewatch/internal/db"
	"github.com/banshee-data/wakewatch/internal/httputil"
	"github.com/banshee-data/wakewatch/internal/monitor"
	"github.com/banshee-data/wakewatch/internal/motion"
	"github.com/banshee-data/wakewatch/internal/session"
)

//go:embed status.html
var statusPage embed.FS

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 500
)

// History is the read side of the session store.
type History interface {
	Sessions(ctx context.Context, limit int) ([]session.Record, error)
	Session(ctx context.Context, id uuid.UUID) (session.Record, error)
	Progress(ctx context.Context, id uuid.UUID) ([]session.ProgressPoint, error)
}

// SessionDetail is the body of GET /api/sessions/{id}.
type SessionDetail struct {
	Record   session.Record          `json:"record"`
	Progress []session.ProgressPoint `json:"progress"`
}

// Server exposes the tracked session, the event hub and the history.
type Server struct {
	tracker  *session.Tracker
	hub      *Hub
	history  History
	detector motion.DetectorConfig
}

// NewServer creates a server over the tracker and hub. History is optional.
func NewServer(tracker *session.Tracker, hub *Hub, detector motion.DetectorConfig) *Server {
	return &Server{tracker: tracker, hub: hub, detector: detector}
}

// WithHistory enables the /api/sessions routes.
func (s *Server) WithHistory(h History) *Server {
	s.history = h
	return s
}

// ServeMux returns a mux with every API route registered.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleStatusPage)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/config", s.handleConfig)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
	mux.HandleFunc("GET /api/sessions/{id}/chart", s.handleChart)
	mux.HandleFunc("GET /api/sessions/{id}/plot.png", s.handlePlot)
	return mux
}

// Start serves handler on addr until ctx is done, then shuts down.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("starting HTTP server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
	return nil
}

func (s *Server) currentStatus() session.Status {
	st, ok := s.tracker.Status()
	if !ok {
		return session.Status{State: "idle"}
	}
	return st
}

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	page, err := statusPage.ReadFile("status.html")
	if err != nil {
		httputil.InternalServerError(w, "status page missing")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.currentStatus())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.detector)
}

// handleEvents streams hub events, starting with a status snapshot so a new
// client does not wait for the next frame to draw something.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, events := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	stream, err := httputil.NewEventStream(w)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if err := stream.Send("status", s.currentStatus()); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := stream.Send(e.Kind, e); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "history disabled")
		return
	}
	limit := defaultSessionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSessionLimit {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	recs, err := s.history.Sessions(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to list sessions")
		log.Printf("list sessions: %v", err)
		return
	}
	if recs == nil {
		recs = []session.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, recs)
}

// loadSession resolves {id} into a record and its timeline, writing the
// error response itself when it returns false.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (SessionDetail, bool) {
	if s.history == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "history disabled")
		return SessionDetail{}, false
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httputil.BadRequest(w, "invalid session id")
		return SessionDetail{}, false
	}
	rec, err := s.history.Session(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, "session not found")
		return SessionDetail{}, false
	}
	if err != nil {
		httputil.InternalServerError(w, "failed to load session")
		log.Printf("load session %s: %v", id, err)
		return SessionDetail{}, false
	}
	points, err := s.history.Progress(r.Context(), id)
	if err != nil {
		httputil.InternalServerError(w, "failed to load progress")
		log.Printf("load progress %s: %v", id, err)
		return SessionDetail{}, false
	}
	if points == nil {
		points = []session.ProgressPoint{}
	}
	return SessionDetail{Record: rec, Progress: points}, true
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	d, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	d, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := monitor.RenderProgressChart(&buf, d.Record, d.Progress); err != nil {
		httputil.InternalServerError(w, "failed to render chart")
		log.Printf("render chart %s: %v", d.Record.ID, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	d, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := monitor.WriteProgressPlot(&buf, d.Record, d.Progress, monitor.PlotWidth, monitor.PlotHeight); err != nil {
		httputil.InternalServerError(w, "failed to render plot")
		log.Printf("render plot %s: %v", d.Record.ID, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = buf.WriteTo(w)
}
