// Package web exposes the HTTP surface: today's events as JSON, the same
// set as an iCalendar feed, health and Prometheus metrics.
package web

import (
	"encoding/json"
	"net/http"

	"whatson/internal/feed"
	appLog "whatson/internal/log"
	"whatson/internal/metrics"
	"whatson/internal/model"
	"whatson/internal/pipeline"
)

// Server routes HTTP requests to the ingestion pipeline.
type Server struct {
	pipe *pipeline.Pipeline
	mux  *http.ServeMux
}

// NewServer constructs a new Server around the given pipeline.
func NewServer(pipe *pipeline.Pipeline) *Server {
	s := &Server{
		pipe: pipe,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/events", s.handleEvents)
	s.mux.HandleFunc("/events.ics", s.handleFeed)
	s.mux.Handle("/metrics", metrics.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /events.
type eventsResponse struct {
	Events []model.Event `json:"events"`
}

// handleEvents answers "what is happening today". Method-agnostic, no
// parameters. On a cache miss the fresh result is written to the client
// first and only then persisted in the background, so the caller never
// waits on cache writes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, stamp, hit, err := s.pipe.Today(r.Context())
	if err != nil {
		appLog.Error("events request failed", err, "partition", stamp.Formatted)
		writeError(w, http.StatusInternalServerError, "Server error: "+err.Error())
		return
	}

	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})

	if !hit {
		s.pipe.PersistAsync(stamp, events)
	}
}

// handleFeed serves the same daily result as an iCalendar document, going
// through the identical cache-first path.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	events, stamp, hit, err := s.pipe.Today(r.Context())
	if err != nil {
		appLog.Error("feed request failed", err, "partition", stamp.Formatted)
		writeError(w, http.StatusInternalServerError, "Server error: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(feed.Build(events)))

	if !hit {
		s.pipe.PersistAsync(stamp, events)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
