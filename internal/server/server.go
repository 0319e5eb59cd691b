// Package server provides the HTTP server for the Agni detection appliance.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/agni/internal/app"
	"github.com/ayusman/agni/internal/server/api"
)

// DefaultEventsPerSecond caps how many events each websocket client receives.
const DefaultEventsPerSecond = 10

// Config holds the server configuration.
type Config struct {
	StaticDir string
	// MediaDir, when set, is served under /media/ for locally stored captures.
	MediaDir string
	// App is optional; without it only health and static files are served.
	App             *app.App
	EventsPerSecond float64
}

// Server represents the HTTP server for the Agni application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	hub    *EventHub
	stream *StreamHandler
}

// New creates a new Server with the given configuration. Event and preview
// listeners are registered on the app here.
func New(config Config) *Server {
	if config.EventsPerSecond <= 0 {
		config.EventsPerSecond = DefaultEventsPerSecond
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if a := s.config.App; a != nil {
		s.mux.HandleFunc("/api/status", s.handleStatus)
		s.mux.Handle("/api/settings", api.NewSettingsHandler(a))
		if a.Store() != nil {
			s.mux.Handle("/api/captures", api.NewCapturesHandler(a.Store(), a.Device().ID()))
		}
		s.mux.Handle("/metrics", a.Metrics().Handler())

		s.hub = NewEventHub(s.config.EventsPerSecond)
		a.OnEvent(s.hub.Publish)
		s.mux.Handle("/api/events", s.hub)

		s.stream = NewStreamHandler()
		a.OnFrame(s.stream.Update)
		s.mux.Handle("/api/stream", s.stream)
	}

	if s.config.MediaDir != "" {
		media := http.FileServer(http.Dir(s.config.MediaDir))
		s.mux.Handle("/media/", http.StripPrefix("/media/", media))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Events returns the websocket hub, nil when no app is configured.
func (s *Server) Events() *EventHub {
	return s.hub
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}
	if s.config.App != nil {
		response["running"] = s.config.App.Status().Running
	}

	writeJSON(w, response)
}

// handleStatus handles GET requests to /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.config.App.Status())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

// HTTPServer wraps s in an http.Server so the caller can shut it down.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
