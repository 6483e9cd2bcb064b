// Package ui serves the local browser interface that turns clicks into capture
// flow events. It holds at most one active session.
package ui

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/credential"
	"github.com/zombor/receipt-capture/internal/form"
)

// FlowFactory starts a new capture session. onExit must be called when the
// session is left.
type FlowFactory func(onExit func()) *capture.Flow

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Settings is the read-only information shown on the settings page
type Settings struct {
	Form    form.Config
	Version string
}

// Server handles HTTP requests for the capture UI
type Server struct {
	newFlow   FlowFactory
	store     credential.Store
	settings  Settings
	basicAuth BasicAuth
	mux       *http.ServeMux

	mu      sync.Mutex
	current *capture.Flow
}

// NewServer creates a new Server with default mux
func NewServer(newFlow FlowFactory, store credential.Store, settings Settings, basicAuth BasicAuth) *Server {
	return NewServerWithMux(newFlow, store, settings, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(newFlow FlowFactory, store credential.Store, settings Settings, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		newFlow:   newFlow,
		store:     store,
		settings:  settings,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Receipt Capture"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	// Session events
	s.mux.HandleFunc("GET /api/session/image", s.requireAuth(s.handleImage))
	s.mux.HandleFunc("POST /api/session/camera", s.requireAuth(s.handleTakePhoto))
	s.mux.HandleFunc("POST /api/session/shutter", s.requireAuth(s.handleShutter))
	s.mux.HandleFunc("POST /api/session/upload", s.requireAuth(s.handleUpload))
	s.mux.HandleFunc("PATCH /api/session/draft", s.requireAuth(s.handleEdit))
	s.mux.HandleFunc("POST /api/session/retake", s.requireAuth(s.handleRetake))
	s.mux.HandleFunc("POST /api/session/submit", s.requireAuth(s.handleSubmit))
	s.mux.HandleFunc("POST /api/session/retry", s.requireAuth(s.handleRetry))
	s.mux.HandleFunc("POST /api/session/leave", s.requireAuth(s.handleLeave))
	s.mux.HandleFunc("GET /api/session", s.requireAuth(s.handleGetSession))
	s.mux.HandleFunc("POST /api/session", s.requireAuth(s.handleStartSession))

	// Settings
	s.mux.HandleFunc("PUT /api/settings/key", s.requireAuth(s.handleSaveKey))
	s.mux.HandleFunc("GET /api/settings", s.requireAuth(s.handleGetSettings))

	// Static HTML interface (register last as it's the catch-all)
	s.mux.HandleFunc("GET /index.html", s.requireAuth(s.handleIndex))
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleIndex))
}

// active returns the open session, or nil
func (s *Server) active() *capture.Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.Closed() {
		s.current = nil
	}
	return s.current
}

// start leaves any open session and begins a new one
func (s *Server) start() *capture.Flow {
	s.mu.Lock()
	prev := s.current
	s.mu.Unlock()
	if prev != nil {
		prev.Leave()
	}

	var flow *capture.Flow
	flow = s.newFlow(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.current == flow {
			s.current = nil
		}
	})

	s.mu.Lock()
	s.current = flow
	s.mu.Unlock()
	return flow
}

// activeOrStart returns the open session, starting one if there is none
func (s *Server) activeOrStart() *capture.Flow {
	if flow := s.active(); flow != nil {
		return flow
	}
	return s.start()
}

// eventContext detaches event handling from the request so that a closed
// browser tab does not abort an extraction or submit that was already sent
func eventContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// Close leaves the active session, releasing the camera if held
func (s *Server) Close() {
	if flow := s.active(); flow != nil {
		flow.Leave()
	}
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
