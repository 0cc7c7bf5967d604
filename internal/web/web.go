// Package web serves the cswd dashboard: component status, tracked runIds,
// announced components and a live view of the event service.
package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmt-csw/gocsw/internal/api"
	"github.com/tmt-csw/gocsw/pkg/event"
	"github.com/tmt-csw/gocsw/pkg/eventservice"
)

//go:embed templates
var content embed.FS

// AllEvents is the event service pattern the dashboard follows.
const AllEvents = ">"

// Config holds dashboard settings passed to New.
type Config struct {
	Listen   string
	Username string // HTTP Basic Auth username (empty = no auth).
	Password string // HTTP Basic Auth password (empty = no auth).
}

// Server serves the dashboard on a TCP port.
type Server struct {
	listen     string
	info       api.Info
	tracker    api.Tracker
	components api.Components
	events     eventservice.Subscriber
	httpServer *http.Server
	logger     zerolog.Logger
	templates  *template.Template
	feed       *EventFeed
	username   string
	password   string

	mu     sync.Mutex
	cancel context.CancelFunc
	sub    *eventservice.Subscription

	// base is the parent of every request context. Shutdown cancels it.
	base     context.Context
	stopBase context.CancelFunc
}

// New creates a dashboard server. components and events may be nil.
// If cfg.Username and cfg.Password are non-empty, HTTP Basic Auth is required for all routes.
func New(cfg Config, info api.Info, tracker api.Tracker, components api.Components,
	events eventservice.Subscriber, logger zerolog.Logger) *Server {

	s := &Server{
		listen:     cfg.Listen,
		info:       info,
		tracker:    tracker,
		components: components,
		events:     events,
		logger:     logger.With().Str("component", "web").Logger(),
		feed:       NewEventFeed(eventHistory),
		username:   cfg.Username,
		password:   cfg.Password,
	}

	s.base, s.stopBase = context.WithCancel(context.Background())

	funcMap := template.FuncMap{
		"ago": func(t time.Time) string { return time.Since(t).Truncate(time.Second).String() },
	}
	tmplFS, _ := fs.Sub(content, "templates")
	s.templates = template.Must(
		template.New("").Funcs(funcMap).ParseFS(tmplFS, "*.html", "partials/*.html"),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /web", s.handleDashboard)
	mux.HandleFunc("GET /web/partials/status", s.handlePartialStatus)
	mux.HandleFunc("GET /web/partials/commands", s.handlePartialCommands)
	mux.HandleFunc("GET /web/partials/components", s.handlePartialComponents)
	mux.HandleFunc("GET /web/events/stream", s.handleEventStream)

	s.httpServer = &http.Server{
		Handler:           s.securityMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.base },
	}
	return s
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// securityMiddleware adds security headers and optional HTTP Basic Auth to all responses.
func (s *Server) securityMiddleware(next http.Handler) http.Handler {
	authEnabled := s.username != "" && s.password != ""
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")

		if authEnabled {
			user, pass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte(s.username)) != 1 ||
				subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="csw"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// WatchEvents feeds every event service update into the dashboard until
// Shutdown. It is a no-op without an event service.
func (s *Server) WatchEvents() error {
	if s.events == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := s.events.SubscribePattern(ctx, AllEvents, func(e event.Event) {
		s.feed.Add(eventData(e))
	})
	if err != nil {
		cancel()
		return err
	}
	s.mu.Lock()
	s.cancel, s.sub = cancel, sub
	s.mu.Unlock()
	return nil
}

// Start begins listening on TCP. Blocks until Shutdown or error.
func (s *Server) Start() error {
	if err := s.WatchEvents(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return err
	}
	s.logger.Info().Str("listen", s.listen).Msg("web UI listening")
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the event feed, ends open event streams and gracefully
// stops the web server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.sub != nil {
		s.sub.Stop()
		s.cancel()
		s.sub = nil
	}
	s.mu.Unlock()
	s.stopBase()
	return s.httpServer.Shutdown(ctx)
}
