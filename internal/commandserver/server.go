// Package commandserver binds a component's dispatcher to HTTP using the
// CSW command routes.
package commandserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tmt-csw/gocsw/internal/dispatch"
	"github.com/tmt-csw/gocsw/pkg/command"
	"github.com/tmt-csw/gocsw/pkg/event"
	"github.com/tmt-csw/gocsw/pkg/eventservice"
	"github.com/tmt-csw/gocsw/pkg/protocol"
)

const maxBodyBytes = 1 << 20

// Dispatcher answers commands. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, verb command.Verb, cmd command.ControlCommand) (command.Response, error)
	QueryFinal(ctx context.Context, runID string) (command.Response, error)
}

// Registrar makes the server's connection known to peers.
type Registrar interface {
	Register(ctx context.Context, reg protocol.Registration) error
	Unregister(ctx context.Context, reg protocol.Registration) error
}

// Config identifies the component served and where to listen.
type Config struct {
	Listen        string
	ComponentType string
	ComponentName string
	Prefix        string
}

// Server serves one component's commands over HTTP.
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	events     eventservice.Subscriber
	gatherer   prometheus.Gatherer
	registrar  Registrar
	httpServer *http.Server
	ln         net.Listener
	logger     zerolog.Logger

	// base is the parent of every request context. Shutdown cancels it.
	base     context.Context
	stopBase context.CancelFunc
}

// Option configures optional collaborators.
type Option func(*Server)

// WithEvents enables the current state stream.
func WithEvents(sub eventservice.Subscriber) Option {
	return func(s *Server) { s.events = sub }
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithRegistrar registers the server while it is serving.
func WithRegistrar(r Registrar) Option {
	return func(s *Server) { s.registrar = r }
}

// New creates a command server for d.
func New(cfg Config, d Dispatcher, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: d,
		logger:     logger.With().Str("component", "commandserver").Str("name", cfg.ComponentName).Logger(),
	}
	s.base, s.stopBase = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(protocol.RouteCommand, s.handleCommand)
	mux.HandleFunc(protocol.RouteQueryFinal, s.handleQueryFinal)
	mux.HandleFunc(protocol.RouteCurrentState, s.handleCurrentState)
	if s.gatherer != nil {
		mux.Handle(protocol.RouteMetrics, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Handler:           s.headers(mux),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.base },
	}
	return s
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) headers(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

// Listen binds the TCP listener so Addr is known before Serve.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	s.ln = ln
	return nil
}

// Addr is the bound address, or "" before Listen.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// URL is the base URL clients use to reach the server.
func (s *Server) URL() string { return "http://" + s.Addr() }

func (s *Server) registration() protocol.Registration {
	return protocol.Registration{
		Name:           s.cfg.ComponentName,
		ComponentType:  s.cfg.ComponentType,
		ConnectionType: "http",
		Prefix:         s.cfg.Prefix,
		URI:            s.URL(),
	}
}

// Start listens if needed and serves until Shutdown. Blocks.
func (s *Server) Start() error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	if s.registrar != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.registrar.Register(ctx, s.registration())
		cancel()
		if err != nil {
			s.logger.Warn().Err(err).Msg("registration failed")
		}
	}
	s.logger.Info().Str("listen", s.Addr()).Msg("command server listening")
	if err := s.httpServer.Serve(s.ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown unregisters, ends pending queryFinal waits and current state
// streams, and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.registrar != nil && s.ln != nil {
		if err := s.registrar.Unregister(ctx, s.registration()); err != nil {
			s.logger.Warn().Err(err).Msg("unregister failed")
		}
	}
	s.stopBase()
	return s.httpServer.Shutdown(ctx)
}

// addressed reports whether the request targets this component. An empty
// configured name accepts any.
func (s *Server) addressed(r *http.Request) bool {
	if s.cfg.ComponentName != "" && r.PathValue("componentName") != s.cfg.ComponentName {
		return false
	}
	return s.cfg.ComponentType == "" || strings.EqualFold(r.PathValue("componentType"), s.cfg.ComponentType)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if !s.addressed(r) {
		writeError(w, http.StatusNotFound, "no such component")
		return
	}
	verb, err := command.ParseVerb(r.PathValue("method"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	cmd, err := command.Decode(body)
	if err != nil {
		s.logger.Warn().Err(err).Str("verb", string(verb)).Msg("rejected malformed command")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.dispatcher.Dispatch(r.Context(), verb, cmd)
	switch {
	case errors.Is(err, dispatch.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQueryFinal(w http.ResponseWriter, r *http.Request) {
	if !s.addressed(r) {
		writeError(w, http.StatusNotFound, "no such component")
		return
	}
	resp, err := s.dispatcher.QueryFinal(r.Context(), r.PathValue("runId"))
	switch {
	case errors.Is(err, dispatch.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil && s.base.Err() != nil:
		writeError(w, http.StatusServiceUnavailable, "server shutting down")
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The client went away or gave up.
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCurrentState streams the component's events as server-sent events.
func (s *Server) handleCurrentState(w http.ResponseWriter, r *http.Request) {
	if !s.addressed(r) {
		writeError(w, http.StatusNotFound, "no such component")
		return
	}
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event service not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch := make(chan []byte, 16)
	sub, err := s.events.SubscribePattern(r.Context(), s.cfg.Prefix+".*", func(e event.Event) {
		data, err := json.Marshal(e)
		if err != nil {
			s.logger.Warn().Err(err).Msg("encode current state")
			return
		}
		select {
		case ch <- data:
		default:
			s.logger.Warn().Str("key", e.Key()).Msg("current state subscriber is slow, dropping event")
		}
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer sub.Stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case data := <-ch:
			fmt.Fprintf(w, "event: currentState\ndata: %s\n\n", data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeJSON encodes v before writing the status, so an unencodable value
// becomes a 500 rather than an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(protocol.ErrorResponse{Error: "encode response: " + err.Error()})
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: msg})
}
