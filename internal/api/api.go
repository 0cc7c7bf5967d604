// Package api serves the cswd control API over a Unix socket.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmt-csw/gocsw/internal/dispatch"
	"github.com/tmt-csw/gocsw/pkg/protocol"
)

// Tracker lists the commands a dispatcher is tracking.
type Tracker interface {
	Snapshot() []dispatch.Status
}

// EventKeys lists the keys present in the event service.
type EventKeys interface {
	Keys(ctx context.Context) ([]string, error)
}

// Components lists announced components.
type Components interface {
	Components() []protocol.ComponentInfo
	Count() int
}

// Info is the static part of the status response.
type Info struct {
	Component  string
	Prefix     string
	CommandURL string
	StartedAt  time.Time
}

// Server serves the control API.
type Server struct {
	socketPath string
	info       Info
	tracker    Tracker
	events     EventKeys
	components Components
	httpServer *http.Server
	logger     zerolog.Logger
}

// New creates an API server. events and components may be nil.
func New(socketPath string, info Info, tracker Tracker, events EventKeys, components Components, logger zerolog.Logger) *Server {
	s := &Server{
		socketPath: socketPath,
		info:       info,
		tracker:    tracker,
		events:     events,
		components: components,
		logger:     logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/commands", s.handleCommands)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/components", s.handleComponents)

	s.httpServer = &http.Server{Handler: mux}
	return s
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening on the Unix socket. Blocks until Shutdown.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return err
	}
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	os.Chmod(s.socketPath, 0600)

	s.logger.Info().Str("socket", s.socketPath).Msg("API server listening")
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tracked := s.tracker.Snapshot()
	pending := 0
	for _, st := range tracked {
		if !st.Final {
			pending++
		}
	}
	resp := protocol.StatusResponse{
		Status:          "ok",
		Uptime:          time.Since(s.info.StartedAt).Truncate(time.Second).String(),
		NATSRunning:     s.events != nil,
		StartedAt:       s.info.StartedAt,
		Component:       s.info.Component,
		Prefix:          s.info.Prefix,
		CommandURL:      s.info.CommandURL,
		TrackedCommands: len(tracked),
		PendingCommands: pending,
	}
	if s.components != nil {
		resp.ComponentCount = s.components.Count()
	}
	writeJSON(w, resp)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	tracked := s.tracker.Snapshot()
	cmds := make([]protocol.CommandInfo, 0, len(tracked))
	for _, st := range tracked {
		info := protocol.CommandInfo{
			RunID:       st.RunID,
			CommandName: st.CommandName,
			Submitted:   st.Submitted,
			Final:       st.Final,
		}
		if st.Response != nil {
			data, err := json.Marshal(st.Response)
			if err != nil {
				s.logger.Error().Err(err).Str("run_id", st.RunID).Msg("encode response")
			} else {
				info.Response = data
			}
		}
		cmds = append(cmds, info)
	}
	writeJSON(w, protocol.CommandsResponse{Commands: cmds})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.Error(w, "event service not enabled", http.StatusServiceUnavailable)
		return
	}
	keys, err := s.events.Keys(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list event keys")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, protocol.EventKeysResponse{Keys: keys})
}

func (s *Server) handleComponents(w http.ResponseWriter, r *http.Request) {
	comps := []protocol.ComponentInfo{}
	if s.components != nil {
		comps = s.components.Components()
	}
	writeJSON(w, protocol.ComponentsResponse{Components: comps})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
