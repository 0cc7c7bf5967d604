package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tmt-csw/gocsw/internal/dispatch"
	"github.com/tmt-csw/gocsw/pkg/protocol"
)

// DashboardData is the top-level template data for the dashboard page.
type DashboardData struct {
	Status     StatusData
	Commands   []CommandData
	Components []protocol.ComponentInfo
	Events     []EventData
}

// StatusData holds the served component's status for the template.
type StatusData struct {
	Component      string
	Prefix         string
	CommandURL     string
	Uptime         string
	StartedAt      time.Time
	Tracked        int
	Pending        int
	ComponentCount int
}

// CommandData is one tracked runId.
type CommandData struct {
	RunID       string
	CommandName string
	Submitted   time.Time
	State       string
	Message     string
}

// EventData holds a single event for the template.
type EventData struct {
	Time   string
	Key    string
	Kind   string
	Params string
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error().Err(err).Str("template", name).Msg("render")
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.render(w, "layout", DashboardData{
		Status:     s.buildStatus(),
		Commands:   s.buildCommands(),
		Components: s.buildComponents(),
		Events:     s.buildRecentEvents(),
	})
}

func (s *Server) handlePartialStatus(w http.ResponseWriter, r *http.Request) {
	s.render(w, "status", s.buildStatus())
}

func (s *Server) handlePartialCommands(w http.ResponseWriter, r *http.Request) {
	s.render(w, "commands", s.buildCommands())
}

func (s *Server) handlePartialComponents(w http.ResponseWriter, r *http.Request) {
	s.render(w, "components", s.buildComponents())
}

func (s *Server) buildStatus() StatusData {
	st := StatusData{
		Component:  s.info.Component,
		Prefix:     s.info.Prefix,
		CommandURL: s.info.CommandURL,
		Uptime:     time.Since(s.info.StartedAt).Truncate(time.Second).String(),
		StartedAt:  s.info.StartedAt,
	}
	for _, c := range s.tracker.Snapshot() {
		st.Tracked++
		if !c.Final {
			st.Pending++
		}
	}
	if s.components != nil {
		st.ComponentCount = s.components.Count()
	}
	return st
}

// buildCommands lists tracked runIds, newest first.
func (s *Server) buildCommands() []CommandData {
	snap := s.tracker.Snapshot()
	out := make([]CommandData, 0, len(snap))
	for i := len(snap) - 1; i >= 0; i-- {
		out = append(out, commandData(snap[i]))
	}
	return out
}

func commandData(st dispatch.Status) CommandData {
	c := CommandData{RunID: st.RunID, CommandName: st.CommandName, Submitted: st.Submitted}
	if st.Response != nil {
		c.State = string(st.Response.Type())
		if b, err := json.Marshal(st.Response); err == nil {
			var m struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(b, &m) == nil {
				c.Message = m.Message
			}
		}
	}
	if !st.Final {
		c.State += " (running)"
	}
	return c
}

func (s *Server) buildComponents() []protocol.ComponentInfo {
	if s.components == nil {
		return nil
	}
	return s.components.Components()
}

func (s *Server) buildRecentEvents() []EventData {
	return s.feed.Latest()
}
