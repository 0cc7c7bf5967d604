package protocol

import (
	"encoding/json"
	"time"
)

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Status          string    `json:"status"`
	Uptime          string    `json:"uptime"`
	NATSRunning     bool      `json:"nats_running"`
	StartedAt       time.Time `json:"started_at"`
	Component       string    `json:"component"`
	Prefix          string    `json:"prefix"`
	CommandURL      string    `json:"command_url"`
	TrackedCommands int       `json:"tracked_commands"`
	PendingCommands int       `json:"pending_commands"`
	ComponentCount  int       `json:"component_count"`
}

// CommandInfo is one entry in the GET /api/v1/commands response.
type CommandInfo struct {
	RunID       string          `json:"run_id"`
	CommandName string          `json:"command_name"`
	Submitted   time.Time       `json:"submitted"`
	Final       bool            `json:"final"`
	Response    json.RawMessage `json:"response,omitempty"`
}

// CommandsResponse is returned by GET /api/v1/commands.
type CommandsResponse struct {
	Commands []CommandInfo `json:"commands"`
}

// EventKeysResponse is returned by GET /api/v1/events.
type EventKeysResponse struct {
	Keys []string `json:"keys"`
}

// ComponentInfo is one entry in the GET /api/v1/components response.
type ComponentInfo struct {
	Registration
	RegisteredAt time.Time `json:"registered_at"`
}

// ComponentsResponse is returned by GET /api/v1/components.
type ComponentsResponse struct {
	Components []ComponentInfo `json:"components"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
