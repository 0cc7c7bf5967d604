package protocol

import (
	"fmt"
	"net/url"
)

// Component types used in command routes.
const (
	ComponentAssembly  = "Assembly"
	ComponentHCD       = "HCD"
	ComponentService   = "Service"
	ComponentSequencer = "Sequencer"
	ComponentContainer = "Container"
)

// Route patterns served by the command server.
const (
	RouteCommand      = "POST /command/{componentType}/{componentName}/{method}"
	RouteQueryFinal   = "GET /command/{componentType}/{componentName}/{runId}"
	RouteCurrentState = "GET /command/{componentType}/{componentName}/current-state/subscribe"
	RouteMetrics      = "GET /metrics"
)

// CommandPath is the URL path for sending a command with the given verb.
func CommandPath(componentType, componentName, verb string) string {
	return fmt.Sprintf("/command/%s/%s/%s",
		url.PathEscape(componentType), url.PathEscape(componentName), url.PathEscape(verb))
}

// QueryFinalPath is the URL path for waiting on a submitted command.
func QueryFinalPath(componentType, componentName, runID string) string {
	return fmt.Sprintf("/command/%s/%s/%s",
		url.PathEscape(componentType), url.PathEscape(componentName), url.PathEscape(runID))
}

// CurrentStatePath is the URL path of the current state event stream.
func CurrentStatePath(componentType, componentName string) string {
	return fmt.Sprintf("/command/%s/%s/current-state/subscribe",
		url.PathEscape(componentType), url.PathEscape(componentName))
}
