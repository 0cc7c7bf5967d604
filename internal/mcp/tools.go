package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/tmt-csw/gocsw/pkg/command"
	"github.com/tmt-csw/gocsw/pkg/event"
	"github.com/tmt-csw/gocsw/pkg/param"
)

func (s *MCPServer) handleGetStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	status, err := s.api.GetStatus(ctx)
	if err != nil {
		return textError("failed to get status: " + err.Error()), nil
	}
	return textJSON(status)
}

func (s *MCPServer) handleListCommands(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	cmds, err := s.api.GetCommands(ctx)
	if err != nil {
		return textError("failed to list commands: " + err.Error()), nil
	}
	return textJSON(cmds.Commands)
}

func (s *MCPServer) handleListComponents(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	comps, err := s.api.GetComponents(ctx)
	if err != nil {
		return textError("failed to list components: " + err.Error()), nil
	}
	return textJSON(comps.Components)
}

func (s *MCPServer) handleSubmit(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	cmd, errResult := s.commandFromRequest(req)
	if errResult != nil {
		return errResult, nil
	}
	var (
		resp command.Response
		err  error
	)
	if req.GetBool("wait", false) {
		resp, err = s.commands.SubmitAndWait(ctx, cmd)
	} else {
		resp, err = s.commands.Send(ctx, command.Submit, cmd)
	}
	if err != nil {
		return textError("failed to submit command: " + err.Error()), nil
	}
	return textJSON(resp)
}

func (s *MCPServer) handleOneway(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return s.send(ctx, req, command.Oneway)
}

func (s *MCPServer) handleValidate(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return s.send(ctx, req, command.Validate)
}

func (s *MCPServer) send(ctx context.Context, req mcplib.CallToolRequest, verb command.Verb) (*mcplib.CallToolResult, error) {
	cmd, errResult := s.commandFromRequest(req)
	if errResult != nil {
		return errResult, nil
	}
	resp, err := s.commands.Send(ctx, verb, cmd)
	if err != nil {
		return textError(fmt.Sprintf("failed to %s command: %v", verb, err)), nil
	}
	return textJSON(resp)
}

func (s *MCPServer) handleQueryFinal(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return textError("missing required parameter: run_id"), nil
	}
	timeout := time.Duration(req.GetFloat("timeout_seconds", 30) * float64(time.Second))
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.commands.QueryFinal(ctx, runID)
	if err != nil {
		return textError("failed to query final response: " + err.Error()), nil
	}
	return textJSON(resp)
}

func (s *MCPServer) handleGetEvent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return textError("missing required parameter: key"), nil
	}
	e, err := s.events.Get(ctx, key)
	if err != nil {
		return textError("failed to get event: " + err.Error()), nil
	}
	return textJSON(e)
}

func (s *MCPServer) handlePublishEvent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return textError("missing required parameter: source"), nil
	}
	name, err := req.RequireString("event_name")
	if err != nil {
		return textError("missing required parameter: event_name"), nil
	}
	params, err := paramsFromRequest(req)
	if err != nil {
		return textError("invalid params: " + err.Error()), nil
	}

	var e event.Event
	switch kind := req.GetString("kind", string(event.SystemEvent)); event.Kind(kind) {
	case event.SystemEvent:
		e = event.NewSystemEvent(source, name, params...)
	case event.ObserveEvent:
		e = event.NewObserveEvent(source, name, params...)
	default:
		return textError("unknown event kind: " + kind), nil
	}

	if err := s.events.Publish(ctx, e); err != nil {
		return textError("failed to publish event: " + err.Error()), nil
	}
	return textResult(fmt.Sprintf(`{"status":"published","event_id":"%s","key":"%s"}`, e.EventID, e.Key())), nil
}

// commandFromRequest builds the command described by the tool arguments.
// A non-nil result is the error to return to the caller.
func (s *MCPServer) commandFromRequest(req mcplib.CallToolRequest) (command.ControlCommand, *mcplib.CallToolResult) {
	name, err := req.RequireString("command_name")
	if err != nil {
		return command.ControlCommand{}, textError("missing required parameter: command_name")
	}
	params, err := paramsFromRequest(req)
	if err != nil {
		return command.ControlCommand{}, textError("invalid params: " + err.Error())
	}
	prefix := req.GetString("prefix", s.prefix)
	runID := req.GetString("run_id", "")
	if runID == "" {
		runID = command.NewRunID()
	}

	var cmd command.ControlCommand
	switch kind := command.Kind(req.GetString("kind", string(command.Setup))); kind {
	case command.Setup:
		cmd = command.NewSetup(prefix, name, runID, params...)
	case command.Observe:
		cmd = command.NewObserve(prefix, name, runID, params...)
	case command.Wait:
		cmd = command.NewWait(prefix, name, runID, params...)
	default:
		return command.ControlCommand{}, textError("unknown command kind: " + string(kind))
	}
	if obsID := req.GetString("obs_id", ""); obsID != "" {
		cmd = cmd.WithObsID(obsID)
	}
	return cmd, nil
}

// paramsFromRequest decodes the "params" argument through the parameter
// codec, so the tool accepts exactly the wire shape.
func paramsFromRequest(req mcplib.CallToolRequest) (param.Set, error) {
	raw, ok := req.GetArguments()["params"]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var set param.Set
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	return set, nil
}

// textResult returns a successful text result.
func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

// textError returns an error text result.
func textError(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// textJSON marshals v to indented JSON and returns it as a text result.
func textJSON(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return textError("failed to marshal response: " + err.Error()), nil
	}
	return textResult(string(data)), nil
}
