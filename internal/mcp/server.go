package mcp

import (
	"context"
	"fmt"
	"log"
	"os"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/tmt-csw/gocsw/internal/natsserver"
	"github.com/tmt-csw/gocsw/pkg/client"
	"github.com/tmt-csw/gocsw/pkg/command"
	"github.com/tmt-csw/gocsw/pkg/event"
	"github.com/tmt-csw/gocsw/pkg/eventservice"
)

// CommandClient sends commands to one component. Implemented by
// *client.Client.
type CommandClient interface {
	Send(ctx context.Context, verb command.Verb, cmd command.ControlCommand) (command.Response, error)
	QueryFinal(ctx context.Context, runID string) (command.Response, error)
	SubmitAndWait(ctx context.Context, cmd command.ControlCommand) (command.Response, error)
}

// Events reads and writes the event service.
type Events interface {
	Publish(ctx context.Context, e event.Event) error
	Get(ctx context.Context, key string) (event.Event, error)
}

// MCPServer exposes CSW commands and events to AI assistants via MCP.
type MCPServer struct {
	cfg      Config
	api      client.DaemonAPI
	commands CommandClient
	events   Events
	prefix   string
	logger   zerolog.Logger
}

// New creates an MCPServer. Call Run() to start serving on stdio.
func New(cfg Config, logger zerolog.Logger) *MCPServer {
	return &MCPServer{
		cfg:      cfg,
		api:      client.NewDaemonClient(cfg.Daemon.Socket),
		commands: client.New(cfg.Component.URL, cfg.Component.Type, cfg.Component.Name),
		prefix:   cfg.Component.Prefix,
		logger:   logger.With().Str("component", "mcp").Logger(),
	}
}

// SetDaemonAPI overrides the daemon API client. Intended for testing with a mock.
func (s *MCPServer) SetDaemonAPI(api client.DaemonAPI) {
	s.api = api
}

// Run connects to the event service, registers MCP tools, and serves on
// stdio. It blocks until stdin is closed or the context is cancelled.
func (s *MCPServer) Run(ctx context.Context) error {
	conn, err := natsserver.Dial(s.cfg.NATS.URL, s.cfg.NATS.Token, s.logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	svc, err := eventservice.Open(ctx, conn.JetStream(), eventservice.Config{Bucket: s.cfg.Events.Bucket}, s.logger)
	if err != nil {
		return fmt.Errorf("open event service: %w", err)
	}
	s.events = svc

	srv := mcpserver.NewMCPServer(
		"csw",
		"0.1.0",
		mcpserver.WithRecovery(),
	)

	s.registerTools(srv)

	stdio := mcpserver.NewStdioServer(srv)
	stdio.SetErrorLogger(log.New(os.Stderr, "", log.LstdFlags))

	s.logger.Info().Msg("MCP server starting on stdio")
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// commandOptions are shared by the three command tools.
func commandOptions(desc string) []mcplib.ToolOption {
	return []mcplib.ToolOption{
		mcplib.WithDescription(desc),
		mcplib.WithString("command_name", mcplib.Required(), mcplib.Description("Command name (e.g. \"SimpleCommand\", \"LongRunningCommand\")")),
		mcplib.WithString("kind", mcplib.Enum("Setup", "Observe", "Wait"), mcplib.DefaultString("Setup"), mcplib.Description("Command kind")),
		mcplib.WithString("prefix", mcplib.Description("Source prefix of the sender (subsystem.component); defaults to the configured prefix")),
		mcplib.WithString("obs_id", mcplib.Description("Optional observation id")),
		mcplib.WithString("run_id", mcplib.Description("Run id; a new UUID is generated when omitted")),
		mcplib.WithArray("params", mcplib.Items(map[string]any{"type": "object"}),
			mcplib.Description("Parameters, each {\"keyName\":..., \"keyType\":\"IntKey\", \"values\":[...], \"units\":...}")),
	}
}

func (s *MCPServer) registerTools(srv *mcpserver.MCPServer) {
	srv.AddTool(
		mcplib.NewTool("get_status",
			mcplib.WithDescription("Get cswd daemon status including uptime, component, and tracked command counts"),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetStatus,
	)

	srv.AddTool(
		mcplib.NewTool("list_commands",
			mcplib.WithDescription("List the submitted commands the component is tracking, with their latest response"),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleListCommands,
	)

	srv.AddTool(
		mcplib.NewTool("list_components",
			mcplib.WithDescription("List components that announced a command server connection"),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleListComponents,
	)

	submit := append(commandOptions("Submit a command. Returns the immediate response; long running commands answer Started and can be waited on with query_final"),
		mcplib.WithBoolean("wait", mcplib.DefaultBool(false), mcplib.Description("Wait for the final response when the command is Started")))
	srv.AddTool(mcplib.NewTool("submit_command", submit...), s.handleSubmit)

	srv.AddTool(
		mcplib.NewTool("oneway_command", commandOptions("Send a command without tracking its completion")...),
		s.handleOneway,
	)

	srv.AddTool(
		mcplib.NewTool("validate_command", append(commandOptions("Ask the component whether it would accept a command, without executing it"),
			mcplib.WithReadOnlyHintAnnotation(true))...),
		s.handleValidate,
	)

	srv.AddTool(
		mcplib.NewTool("query_final",
			mcplib.WithDescription("Wait for the final response of a submitted command"),
			mcplib.WithString("run_id", mcplib.Required(), mcplib.Description("Run id of the submitted command")),
			mcplib.WithNumber("timeout_seconds", mcplib.DefaultNumber(30), mcplib.Min(1), mcplib.Description("How long to wait")),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleQueryFinal,
	)

	srv.AddTool(
		mcplib.NewTool("get_event",
			mcplib.WithDescription("Get the latest event published under a key (source.eventName). Returns the invalid event (eventId \"-1\") when nothing was published"),
			mcplib.WithString("key", mcplib.Required(), mcplib.Description("Event key, e.g. \"CSW.pycswTest.PyCswState\"")),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetEvent,
	)

	srv.AddTool(
		mcplib.NewTool("publish_event",
			mcplib.WithDescription("Publish a system or observe event to the event service"),
			mcplib.WithString("source", mcplib.Required(), mcplib.Description("Source prefix (subsystem.component)")),
			mcplib.WithString("event_name", mcplib.Required(), mcplib.Description("Event name")),
			mcplib.WithString("kind", mcplib.Enum("SystemEvent", "ObserveEvent"), mcplib.DefaultString("SystemEvent"), mcplib.Description("Event kind")),
			mcplib.WithArray("params", mcplib.Items(map[string]any{"type": "object"}), mcplib.Description("Parameters in the same shape as for commands")),
		),
		s.handlePublishEvent,
	)
}
