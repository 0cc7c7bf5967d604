package dispatch

import (
	"context"

	"github.com/tmt-csw/gocsw/pkg/command"
)

// Task is the background half of a long-running submit. It runs once and
// must return Completed or Error for the same runId. ctx is cancelled when
// the dispatcher closes.
type Task func(ctx context.Context) command.Response

// Handlers is implemented by a component to answer commands.
//
// OnSubmit returns either a terminal response and a nil Task, or Started
// together with the Task that produces the final answer.
type Handlers interface {
	Validate(ctx context.Context, cmd command.ControlCommand) command.Response
	OnSubmit(ctx context.Context, cmd command.ControlCommand) (command.Response, Task)
	OnOneway(ctx context.Context, cmd command.ControlCommand) command.Response
}

// BaseHandlers accepts everything on validate and oneway and rejects every
// submit. Embed it and override what the component supports.
type BaseHandlers struct{}

func (BaseHandlers) Validate(_ context.Context, cmd command.ControlCommand) command.Response {
	return command.Accepted{RunID: cmd.RunID}
}

func (BaseHandlers) OnSubmit(_ context.Context, cmd command.ControlCommand) (command.Response, Task) {
	return Unsupported(cmd), nil
}

func (BaseHandlers) OnOneway(_ context.Context, cmd command.ControlCommand) command.Response {
	return command.Accepted{RunID: cmd.RunID}
}

// Unsupported is the Invalid response for a command name the component does
// not know.
func Unsupported(cmd command.ControlCommand) command.Response {
	return command.Invalid{
		RunID: cmd.RunID,
		Issue: command.NewIssue(command.UnsupportedCommandIssue, "Unknown command: "+cmd.CommandName),
	}
}
