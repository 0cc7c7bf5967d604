// Package assembly implements the reference test component used to
// exercise the command server end to end.
package assembly

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmt-csw/gocsw/internal/dispatch"
	"github.com/tmt-csw/gocsw/pkg/command"
	"github.com/tmt-csw/gocsw/pkg/event"
	"github.com/tmt-csw/gocsw/pkg/eventservice"
	"github.com/tmt-csw/gocsw/pkg/param"
)

const (
	DefaultPrefix = "CSW.pycswTest"
	StateName     = "PyCswState"
)

// Config configures the test assembly.
type Config struct {
	Prefix string
	// Step is the pause between the phases of LongRunningCommand.
	Step time.Duration
}

// Handlers answers the test assembly's commands. Current state is published
// to the event service when a publisher is configured.
type Handlers struct {
	dispatch.BaseHandlers

	prefix    string
	step      time.Duration
	publisher eventservice.Publisher
	logger    zerolog.Logger
}

// New creates the test assembly handlers. pub may be nil.
func New(cfg Config, pub eventservice.Publisher, logger zerolog.Logger) *Handlers {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Step <= 0 {
		cfg.Step = time.Second
	}
	return &Handlers{
		prefix:    cfg.Prefix,
		step:      cfg.Step,
		publisher: pub,
		logger:    logger.With().Str("component", "assembly").Str("prefix", cfg.Prefix).Logger(),
	}
}

// Prefix returns the component prefix current state is published under.
func (h *Handlers) Prefix() string { return h.prefix }

func (h *Handlers) OnSubmit(ctx context.Context, cmd command.ControlCommand) (command.Response, dispatch.Task) {
	h.logger.Info().
		Str("command", cmd.CommandName).
		Str("run_id", cmd.RunID).
		Int("params", len(cmd.ParamSet)).
		Msg("received submit")

	switch cmd.CommandName {
	case "LongRunningCommand":
		return command.Started{RunID: cmd.RunID, Message: "Long running task in progress..."}, h.longRunning(cmd)
	case "SimpleCommand":
		return command.Completed{RunID: cmd.RunID}, nil
	case "ResultCommand":
		return command.Completed{
			RunID:  cmd.RunID,
			Result: command.NewResult(param.New("myValue", param.DoubleKey, param.Scalars[float64]{42})),
		}, nil
	case "ErrorCommand":
		return command.Error{RunID: cmd.RunID, Message: "Error command received"}, nil
	case "InvalidCommand":
		return command.Invalid{
			RunID: cmd.RunID,
			Issue: command.NewIssue(command.MissingKeyIssue, "Missing required key XXX"),
		}, nil
	}
	return dispatch.Unsupported(cmd), nil
}

func (h *Handlers) OnOneway(_ context.Context, cmd command.ControlCommand) command.Response {
	h.logger.Info().
		Str("command", cmd.CommandName).
		Str("run_id", cmd.RunID).
		Int("params", len(cmd.ParamSet)).
		Msg("received oneway")
	return command.Accepted{RunID: cmd.RunID}
}

// longRunning publishes current state twice, one step apart, and completes
// one step later.
func (h *Handlers) longRunning(cmd command.ControlCommand) dispatch.Task {
	return func(ctx context.Context) command.Response {
		for i := 0; i < 3; i++ {
			select {
			case <-time.After(h.step):
			case <-ctx.Done():
				return command.Error{RunID: cmd.RunID, Message: "cancelled: " + ctx.Err().Error()}
			}
			if i < 2 {
				h.publishCurrentState(ctx)
			}
		}
		h.logger.Info().Str("run_id", cmd.RunID).Msg("long running task completed")
		return command.Completed{RunID: cmd.RunID}
	}
}

func (h *Handlers) publishCurrentState(ctx context.Context) {
	if h.publisher == nil {
		return
	}
	e := event.NewSystemEvent(h.prefix, StateName, CurrentState()...)
	if err := h.publisher.Publish(ctx, e); err != nil {
		h.logger.Error().Err(err).Str("key", e.Key()).Msg("publish current state")
	}
}

// CurrentState is the parameter set the assembly reports as its state.
func CurrentState() param.Set {
	return param.Set{
		param.New("IntValue", param.IntKey, param.Scalars[int32]{42}).WithUnits(param.Arcsec),
		param.New("IntArrayValue", param.IntArrayKey, param.Arrays[int32]{{1, 2, 3, 4}, {5, 6, 7, 8}}),
		param.New("FloatArrayValue", param.FloatArrayKey, param.Arrays[float32]{{1.2, 2.3, 3.4}, {5.6, 7.8, 9.1}}).WithUnits(param.Marcsec),
		param.New("IntMatrixValue", param.IntMatrixKey, param.Matrices[int32]{
			{{1, 2, 3, 4}, {5, 6, 7, 8}},
			{{-1, -2, -3, -4}, {-5, -6, -7, -8}},
		}).WithUnits(param.Meter),
	}
}
