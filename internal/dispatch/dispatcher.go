// Package dispatch routes decoded commands to a component's handlers,
// enforces which responses each verb may return, and tracks long-running
// submits by runId until their final response is known.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmt-csw/gocsw/pkg/command"
)

var (
	// ErrNotFound is returned by QueryFinal for a runId that was never submitted.
	ErrNotFound = errors.New("dispatch: runId not found")
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("dispatch: dispatcher closed")
)

// DefaultRetention is how long a final response stays queryable.
const DefaultRetention = time.Hour

// entry is the correlation record for one submitted runId. done is closed
// exactly once, after resp holds the final response.
type entry struct {
	commandName string
	submitted   time.Time
	finished    time.Time
	resp        command.Response
	done        chan struct{}
}

func (e *entry) resolved() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Dispatcher answers commands for a single component.
type Dispatcher struct {
	handlers Handlers
	metrics  *Metrics
	logger   zerolog.Logger

	retention time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records dispatch counters in m.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithRetention forgets runIds whose final response is older than r.
// Zero keeps them for the dispatcher's lifetime.
func WithRetention(r time.Duration) Option {
	return func(d *Dispatcher) { d.retention = r }
}

// New creates a Dispatcher for handlers. Final responses are kept for
// DefaultRetention unless WithRetention says otherwise.
func New(handlers Handlers, logger zerolog.Logger, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		handlers:  handlers,
		logger:    logger.With().Str("component", "dispatch").Logger(),
		retention: DefaultRetention,
		entries:   make(map[string]*entry),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.retention > 0 {
		d.wg.Add(1)
		go d.evictLoop()
	}
	return d
}

// evictLoop sweeps the table twice per retention period until Close.
func (d *Dispatcher) evictLoop() {
	defer d.wg.Done()
	every := d.retention / 2
	if every <= 0 {
		every = d.retention
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case now := <-ticker.C:
			if n := d.evict(now); n > 0 {
				d.logger.Debug().Int("evicted", n).Msg("forgot finished commands")
			}
		}
	}
}

// evict drops entries that were final for at least the retention period
// at now, and returns how many it dropped. Running commands are kept.
func (d *Dispatcher) evict(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for id, e := range d.entries {
		if e.resolved() && now.Sub(e.finished) >= d.retention {
			delete(d.entries, id)
			n++
		}
	}
	return n
}

// Dispatch answers cmd received on verb. The returned error is non-nil only
// for an unknown verb or a closed dispatcher; everything a handler does,
// including misbehaving, is expressed as a response.
func (d *Dispatcher) Dispatch(ctx context.Context, verb command.Verb, cmd command.ControlCommand) (command.Response, error) {
	var resp command.Response
	switch verb {
	case command.Validate:
		resp = d.validate(ctx, cmd)
	case command.Oneway:
		resp = d.oneway(ctx, cmd)
	case command.Submit:
		var err error
		if resp, err = d.submit(ctx, cmd); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", command.ErrUnsupportedVerb, verb)
	}
	d.metrics.answered(verb, resp)
	d.logger.Debug().
		Str("verb", string(verb)).
		Str("command", cmd.CommandName).
		Str("run_id", cmd.RunID).
		Str("response", string(resp.Type())).
		Msg("command answered")
	return resp, nil
}

func (d *Dispatcher) validate(ctx context.Context, cmd command.ControlCommand) command.Response {
	resp, _ := d.call(command.Validate, cmd, func() (command.Response, Task) {
		return d.handlers.Validate(ctx, cmd), nil
	})
	return resp
}

func (d *Dispatcher) oneway(ctx context.Context, cmd command.ControlCommand) command.Response {
	if resp := d.validate(ctx, cmd); resp.Type() != command.TypeAccepted {
		return resp
	}
	resp, _ := d.call(command.Oneway, cmd, func() (command.Response, Task) {
		return d.handlers.OnOneway(ctx, cmd), nil
	})
	return resp
}

func (d *Dispatcher) submit(ctx context.Context, cmd command.ControlCommand) (command.Response, error) {
	e := &entry{commandName: cmd.CommandName, submitted: time.Now(), done: make(chan struct{})}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	if _, taken := d.entries[cmd.RunID]; taken {
		d.mu.Unlock()
		d.logger.Warn().Str("run_id", cmd.RunID).Msg("runId already in use")
		return command.Invalid{
			RunID: cmd.RunID,
			Issue: command.NewIssue(command.IdNotAvailableIssue, "runId "+cmd.RunID+" is already in use"),
		}, nil
	}
	d.entries[cmd.RunID] = e
	d.mu.Unlock()

	if resp := d.validate(ctx, cmd); resp.Type() != command.TypeAccepted {
		d.resolve(cmd.RunID, e, resp)
		return resp, nil
	}

	resp, task := d.call(command.Submit, cmd, func() (command.Response, Task) {
		return d.handlers.OnSubmit(ctx, cmd)
	})
	if task == nil {
		d.resolve(cmd.RunID, e, resp)
		return resp, nil
	}

	d.mu.Lock()
	e.resp = resp
	if d.closed {
		d.mu.Unlock()
		d.resolve(cmd.RunID, e, command.Error{RunID: cmd.RunID, Message: "component is shutting down"})
		return resp, nil
	}
	d.wg.Add(1)
	d.mu.Unlock()

	d.metrics.taskStarted()
	go d.run(cmd, e, task)
	return resp, nil
}

// call invokes a handler, turning a panic or an illegal result into Error.
func (d *Dispatcher) call(verb command.Verb, cmd command.ControlCommand, fn func() (command.Response, Task)) (resp command.Response, task Task) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("verb", string(verb)).
				Str("command", cmd.CommandName).
				Str("run_id", cmd.RunID).
				Interface("panic", r).
				Msg("handler panicked")
			resp, task = command.Error{RunID: cmd.RunID, Message: fmt.Sprintf("handler panicked: %v", r)}, nil
		}
	}()

	resp, task = fn()
	if err := command.CheckImmediate(verb, cmd.RunID, resp, task != nil); err != nil {
		return d.violation(verb, cmd, err), nil
	}
	return resp, task
}

func (d *Dispatcher) violation(verb command.Verb, cmd command.ControlCommand, err error) command.Response {
	d.metrics.violation(verb)
	d.logger.Error().
		Err(err).
		Str("verb", string(verb)).
		Str("command", cmd.CommandName).
		Str("run_id", cmd.RunID).
		Msg("handler response replaced")
	return command.Error{RunID: cmd.RunID, Message: err.Error()}
}

func (d *Dispatcher) run(cmd command.ControlCommand, e *entry, task Task) {
	defer d.wg.Done()
	start := time.Now()

	resp := func() (resp command.Response) {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().Str("run_id", cmd.RunID).Interface("panic", r).Msg("task panicked")
				resp = command.Error{RunID: cmd.RunID, Message: fmt.Sprintf("task panicked: %v", r)}
			}
		}()
		return task(d.ctx)
	}()
	if err := command.CheckOutcome(cmd.RunID, resp); err != nil {
		resp = d.violation(command.Submit, cmd, err)
	}

	d.resolve(cmd.RunID, e, resp)
	d.metrics.taskFinished(time.Since(start))
	d.logger.Info().
		Str("command", cmd.CommandName).
		Str("run_id", cmd.RunID).
		Str("response", string(resp.Type())).
		Dur("elapsed", time.Since(start)).
		Msg("task finished")
}

// resolve records the final response for e. A resolved entry is never
// overwritten.
func (d *Dispatcher) resolve(runID string, e *entry, resp command.Response) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e.resolved() {
		d.logger.Warn().Str("run_id", runID).Msg("ignoring second final response")
		return
	}
	e.resp = resp
	e.finished = time.Now()
	close(e.done)
}

// QueryFinal returns the final response for runID, waiting while the command
// is still running. It may be called any number of times until the runId is
// evicted, after which it is unknown. If ctx ends first the context error is
// returned.
func (d *Dispatcher) QueryFinal(ctx context.Context, runID string) (command.Response, error) {
	d.mu.Lock()
	e, ok := d.entries[runID]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	select {
	case <-e.done:
		d.mu.Lock()
		defer d.mu.Unlock()
		return e.resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status describes one tracked runId.
type Status struct {
	RunID       string           `json:"runId"`
	CommandName string           `json:"commandName"`
	Submitted   time.Time        `json:"submitted"`
	Final       bool             `json:"final"`
	Response    command.Response `json:"response,omitempty"`
}

// Snapshot lists the tracked runIds, oldest first.
func (d *Dispatcher) Snapshot() []Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Status, 0, len(d.entries))
	for id, e := range d.entries {
		out = append(out, Status{
			RunID:       id,
			CommandName: e.commandName,
			Submitted:   e.submitted,
			Final:       e.resolved(),
			Response:    e.resp,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Submitted.Before(out[j].Submitted) })
	return out
}

// Close cancels running tasks and waits for them to record their outcome.
// Later submits fail with ErrClosed.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()
	d.wg.Wait()
}
