// Package script serves a component whose command handlers are Lua
// functions. A script defines any of validate(cmd), on_submit(cmd) and
// on_oneway(cmd); each returns a response built with the csw module.
// Undefined handlers accept validate and oneway and reject submit as
// unsupported. The script is reloaded when its file changes.
package script

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/tmt-csw/gocsw/internal/dispatch"
	"github.com/tmt-csw/gocsw/pkg/command"
	"github.com/tmt-csw/gocsw/pkg/eventservice"
)

const (
	FnValidate = "validate"
	FnSubmit   = "on_submit"
	FnOneway   = "on_oneway"

	reloadDebounce = 500 * time.Millisecond
)

// Config configures a scripted component.
type Config struct {
	Path   string
	Prefix string
	// Timeout limits a single handler call. Zero means no limit.
	Timeout time.Duration
}

// state is one loaded copy of the script. Calls into L are serialized by
// mu. A state replaced by a reload is closed once no task still holds it.
type state struct {
	mu      sync.Mutex
	L       *lua.LState
	timeout time.Duration
	refs    int
	retired bool
	closed  bool
}

func (st *state) acquire() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return false
	}
	st.refs++
	return true
}

func (st *state) release() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.refs--
	st.closeIfIdle()
}

func (st *state) retire() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.retired = true
	st.closeIfIdle()
}

func (st *state) closeIfIdle() {
	if st.retired && st.refs == 0 && !st.closed {
		st.closed = true
		st.L.Close()
	}
}

// call invokes fn(cmd) and parses the returned response.
func (st *state) call(fn *lua.LFunction, cmd command.ControlCommand) (reply, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	arg, err := commandToLua(st.L, cmd)
	if err != nil {
		return reply{}, fmt.Errorf("encode command: %w", err)
	}

	if st.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), st.timeout)
		defer cancel()
		st.L.SetContext(ctx)
		defer st.L.RemoveContext()
	}

	if err := st.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, arg); err != nil {
		if ctx := st.L.Context(); ctx != nil && ctx.Err() != nil {
			return reply{}, fmt.Errorf("handler timed out after %s", st.timeout)
		}
		return reply{}, err
	}
	ret := st.L.Get(-1)
	st.L.Pop(1)
	return parseResponse(ret, cmd.RunID)
}

// handler returns the global function name, or nil.
func (st *state) handler(name string) *lua.LFunction {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn, _ := st.L.GetGlobal(name).(*lua.LFunction)
	return fn
}

// Component answers commands with a Lua script. It implements
// dispatch.Handlers.
type Component struct {
	cfg       Config
	publisher eventservice.Publisher
	logger    zerolog.Logger

	current atomic.Pointer[state]

	// mu guards the fields below and the swap in Reload.
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	pending *time.Timer
	closed  bool
}

// ErrClosed is returned by Reload after Close.
var ErrClosed = errors.New("script: component closed")

var _ dispatch.Handlers = (*Component)(nil)

// Load reads and runs the script at cfg.Path. pub may be nil, in which case
// csw.publish raises an error.
func Load(cfg Config, pub eventservice.Publisher, logger zerolog.Logger) (*Component, error) {
	if cfg.Path == "" {
		return nil, errors.New("script: no path")
	}
	c := &Component{
		cfg:       cfg,
		publisher: pub,
		logger: logger.With().
			Str("component", "script").
			Str("prefix", cfg.Prefix).
			Str("file", filepath.Base(cfg.Path)).
			Logger(),
	}
	st, err := c.load()
	if err != nil {
		return nil, err
	}
	c.current.Store(st)
	return c, nil
}

func (c *Component) load() (*state, error) {
	L := newSandbox(c.logger)
	registerModule(L, &moduleContext{prefix: c.cfg.Prefix, publisher: c.publisher, logger: c.logger})
	if err := L.DoFile(c.cfg.Path); err != nil {
		L.Close()
		return nil, fmt.Errorf("load script %s: %w", c.cfg.Path, err)
	}
	return &state{L: L, timeout: c.cfg.Timeout}, nil
}

// Prefix returns the component prefix events are published under.
func (c *Component) Prefix() string { return c.cfg.Prefix }

// Reload replaces the running script. On error the previous one stays.
// Tasks already started finish on the copy that started them.
func (c *Component) Reload() error {
	st, err := c.load()
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		st.retire()
		return ErrClosed
	}
	old := c.current.Swap(st)
	c.mu.Unlock()
	if old != nil {
		old.retire()
	}
	c.logger.Info().Msg("script reloaded")
	return nil
}

// acquire returns the current state with a reference held, or nil after
// Close.
func (c *Component) acquire() *state {
	for {
		st := c.current.Load()
		if st.acquire() {
			return st
		}
		if c.current.Load() == st {
			return nil
		}
	}
}

func (c *Component) Validate(_ context.Context, cmd command.ControlCommand) command.Response {
	st := c.acquire()
	if st == nil {
		return command.Invalid{RunID: cmd.RunID, Issue: command.NewIssue(command.OtherIssue, "script component is closed")}
	}
	defer st.release()

	fn := st.handler(FnValidate)
	if fn == nil {
		return command.Accepted{RunID: cmd.RunID}
	}
	r, err := st.call(fn, cmd)
	if err != nil {
		c.logCallError(FnValidate, cmd, err)
		return command.Invalid{RunID: cmd.RunID, Issue: command.NewIssue(command.OtherIssue, "validate: "+err.Error())}
	}
	return r.resp
}

func (c *Component) OnOneway(_ context.Context, cmd command.ControlCommand) command.Response {
	st := c.acquire()
	if st == nil {
		return command.Invalid{RunID: cmd.RunID, Issue: command.NewIssue(command.OtherIssue, "script component is closed")}
	}
	defer st.release()

	fn := st.handler(FnOneway)
	if fn == nil {
		return command.Accepted{RunID: cmd.RunID}
	}
	r, err := st.call(fn, cmd)
	if err != nil {
		c.logCallError(FnOneway, cmd, err)
		return command.Invalid{RunID: cmd.RunID, Issue: command.NewIssue(command.OtherIssue, "oneway: "+err.Error())}
	}
	return r.resp
}

func (c *Component) OnSubmit(_ context.Context, cmd command.ControlCommand) (command.Response, dispatch.Task) {
	st := c.acquire()
	if st == nil {
		return command.Error{RunID: cmd.RunID, Message: "script component is closed"}, nil
	}
	defer st.release()

	fn := st.handler(FnSubmit)
	if fn == nil {
		return dispatch.Unsupported(cmd), nil
	}
	r, err := st.call(fn, cmd)
	if err != nil {
		c.logCallError(FnSubmit, cmd, err)
		return command.Error{RunID: cmd.RunID, Message: err.Error()}, nil
	}
	if r.resp.Type() != command.TypeStarted {
		return r.resp, nil
	}
	st.acquire()
	return r.resp, c.task(st, cmd, r)
}

// task finishes a Started submit: wait, then produce the final response.
func (c *Component) task(st *state, cmd command.ControlCommand, r reply) dispatch.Task {
	return func(ctx context.Context) command.Response {
		defer st.release()

		if r.after > 0 {
			select {
			case <-time.After(r.after):
			case <-ctx.Done():
				return command.Error{RunID: cmd.RunID, Message: "cancelled: " + ctx.Err().Error()}
			}
		}

		switch {
		case r.next != nil:
			final, err := st.call(r.next, cmd)
			if err != nil {
				c.logCallError(FnSubmit, cmd, err)
				return command.Error{RunID: cmd.RunID, Message: err.Error()}
			}
			return final.resp
		case r.final != nil:
			return r.final
		}
		return command.Completed{RunID: cmd.RunID}
	}
}

func (c *Component) logCallError(fn string, cmd command.ControlCommand, err error) {
	c.logger.Error().
		Err(err).
		Str("handler", fn).
		Str("command", cmd.CommandName).
		Str("run_id", cmd.RunID).
		Msg("script handler failed")
}

// Watch reloads the script when its file changes. The directory is watched
// so editors that replace the file by rename are seen.
func (c *Component) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(c.cfg.Path)); err != nil {
		watcher.Close()
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		watcher.Close()
		return ErrClosed
	}
	c.watcher = watcher
	c.mu.Unlock()

	go c.watchLoop(watcher)

	c.logger.Info().Str("path", c.cfg.Path).Msg("watching script for changes")
	return nil
}

func (c *Component) watchLoop(watcher *fsnotify.Watcher) {
	target := filepath.Clean(c.cfg.Path)

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			c.scheduleReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.logger.Error().Err(err).Msg("script watcher error")
		}
	}
}

// scheduleReload reloads once changes have settled for reloadDebounce.
func (c *Component) scheduleReload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.pending != nil {
		c.pending.Stop()
	}
	c.pending = time.AfterFunc(reloadDebounce, func() {
		err := c.Reload()
		switch {
		case errors.Is(err, ErrClosed):
		case err != nil:
			c.logger.Error().Err(err).Msg("script reload failed, keeping previous version")
		}
	})
}

// Close stops watching, cancels a pending reload and releases the script.
// Later reloads fail with ErrClosed.
func (c *Component) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	if c.watcher != nil {
		c.watcher.Close()
		c.watcher = nil
	}
	st := c.current.Load()
	c.mu.Unlock()
	if st != nil {
		st.retire()
	}
}
