package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/tmt-csw/gocsw/internal/dispatch"
	"github.com/tmt-csw/gocsw/pkg/command"
	"github.com/tmt-csw/gocsw/pkg/event"
	"github.com/tmt-csw/gocsw/pkg/param"
)

const prefix = "CSW.motor"

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func loadMotor(t *testing.T, pub *recordingPublisher) *Component {
	t.Helper()
	c, err := Load(Config{Path: "testdata/motor.lua", Prefix: prefix}, pub, zerolog.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func loadSource(t *testing.T, src string, timeout time.Duration) *Component {
	t.Helper()
	path := filepath.Join(t.TempDir(), "component.lua")
	if err := os.WriteFile(path, []byte(src), 0600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(Config{Path: path, Prefix: prefix, Timeout: timeout}, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func setup(name string, params ...param.Parameter) command.ControlCommand {
	return command.NewSetup("CSW.test", name, command.NewRunID(), params...)
}

func position(t *testing.T, resp command.Response) int32 {
	t.Helper()
	c, ok := resp.(command.Completed)
	if !ok {
		t.Fatalf("response = %#v, want Completed", resp)
	}
	if c.Result == nil {
		t.Fatal("Completed has no result")
	}
	p, ok := c.Result.ParamSet.Get("position")
	if !ok {
		t.Fatal("result has no position")
	}
	if p.Units != param.Millimeter {
		t.Errorf("units = %q", p.Units)
	}
	v, ok := param.ValuesAs[param.Scalars[int32]](p)
	if !ok || len(v) != 1 {
		t.Fatalf("position values = %#v", p.Values)
	}
	return v[0]
}

func TestSandbox(t *testing.T) {
	L := newSandbox(zerolog.Nop())
	defer L.Close()

	for _, code := range []string{
		`assert(string.find("hello world", "world") == 7)`,
		`local t = {1,2,3}; table.insert(t, 4); assert(#t == 4)`,
		`assert(math.floor(3.7) == 3)`,
		`print("hello from sandbox")`,
	} {
		if err := L.DoString(code); err != nil {
			t.Errorf("%s: %v", code, err)
		}
	}
	for _, code := range []string{
		`os.execute("echo hi")`,
		`io.open("/etc/passwd")`,
		`debug.getinfo(1)`,
		`dofile("x.lua")`,
		`loadfile("x.lua")`,
		`load("return 1")`,
	} {
		if err := L.DoString(code); err == nil {
			t.Errorf("%s: expected error", code)
		}
	}
	if L.GetGlobal("print").Type() != lua.LTFunction {
		t.Error("print should be redirected, not removed")
	}
}

func TestValidate(t *testing.T) {
	c := loadMotor(t, nil)
	ctx := context.Background()

	resp := c.Validate(ctx, setup("move"))
	inv, ok := resp.(command.Invalid)
	if !ok || inv.Issue.Kind != command.MissingKeyIssue {
		t.Fatalf("move without target = %#v", resp)
	}
	resp = c.Validate(ctx, setup("move", param.New("target", param.IntKey, param.Scalars[int32]{10})))
	if resp.Type() != command.TypeAccepted {
		t.Fatalf("move with target = %#v", resp)
	}
}

func TestSubmitImmediate(t *testing.T) {
	c := loadMotor(t, nil)
	ctx := context.Background()

	resp, task := c.OnSubmit(ctx, setup("position"))
	if task != nil {
		t.Fatal("position should not start a task")
	}
	if got := position(t, resp); got != 0 {
		t.Errorf("position = %d", got)
	}

	tests := []struct {
		name string
		want command.ResponseType
		text string
	}{
		{"fail", command.TypeError, "motor fault"},
		{"broken", command.TypeError, "boom"},
		{"spin", command.TypeInvalid, "unknown command spin"},
	}
	for _, tt := range tests {
		resp, task := c.OnSubmit(ctx, setup(tt.name))
		if task != nil || resp.Type() != tt.want {
			t.Errorf("%s: got %#v", tt.name, resp)
			continue
		}
		var msg string
		switch r := resp.(type) {
		case command.Error:
			msg = r.Message
		case command.Invalid:
			msg = r.Issue.Message
		}
		if !strings.Contains(msg, tt.text) {
			t.Errorf("%s: message %q does not mention %q", tt.name, msg, tt.text)
		}
	}
}

func TestSubmitStartedThroughDispatcher(t *testing.T) {
	c := loadMotor(t, nil)
	d := dispatch.New(c, zerolog.Nop())
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	move := setup("move", param.New("target", param.IntKey, param.Scalars[int32]{10}))
	resp, err := d.Dispatch(ctx, command.Submit, move)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if s, ok := resp.(command.Started); !ok || s.Message != "moving" {
		t.Fatalf("move = %#v, want Started", resp)
	}
	final, err := d.QueryFinal(ctx, move.RunID)
	if err != nil {
		t.Fatalf("QueryFinal: %v", err)
	}
	if got := position(t, final); got != 10 {
		t.Errorf("final position = %d, want 10", got)
	}

	// State persists between calls on the same script.
	resp, _ = d.Dispatch(ctx, command.Submit, setup("position"))
	if got := position(t, resp); got != 10 {
		t.Errorf("position after move = %d", got)
	}

	home := setup("home")
	if resp, _ := d.Dispatch(ctx, command.Submit, home); resp.Type() != command.TypeStarted {
		t.Fatalf("home = %#v", resp)
	}
	final, err = d.QueryFinal(ctx, home.RunID)
	if err != nil || final.Type() != command.TypeCompleted {
		t.Fatalf("home final = %#v, %v", final, err)
	}
}

func TestOnewayPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	c := loadMotor(t, pub)

	resp := c.OnOneway(context.Background(), setup("report"))
	if resp.Type() != command.TypeAccepted {
		t.Fatalf("report = %#v", resp)
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 1 {
		t.Fatalf("published %d events", len(pub.events))
	}
	e := pub.events[0]
	if e.Key() != prefix+".MotorState" || e.Kind != event.SystemEvent {
		t.Errorf("event = %s %s", e.Kind, e.Key())
	}
	if !e.Exists("position") {
		t.Error("event has no position")
	}
}

func TestPublishWithoutEventService(t *testing.T) {
	c := loadSource(t, `
function on_oneway(cmd)
  csw.publish("X", {})
  return csw.accepted()
end`, 0)
	resp := c.OnOneway(context.Background(), setup("report"))
	inv, ok := resp.(command.Invalid)
	if !ok || !strings.Contains(inv.Issue.Message, "no event service") {
		t.Fatalf("resp = %#v", resp)
	}
}

func TestUndefinedHandlers(t *testing.T) {
	c := loadSource(t, `x = 1`, 0)
	ctx := context.Background()
	cmd := setup("anything")

	if resp := c.Validate(ctx, cmd); resp.Type() != command.TypeAccepted {
		t.Errorf("validate = %#v", resp)
	}
	if resp := c.OnOneway(ctx, cmd); resp.Type() != command.TypeAccepted {
		t.Errorf("oneway = %#v", resp)
	}
	resp, _ := c.OnSubmit(ctx, cmd)
	if inv, ok := resp.(command.Invalid); !ok || inv.Issue.Kind != command.UnsupportedCommandIssue {
		t.Errorf("submit = %#v", resp)
	}
}

func TestHandlerTimeout(t *testing.T) {
	c := loadSource(t, `function on_submit(cmd) while true do end end`, 50*time.Millisecond)
	resp, _ := c.OnSubmit(context.Background(), setup("spin"))
	e, ok := resp.(command.Error)
	if !ok || !strings.Contains(e.Message, "timed out") {
		t.Fatalf("resp = %#v", resp)
	}
}

func TestBadResponses(t *testing.T) {
	tests := map[string]string{
		"not a table":  `function on_submit(cmd) return 42 end`,
		"unknown type": `function on_submit(cmd) return { type = "Maybe" } end`,
		"bad result":   `function on_submit(cmd) return csw.completed({ csw.param("x", "NoSuchKey", {1}) }) end`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			c := loadSource(t, src, 0)
			resp, task := c.OnSubmit(context.Background(), setup("x"))
			if task != nil || resp.Type() != command.TypeError {
				t.Fatalf("resp = %#v", resp)
			}
		})
	}
}

func TestIssueKinds(t *testing.T) {
	c := loadSource(t, `
function validate(cmd)
  if cmd.commandName == "known" then
    return csw.invalid("WrongUnitsIssue", "bad units")
  end
  return csw.invalid("MadeUpIssue", "odd")
end`, 0)
	ctx := context.Background()
	if inv := c.Validate(ctx, setup("known")).(command.Invalid); inv.Issue.Kind != command.WrongUnitsIssue {
		t.Errorf("known kind = %s", inv.Issue.Kind)
	}
	if inv := c.Validate(ctx, setup("other")).(command.Invalid); inv.Issue.Kind != command.OtherIssue {
		t.Errorf("unknown kind = %s, want OtherIssue", inv.Issue.Kind)
	}
}

func TestCommandTable(t *testing.T) {
	c := loadSource(t, `
function on_submit(cmd)
  local p = cmd.params.filter
  assert(cmd.kind == "Observe", cmd.kind)
  assert(cmd.prefix == "CSW.test")
  assert(cmd.obsId == "2026A-001-123")
  assert(p.keyType == "StringKey")
  assert(p.values[2] == "blue")
  assert(cmd.params.gains.values[1][3] == 3)
  return csw.completed()
end`, 0)
	cmd := command.NewObserve("CSW.test", "expose", command.NewRunID(),
		param.New("filter", param.StringKey, param.Scalars[string]{"red", "blue"}),
		param.New("gains", param.IntArrayKey, param.Arrays[int32]{{1, 2, 3}}),
	)
	cmd.MaybeObsID = "2026A-001-123"
	resp, _ := c.OnSubmit(context.Background(), cmd)
	if resp.Type() != command.TypeCompleted {
		t.Fatalf("resp = %#v", resp)
	}
}

func TestLuaToGo(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	if err := L.DoString(`
empty = {}
list = {1, "two", true}
obj = {a = 1, b = {2, 3}}
`); err != nil {
		t.Fatal(err)
	}
	if got, ok := LuaToGo(L.GetGlobal("empty")).([]any); !ok || len(got) != 0 {
		t.Errorf("empty = %#v", LuaToGo(L.GetGlobal("empty")))
	}
	list, ok := LuaToGo(L.GetGlobal("list")).([]any)
	if !ok || len(list) != 3 || list[0] != 1.0 || list[1] != "two" || list[2] != true {
		t.Errorf("list = %#v", list)
	}
	obj, ok := LuaToGo(L.GetGlobal("obj")).(map[string]any)
	if !ok || obj["a"] != 1.0 {
		t.Fatalf("obj = %#v", obj)
	}
	if b, ok := obj["b"].([]any); !ok || len(b) != 2 {
		t.Errorf("obj.b = %#v", obj["b"])
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(Config{Path: filepath.Join(t.TempDir(), "missing.lua")}, nil, zerolog.Nop()); err == nil {
		t.Error("expected error for missing script")
	}
	path := filepath.Join(t.TempDir(), "bad.lua")
	os.WriteFile(path, []byte("function ("), 0600)
	if _, err := Load(Config{Path: path}, nil, zerolog.Nop()); err == nil {
		t.Error("expected error for syntax error")
	}
	if _, err := Load(Config{}, nil, zerolog.Nop()); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestReloadOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "component.lua")
	write := func(name string) {
		src := `function on_submit(cmd) return csw.error("` + name + `") end`
		if err := os.WriteFile(path, []byte(src), 0600); err != nil {
			t.Fatal(err)
		}
	}
	message := func(c *Component) string {
		resp, _ := c.OnSubmit(context.Background(), setup("x"))
		return resp.(command.Error).Message
	}

	write("v1")
	c, err := Load(Config{Path: path, Prefix: prefix}, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer c.Close()
	if err := c.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	write("v2")
	deadline := time.Now().Add(5 * time.Second)
	for message(c) != "v2" {
		if time.Now().After(deadline) {
			t.Fatal("script was not reloaded")
		}
		time.Sleep(50 * time.Millisecond)
	}

	// A broken edit keeps the running version.
	os.WriteFile(path, []byte("function ("), 0600)
	if err := c.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if got := message(c); got != "v2" {
		t.Errorf("after failed reload message = %q", got)
	}
}

func TestReloadKeepsRunningTask(t *testing.T) {
	c := loadSource(t, `
function on_submit(cmd)
  return csw.started("working", 0.1, function(c) return csw.completed() end)
end`, 0)
	resp, task := c.OnSubmit(context.Background(), setup("x"))
	if resp.Type() != command.TypeStarted || task == nil {
		t.Fatalf("resp = %#v", resp)
	}
	if err := c.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if final := task(context.Background()); final.Type() != command.TypeCompleted {
		t.Fatalf("final = %#v", final)
	}
}

func TestTaskCancelled(t *testing.T) {
	c := loadSource(t, `function on_submit(cmd) return csw.started("slow", 60) end`, 0)
	_, task := c.OnSubmit(context.Background(), setup("x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if final := task(ctx); final.Type() != command.TypeError {
		t.Fatalf("final = %#v", final)
	}
}

func TestCloseCancelsPendingReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "component.lua")
	if err := os.WriteFile(path, []byte(`function on_submit(cmd) return csw.error("v1") end`), 0600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(Config{Path: path, Prefix: prefix}, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	before := c.current.Load()

	c.scheduleReload()
	c.Close()
	time.Sleep(2 * reloadDebounce)

	if got := c.current.Load(); got != before {
		t.Fatal("a reload installed a new script after Close")
	}
	if before.acquire() {
		t.Fatal("script state still usable after Close")
	}
	if err := c.Reload(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Reload after Close = %v, want ErrClosed", err)
	}
	if err := c.Watch(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Watch after Close = %v, want ErrClosed", err)
	}
	resp, _ := c.OnSubmit(context.Background(), setup("x"))
	if resp.Type() != command.TypeError {
		t.Fatalf("submit after Close = %#v", resp)
	}
}
