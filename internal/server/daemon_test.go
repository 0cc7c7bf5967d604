package server_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmt-csw/gocsw/internal/assembly"
	"github.com/tmt-csw/gocsw/internal/server"
	"github.com/tmt-csw/gocsw/pkg/client"
	"github.com/tmt-csw/gocsw/pkg/command"
	"github.com/tmt-csw/gocsw/pkg/param"
	"github.com/tmt-csw/gocsw/pkg/protocol"
)

func TestEndToEnd(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "cswd.sock")

	cfg := server.Config{
		Server: server.ServerConfig{
			Listen:   "127.0.0.1:0",
			Socket:   socketPath,
			Metrics:  true,
			Announce: true,
		},
		Component: server.ComponentConfig{
			Type:   protocol.ComponentAssembly,
			Name:   "pycswTest",
			Prefix: assembly.DefaultPrefix,
			Step:   20 * time.Millisecond,
		},
		NATS: server.NATSConfig{
			Embedded: true,
			DataDir:  filepath.Join(tmpDir, "nats"),
		},
		Events: server.EventsConfig{InMemory: true},
		Web:    server.WebConfig{Listen: "127.0.0.1:0"},
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()

	d := server.NewDaemon(cfg, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run() }()

	select {
	case <-d.Ready():
	case err := <-errCh:
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not become ready in time")
	}

	// Wait for the control socket to appear.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if _, err := os.Stat(socketPath); err != nil {
		t.Fatal("socket did not appear in time")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmds := client.New(d.CommandURL(), protocol.ComponentAssembly, "pycswTest")
	cmd := command.NewSetup(assembly.DefaultPrefix, "LongRunningCommand", command.NewRunID())
	final, err := cmds.SubmitAndWait(ctx, cmd)
	if err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}
	if final.Type() != command.TypeCompleted {
		t.Fatalf("final = %s, want Completed", final.Type())
	}

	ctl := client.NewDaemonClient(socketPath)

	status, err := ctl.GetStatus(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != "ok" || status.Component != "pycswTest" {
		t.Fatalf("status = %+v", status)
	}
	if status.TrackedCommands != 1 || status.PendingCommands != 0 {
		t.Fatalf("tracked = %d pending = %d, want 1 and 0", status.TrackedCommands, status.PendingCommands)
	}
	if status.CommandURL != d.CommandURL() {
		t.Errorf("command url = %q, want %q", status.CommandURL, d.CommandURL())
	}

	list, err := ctl.GetCommands(ctx)
	if err != nil {
		t.Fatalf("commands: %v", err)
	}
	if len(list.Commands) != 1 || list.Commands[0].RunID != cmd.RunID || !list.Commands[0].Final {
		t.Fatalf("commands = %+v", list.Commands)
	}

	// The long running command published current state on its way.
	keys, err := ctl.GetEventKeys(ctx)
	if err != nil {
		t.Fatalf("event keys: %v", err)
	}
	want := assembly.DefaultPrefix + "." + assembly.StateName
	if len(keys.Keys) != 1 || keys.Keys[0] != want {
		t.Fatalf("keys = %v, want [%s]", keys.Keys, want)
	}

	// The command server announced itself to the registry.
	var comps *protocol.ComponentsResponse
	for time.Now().Before(deadline) {
		comps, err = ctl.GetComponents(ctx)
		if err != nil {
			t.Fatalf("components: %v", err)
		}
		if len(comps.Components) == 1 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if len(comps.Components) != 1 || comps.Components[0].URI != d.CommandURL() {
		t.Fatalf("components = %+v", comps.Components)
	}

	d.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("daemon error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop in time")
	}
}

func TestExternalNATSRequiresURL(t *testing.T) {
	cfg := server.Config{
		Server: server.ServerConfig{Listen: "127.0.0.1:0", Socket: filepath.Join(t.TempDir(), "cswd.sock")},
		NATS:   server.NATSConfig{Embedded: false},
	}
	d := server.NewDaemon(cfg, zerolog.Nop())
	if err := d.Run(); err == nil {
		t.Fatal("expected error without nats.url")
	}
}

func TestScriptedComponent(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := server.Config{
		Server: server.ServerConfig{
			Listen: "127.0.0.1:0",
			Socket: filepath.Join(tmpDir, "cswd.sock"),
		},
		Component: server.ComponentConfig{
			Type:          protocol.ComponentAssembly,
			Name:          "motor",
			Prefix:        "CSW.motor",
			Script:        "../script/testdata/motor.lua",
			ScriptTimeout: time.Second,
		},
		NATS:   server.NATSConfig{Embedded: true, DataDir: filepath.Join(tmpDir, "nats")},
		Events: server.EventsConfig{InMemory: true},
	}
	d := server.NewDaemon(cfg, zerolog.Nop())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run() }()

	select {
	case <-d.Ready():
	case err := <-errCh:
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not become ready in time")
	}
	defer func() {
		d.Stop()
		<-errCh
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmds := client.New(d.CommandURL(), protocol.ComponentAssembly, "motor")
	move := command.NewSetup("CSW.test", "move", command.NewRunID(),
		param.New("target", param.IntKey, param.Scalars[int32]{25}))
	final, err := cmds.SubmitAndWait(ctx, move)
	if err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}
	c, ok := final.(command.Completed)
	if !ok || c.Result == nil {
		t.Fatalf("final = %#v", final)
	}
	p, _ := c.Result.ParamSet.Get("position")
	if v, ok := param.ValuesAs[param.Scalars[int32]](p); !ok || v[0] != 25 {
		t.Fatalf("position = %#v", p.Values)
	}

	report := command.NewSetup("CSW.test", "report", command.NewRunID())
	if resp, err := cmds.Oneway(ctx, report); err != nil || resp.Type() != command.TypeAccepted {
		t.Fatalf("oneway report = %v, %v", resp, err)
	}
	for i := 0; i < 100; i++ {
		if _, err := os.Stat(cfg.Server.Socket); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	keys, err := client.NewDaemonClient(cfg.Server.Socket).GetEventKeys(ctx)
	if err != nil {
		t.Fatalf("event keys: %v", err)
	}
	if len(keys.Keys) != 1 || keys.Keys[0] != "CSW.motor.MotorState" {
		t.Fatalf("keys = %v", keys.Keys)
	}
}

func TestMissingScript(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := server.Config{
		Server:    server.ServerConfig{Listen: "127.0.0.1:0", Socket: filepath.Join(tmpDir, "cswd.sock")},
		Component: server.ComponentConfig{Prefix: "CSW.motor", Script: filepath.Join(tmpDir, "missing.lua")},
		NATS:      server.NATSConfig{Embedded: true, DataDir: filepath.Join(tmpDir, "nats")},
		Events:    server.EventsConfig{InMemory: true},
	}
	if err := server.NewDaemon(cfg, zerolog.Nop()).Run(); err == nil {
		t.Fatal("expected error for missing script")
	}
}

func TestStopWithPendingQueryFinal(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := server.Config{
		Server: server.ServerConfig{
			Listen: "127.0.0.1:0",
			Socket: filepath.Join(tmpDir, "cswd.sock"),
		},
		Component: server.ComponentConfig{
			Type:   protocol.ComponentAssembly,
			Name:   "pycswTest",
			Prefix: assembly.DefaultPrefix,
			Step:   time.Minute,
		},
		NATS:   server.NATSConfig{Embedded: true, DataDir: filepath.Join(tmpDir, "nats")},
		Events: server.EventsConfig{InMemory: true},
	}
	d := server.NewDaemon(cfg, zerolog.Nop())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run() }()

	select {
	case <-d.Ready():
	case err := <-errCh:
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not become ready in time")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cmds := client.New(d.CommandURL(), protocol.ComponentAssembly, "pycswTest")
	cmd := command.NewSetup(assembly.DefaultPrefix, "LongRunningCommand", command.NewRunID())
	resp, err := cmds.Submit(ctx, cmd)
	if err != nil || resp.Type() != command.TypeStarted {
		t.Fatalf("submit = %v, %v", resp, err)
	}

	type result struct {
		resp command.Response
		err  error
	}
	pending := make(chan result, 1)
	go func() {
		resp, err := cmds.QueryFinal(ctx, cmd.RunID)
		pending <- result{resp, err}
	}()
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	d.Stop()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("daemon error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop in time")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("stop took %s with a queryFinal pending", elapsed)
	}

	select {
	case r := <-pending:
		if r.err != nil {
			t.Fatalf("queryFinal: %v", r.err)
		}
		if r.resp.Type() != command.TypeError {
			t.Errorf("final = %s, want Error from the cancelled task", r.resp.Type())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("queryFinal still pending after stop")
	}
}
