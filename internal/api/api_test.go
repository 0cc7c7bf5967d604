package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmt-csw/gocsw/internal/dispatch"
	"github.com/tmt-csw/gocsw/pkg/command"
	"github.com/tmt-csw/gocsw/pkg/protocol"
)

type fakeTracker []dispatch.Status

func (f fakeTracker) Snapshot() []dispatch.Status { return f }

type fakeKeys struct {
	keys []string
	err  error
}

func (f fakeKeys) Keys(context.Context) ([]string, error) { return f.keys, f.err }

type fakeComponents []protocol.ComponentInfo

func (f fakeComponents) Components() []protocol.ComponentInfo { return f }
func (f fakeComponents) Count() int                           { return len(f) }

func get(t *testing.T, h http.Handler, path string, dst any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if dst != nil && rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec.Code
}

func testServer(events EventKeys, comps Components) *Server {
	now := time.Now()
	tracker := fakeTracker{
		{RunID: "a", CommandName: "SimpleCommand", Submitted: now, Final: true, Response: command.Completed{RunID: "a"}},
		{RunID: "b", CommandName: "LongRunningCommand", Submitted: now, Response: command.Started{RunID: "b", Message: "busy"}},
	}
	info := Info{Component: "pycswTest", Prefix: "CSW.pycswTest", CommandURL: "http://127.0.0.1:8082", StartedAt: now.Add(-time.Minute)}
	return New("unused.sock", info, tracker, events, comps, zerolog.Nop())
}

func TestStatus(t *testing.T) {
	s := testServer(fakeKeys{}, fakeComponents{{Registration: protocol.Registration{Name: "x"}}})

	var resp protocol.StatusResponse
	if code := get(t, s.Handler(), "/api/v1/status", &resp); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if resp.Status != "ok" || resp.Component != "pycswTest" || resp.Prefix != "CSW.pycswTest" {
		t.Errorf("status = %+v", resp)
	}
	if resp.TrackedCommands != 2 || resp.PendingCommands != 1 {
		t.Errorf("tracked = %d pending = %d, want 2 and 1", resp.TrackedCommands, resp.PendingCommands)
	}
	if !resp.NATSRunning || resp.ComponentCount != 1 {
		t.Errorf("nats = %v components = %d", resp.NATSRunning, resp.ComponentCount)
	}
}

func TestCommands(t *testing.T) {
	s := testServer(nil, nil)

	var resp protocol.CommandsResponse
	if code := get(t, s.Handler(), "/api/v1/commands", &resp); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if len(resp.Commands) != 2 {
		t.Fatalf("commands = %d, want 2", len(resp.Commands))
	}
	r, err := command.UnmarshalResponse(resp.Commands[1].Response)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if started, ok := r.(command.Started); !ok || started.Message != "busy" {
		t.Errorf("response = %#v", r)
	}
	if resp.Commands[1].Final {
		t.Error("pending command reported final")
	}
}

func TestEvents(t *testing.T) {
	s := testServer(fakeKeys{keys: []string{"CSW.pycswTest.PyCswState"}}, nil)
	var resp protocol.EventKeysResponse
	if code := get(t, s.Handler(), "/api/v1/events", &resp); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if len(resp.Keys) != 1 {
		t.Errorf("keys = %v", resp.Keys)
	}

	empty := testServer(fakeKeys{}, nil)
	var none protocol.EventKeysResponse
	get(t, empty.Handler(), "/api/v1/events", &none)
	if none.Keys == nil || len(none.Keys) != 0 {
		t.Errorf("keys = %#v, want empty list", none.Keys)
	}

	failing := testServer(fakeKeys{err: errors.New("boom")}, nil)
	if code := get(t, failing.Handler(), "/api/v1/events", nil); code != http.StatusInternalServerError {
		t.Errorf("status code = %d, want 500", code)
	}

	disabled := testServer(nil, nil)
	if code := get(t, disabled.Handler(), "/api/v1/events", nil); code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503", code)
	}
}

func TestComponents(t *testing.T) {
	s := testServer(nil, nil)
	var resp protocol.ComponentsResponse
	if code := get(t, s.Handler(), "/api/v1/components", &resp); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if resp.Components == nil || len(resp.Components) != 0 {
		t.Errorf("components = %#v, want empty list", resp.Components)
	}
}
