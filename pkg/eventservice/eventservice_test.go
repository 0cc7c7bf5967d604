package eventservice

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmt-csw/gocsw/internal/natsserver"
	"github.com/tmt-csw/gocsw/pkg/event"
	"github.com/tmt-csw/gocsw/pkg/param"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	conn, err := natsserver.Start(natsserver.Config{StoreDir: t.TempDir()}, zerolog.Nop())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(conn.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc, err := Open(ctx, conn.JetStream(), Config{Bucket: "test_events", InMemory: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return svc
}

func state(v int32) event.Event {
	return event.NewSystemEvent("CSW.pycswTest", "PyCswState",
		param.New("IntValue", param.IntKey, param.Scalars[int32]{v}).WithUnits(param.Arcsec))
}

func recv(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return event.Event{}
	}
}

func TestPublishAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	e := state(42)
	if err := svc.Publish(ctx, e); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err := svc.Get(ctx, "CSW.pycswTest.PyCswState")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(got, e) {
		t.Fatalf("got %#v\nwant %#v", got, e)
	}

	keys, err := svc.Keys(ctx)
	if err != nil || len(keys) != 1 || keys[0] != e.Key() {
		t.Fatalf("keys = %v, %v", keys, err)
	}
}

func TestGetMissingIsInvalid(t *testing.T) {
	svc := newTestService(t)

	got, err := svc.Get(context.Background(), "CSW.nobody.nothing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsInvalid() {
		t.Fatalf("expected invalid event, got %#v", got)
	}
	if got.Source != "CSW.nobody" || got.EventName != "nothing" {
		t.Errorf("invalid event key = %q", got.Key())
	}

	keys, err := svc.Keys(context.Background())
	if err != nil || len(keys) != 0 {
		t.Fatalf("keys on empty bucket = %v, %v", keys, err)
	}
}

func TestSubscribeDeliversCurrentThenUpdates(t *testing.T) {
	svc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Publish(ctx, state(1)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ch := make(chan event.Event, 10)
	sub, err := svc.Subscribe(ctx, []string{"CSW.pycswTest.PyCswState", "CSW.other.thing"}, func(e event.Event) { ch <- e })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	first := recv(t, ch)
	if p, _ := first.Get("IntValue"); !reflect.DeepEqual(p.Values, param.Scalars[int32]{1}) {
		t.Fatalf("initial value = %#v", p)
	}

	// An undecodable entry is skipped, not delivered.
	if _, err := svc.kv.Put(ctx, "CSW.other.thing", []byte("not cbor")); err != nil {
		t.Fatalf("put garbage: %v", err)
	}
	if err := svc.Publish(ctx, state(2)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	second := recv(t, ch)
	if p, _ := second.Get("IntValue"); !reflect.DeepEqual(p.Values, param.Scalars[int32]{2}) {
		t.Fatalf("update value = %#v", p)
	}

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not stop after context cancel")
	}
	sub.Stop()
}

func TestSubscribePattern(t *testing.T) {
	svc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan event.Event, 10)
	sub, err := svc.SubscribePattern(ctx, "test.assembly.*", func(e event.Event) { ch <- e })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Stop()

	if err := svc.Publish(ctx, event.NewObserveEvent("other.component", "ignored")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := svc.Publish(ctx, event.NewObserveEvent("test.assembly", "exposureStarted")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	e := recv(t, ch)
	if e.Key() != "test.assembly.exposureStarted" || e.Kind != event.ObserveEvent {
		t.Fatalf("unexpected event %#v", e)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event %s", extra.Key())
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeNeedsKeys(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Subscribe(context.Background(), nil, func(event.Event) {}); err == nil {
		t.Fatal("expected error for empty key list")
	}
}
