package natsserver

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

func TestTokenAuth(t *testing.T) {
	token := "test-secret-token"

	srv, err := Start(Config{
		StoreDir: t.TempDir(),
		Host:     "127.0.0.1",
		Port:     -1,
		Token:    token,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Close()

	url := srv.ClientURL()

	nc, err := nats.Connect(url)
	if err == nil {
		nc.Close()
		t.Fatal("expected connection without token to fail")
	}

	if _, err := Dial(url, "wrong-token", zerolog.Nop()); err == nil {
		t.Fatal("expected connection with wrong token to fail")
	}

	remote, err := Dial(url, token, zerolog.Nop())
	if err != nil {
		t.Fatalf("expected connection with correct token to succeed: %v", err)
	}
	if remote.Embedded() {
		t.Error("dialled connection reports an embedded server")
	}
	remote.Close()
}

func TestInProcessJetStream(t *testing.T) {
	srv, err := Start(Config{StoreDir: t.TempDir()}, zerolog.Nop())
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Close()

	if !srv.Embedded() {
		t.Fatal("expected embedded server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	kv, err := srv.JetStream().CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: "smoke"})
	if err != nil {
		t.Fatalf("create kv: %v", err)
	}
	if _, err := kv.Put(ctx, "a.b", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	entry, err := kv.Get(ctx, "a.b")
	if err != nil || string(entry.Value()) != "x" {
		t.Fatalf("get = %v, %v", entry, err)
	}
}
