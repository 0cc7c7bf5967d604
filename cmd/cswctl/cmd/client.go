package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tmt-csw/gocsw/internal/natsserver"
	"github.com/tmt-csw/gocsw/pkg/client"
	"github.com/tmt-csw/gocsw/pkg/eventservice"
)

// commandClient addresses the configured component.
func commandClient() *client.Client {
	return client.New(cfg.URL, cfg.ComponentType, cfg.ComponentName)
}

// daemonClient talks to cswd over its Unix socket.
func daemonClient() *client.DaemonClient {
	return client.NewDaemonClient(cfg.Socket)
}

// openEvents connects to NATS and opens the event service. Call the returned
// func to disconnect.
func openEvents(ctx context.Context) (*eventservice.Service, func(), error) {
	logger := zerolog.Nop()
	conn, err := natsserver.Dial(cfg.NATSURL, cfg.NATSToken, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot connect to NATS at %s: %w", cfg.NATSURL, err)
	}
	svc, err := eventservice.Open(ctx, conn.JetStream(), eventservice.Config{Bucket: cfg.Bucket}, logger)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return svc, conn.Close, nil
}
