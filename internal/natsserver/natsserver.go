// Package natsserver provides the NATS connection that backs the event
// service, either to an embedded JetStream server or to a remote one.
package natsserver

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Config holds settings for the embedded NATS server.
type Config struct {
	StoreDir string
	Host     string // Empty keeps the server in-process only.
	Port     int
	Token    string // If non-empty, clients must present this token.
}

// Conn is a NATS client connection with JetStream enabled. When it owns an
// embedded server, Close shuts that server down too.
type Conn struct {
	ns     *server.Server
	nc     *nats.Conn
	js     jetstream.JetStream
	logger zerolog.Logger
}

// Start runs an embedded JetStream server and connects to it.
func Start(cfg Config, logger zerolog.Logger) (*Conn, error) {
	logger = logger.With().Str("component", "nats").Logger()

	opts := &server.Options{
		ServerName: "csw-events",
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		DontListen: cfg.Host == "",
		Host:       cfg.Host,
		Port:       cfg.Port,
		NoLog:      true,
		NoSigs:     true,
	}
	if cfg.Token != "" {
		opts.Authorization = cfg.Token
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("nats server create: %w", err)
	}
	ns.SetLoggerV2(serverLogger{logger: logger}, false, false, false)
	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready after 10s")
	}

	connectOpts := []nats.Option{nats.Name("cswd")}
	if opts.DontListen {
		connectOpts = append(connectOpts, nats.InProcessServer(ns))
	}
	c, err := connect(ns.ClientURL(), cfg.Token, logger, connectOpts...)
	if err != nil {
		ns.Shutdown()
		return nil, err
	}
	c.ns = ns

	logger.Info().Str("client_url", ns.ClientURL()).Bool("in_process", opts.DontListen).Msg("embedded NATS started")
	return c, nil
}

// Dial connects to an existing NATS server at url.
func Dial(url, token string, logger zerolog.Logger) (*Conn, error) {
	logger = logger.With().Str("component", "nats").Logger()
	c, err := connect(url, token, logger,
		nats.Name("csw-client"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("url", url).Msg("connected to NATS")
	return c, nil
}

func connect(url, token string, logger zerolog.Logger, opts ...nats.Option) (*Conn, error) {
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}
	return &Conn{nc: nc, js: js, logger: logger}, nil
}

// JetStream returns the JetStream handle.
func (c *Conn) JetStream() jetstream.JetStream { return c.js }

// NATS returns the underlying client connection.
func (c *Conn) NATS() *nats.Conn { return c.nc }

// ClientURL is the URL other processes use to reach the server.
func (c *Conn) ClientURL() string {
	if c.ns != nil {
		return c.ns.ClientURL()
	}
	return c.nc.ConnectedUrl()
}

// Embedded reports whether c owns an in-process server.
func (c *Conn) Embedded() bool { return c.ns != nil }

// Close drains the connection and stops the embedded server, if any.
func (c *Conn) Close() {
	if err := c.nc.Drain(); err != nil {
		c.logger.Warn().Err(err).Msg("nats drain")
	}
	if c.ns != nil {
		c.logger.Info().Msg("shutting down embedded NATS")
		c.ns.Shutdown()
		c.ns.WaitForShutdown()
	}
}
