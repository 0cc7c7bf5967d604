package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tmt-csw/gocsw/internal/api"
	"github.com/tmt-csw/gocsw/internal/assembly"
	"github.com/tmt-csw/gocsw/internal/commandserver"
	"github.com/tmt-csw/gocsw/internal/dispatch"
	"github.com/tmt-csw/gocsw/internal/natsserver"
	"github.com/tmt-csw/gocsw/internal/registry"
	"github.com/tmt-csw/gocsw/internal/script"
	"github.com/tmt-csw/gocsw/internal/web"
	"github.com/tmt-csw/gocsw/pkg/eventservice"
)

// shutdownTimeout bounds the graceful stop of each server.
const shutdownTimeout = 5 * time.Second

// Daemon is the cswd process: one component served over HTTP, backed by
// NATS for events and announcements.
type Daemon struct {
	cfg        Config
	logger     zerolog.Logger
	nats       *natsserver.Conn
	events     *eventservice.Service
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	cmdServer  *commandserver.Server
	apiServer  *api.Server
	webServer  *web.Server
	script     *script.Component
	watcher    *fsnotify.Watcher
	reloaded   func(Config)
	startedAt  time.Time
	ready      chan struct{}
	stopCh     chan struct{}
}

// NewDaemon creates a Daemon from config.
func NewDaemon(cfg Config, logger zerolog.Logger) *Daemon {
	return &Daemon{
		cfg:    cfg,
		logger: logger,
		ready:  make(chan struct{}),
		stopCh: make(chan struct{}),
	}
}

// Run starts all subsystems and blocks until a signal is received or Stop is called.
func (d *Daemon) Run() error {
	d.startedAt = time.Now()

	if err := d.start(); err != nil {
		d.shutdown()
		return err
	}

	cmdErrCh := make(chan error, 1)
	go func() {
		cmdErrCh <- d.cmdServer.Start()
	}()
	apiErrCh := make(chan error, 1)
	go func() {
		apiErrCh <- d.apiServer.Start()
	}()

	webErrCh := make(chan error, 1)
	if d.webServer != nil {
		go func() {
			webErrCh <- d.webServer.Start()
		}()
	}

	d.logger.Info().
		Str("socket", d.cfg.Server.Socket).
		Str("command_url", d.cmdServer.URL()).
		Str("component", d.cfg.Component.Name).
		Msg("cswd started")
	close(d.ready)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		d.logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-d.stopCh:
		d.logger.Info().Msg("stop requested, shutting down")
	case err := <-cmdErrCh:
		if err != nil {
			d.logger.Error().Err(err).Msg("command server error")
			runErr = fmt.Errorf("command server: %w", err)
		}
	case err := <-apiErrCh:
		if err != nil {
			d.logger.Error().Err(err).Msg("API server error")
			runErr = fmt.Errorf("API server: %w", err)
		}
	case err := <-webErrCh:
		if err != nil {
			d.logger.Error().Err(err).Msg("web server error")
			runErr = fmt.Errorf("web server: %w", err)
		}
	}

	d.shutdown()
	return runErr
}

func (d *Daemon) start() error {
	var err error
	if d.cfg.NATS.Embedded {
		d.nats, err = natsserver.Start(natsserver.Config{
			StoreDir: d.cfg.NATS.DataDir,
			Host:     d.cfg.NATS.Host,
			Port:     d.cfg.NATS.Port,
			Token:    d.cfg.NATS.Token,
		}, d.logger)
	} else {
		if d.cfg.NATS.URL == "" {
			return errors.New("nats.url is required when nats.embedded is false")
		}
		d.nats, err = natsserver.Dial(d.cfg.NATS.URL, d.cfg.NATS.Token, d.logger)
	}
	if err != nil {
		return fmt.Errorf("start nats: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d.events, err = eventservice.Open(ctx, d.nats.JetStream(), eventservice.Config{
		Bucket:   d.cfg.Events.Bucket,
		History:  d.cfg.Events.History,
		InMemory: d.cfg.Events.InMemory,
	}, d.logger)
	if err != nil {
		return fmt.Errorf("open event service: %w", err)
	}

	d.registry, err = registry.New(d.nats.NATS(), d.logger)
	if err != nil {
		return fmt.Errorf("start registry: %w", err)
	}

	handlers, err := d.component()
	if err != nil {
		return err
	}

	dispatchOpts := []dispatch.Option{dispatch.WithRetention(d.cfg.Component.Retention)}
	cmdOpts := []commandserver.Option{commandserver.WithEvents(d.events)}
	if d.cfg.Server.Metrics {
		reg := prometheus.NewRegistry()
		dispatchOpts = append(dispatchOpts, dispatch.WithMetrics(dispatch.NewMetrics(reg)))
		cmdOpts = append(cmdOpts, commandserver.WithMetrics(reg))
	}
	if d.cfg.Server.Announce {
		cmdOpts = append(cmdOpts, commandserver.WithRegistrar(registry.NewAnnouncer(d.nats.NATS(), d.logger)))
	}
	d.dispatcher = dispatch.New(handlers, d.logger, dispatchOpts...)

	d.cmdServer = commandserver.New(commandserver.Config{
		Listen:        d.cfg.Server.Listen,
		ComponentType: d.cfg.Component.Type,
		ComponentName: d.cfg.Component.Name,
		Prefix:        handlers.Prefix(),
	}, d.dispatcher, d.logger, cmdOpts...)
	if err := d.cmdServer.Listen(); err != nil {
		d.cmdServer = nil
		return err
	}

	if d.cfg.File != "" {
		if err := d.watchConfig(); err != nil {
			d.logger.Warn().Err(err).Str("file", d.cfg.File).Msg("config watch disabled")
		}
	}

	info := api.Info{
		Component:  d.cfg.Component.Name,
		Prefix:     handlers.Prefix(),
		CommandURL: d.cmdServer.URL(),
		StartedAt:  d.startedAt,
	}
	d.apiServer = api.New(d.cfg.Server.Socket, info, d.dispatcher, d.events, d.registry, d.logger)

	if d.cfg.Web.Listen != "" {
		d.webServer = web.New(web.Config{
			Listen:   d.cfg.Web.Listen,
			Username: d.cfg.Web.Username,
			Password: d.cfg.Web.Password,
		}, info, d.dispatcher, d.registry, d.events, d.logger)
	}
	return nil
}

// component is the hosted component: the Lua script if one is configured,
// otherwise the test assembly.
type component interface {
	dispatch.Handlers
	Prefix() string
}

func (d *Daemon) component() (component, error) {
	if d.cfg.Component.Script == "" {
		return assembly.New(assembly.Config{
			Prefix: d.cfg.Component.Prefix,
			Step:   d.cfg.Component.Step,
		}, d.events, d.logger), nil
	}

	c, err := script.Load(script.Config{
		Path:    d.cfg.Component.Script,
		Prefix:  d.cfg.Component.Prefix,
		Timeout: d.cfg.Component.ScriptTimeout,
	}, d.events, d.logger)
	if err != nil {
		return nil, err
	}
	d.script = c
	if err := c.Watch(); err != nil {
		d.logger.Warn().Err(err).Msg("script watch disabled")
	}
	return c, nil
}

// Stop signals the daemon to shut down. Safe to call from another goroutine.
func (d *Daemon) Stop() {
	close(d.stopCh)
}

// Ready is closed once every subsystem is started.
func (d *Daemon) Ready() <-chan struct{} { return d.ready }

// CommandURL is the command server's base URL. Valid after Ready.
func (d *Daemon) CommandURL() string {
	if d.cmdServer == nil {
		return ""
	}
	return d.cmdServer.URL()
}

// NATSClientURL returns the NATS client URL.
func (d *Daemon) NATSClientURL() string {
	if d.nats == nil {
		return ""
	}
	return d.nats.ClientURL()
}

func (d *Daemon) shutdown() {
	if d.watcher != nil {
		d.watcher.Close()
	}
	// Tasks are cancelled first so pending queryFinal requests get their
	// final response before the servers drain.
	if d.dispatcher != nil {
		d.dispatcher.Close()
	}
	if d.cmdServer != nil {
		d.stopServer("command", d.cmdServer.Shutdown)
	}
	if d.apiServer != nil {
		d.stopServer("api", d.apiServer.Shutdown)
	}
	if d.webServer != nil {
		d.stopServer("web", d.webServer.Shutdown)
	}
	if d.script != nil {
		d.script.Close()
	}
	if d.registry != nil {
		d.registry.Close()
	}
	if d.nats != nil {
		d.nats.Close()
	}
}

// stopServer gives one server its own graceful shutdown window.
func (d *Daemon) stopServer(name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		d.logger.Warn().Err(err).Str("server", name).Msg("shutdown incomplete")
	}
}
