// Package registry announces command server connections on NATS and keeps
// a table of the connections other components announced.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tmt-csw/gocsw/pkg/protocol"
)

type componentState struct {
	Registration protocol.Registration
	RegisteredAt time.Time
}

// Registry tracks announced components, keyed by connection.
type Registry struct {
	mu         sync.RWMutex
	components map[string]*componentState
	logger     zerolog.Logger
	subs       []*nats.Subscription
}

// New creates a Registry and subscribes to the announce subjects.
func New(nc *nats.Conn, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		components: make(map[string]*componentState),
		logger:     logger.With().Str("component", "registry").Logger(),
	}

	regSub, err := nc.Subscribe(protocol.SubjectRegister, r.handleRegister)
	if err != nil {
		return nil, err
	}
	unregSub, err := nc.Subscribe(protocol.SubjectUnregister, r.handleUnregister)
	if err != nil {
		regSub.Unsubscribe()
		return nil, err
	}
	r.subs = []*nats.Subscription{regSub, unregSub}

	r.logger.Info().Msg("component registry started")
	return r, nil
}

func connectionKey(reg protocol.Registration) string {
	return reg.ComponentType + "/" + reg.Name + "/" + reg.ConnectionType
}

func (r *Registry) handleRegister(msg *nats.Msg) {
	var reg protocol.Registration
	if err := json.Unmarshal(msg.Data, &reg); err != nil {
		r.logger.Error().Err(err).Msg("bad registration message")
		return
	}
	r.mu.Lock()
	key := connectionKey(reg)
	if existing, ok := r.components[key]; ok {
		existing.Registration = reg
	} else {
		r.components[key] = &componentState{Registration: reg, RegisteredAt: time.Now()}
	}
	r.mu.Unlock()
	r.logger.Info().Str("name", reg.Name).Str("type", reg.ComponentType).Str("uri", reg.URI).Msg("component registered")
}

func (r *Registry) handleUnregister(msg *nats.Msg) {
	var reg protocol.Registration
	if err := json.Unmarshal(msg.Data, &reg); err != nil {
		r.logger.Error().Err(err).Msg("bad unregister message")
		return
	}
	r.mu.Lock()
	delete(r.components, connectionKey(reg))
	r.mu.Unlock()
	r.logger.Info().Str("name", reg.Name).Str("type", reg.ComponentType).Msg("component unregistered")
}

// Components returns a snapshot of all known components sorted by name.
func (r *Registry) Components() []protocol.ComponentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]protocol.ComponentInfo, 0, len(r.components))
	for _, s := range r.components {
		result = append(result, protocol.ComponentInfo{
			Registration: s.Registration,
			RegisteredAt: s.RegisteredAt,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ComponentType < result[j].ComponentType
	})
	return result
}

// Count returns the number of known components.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}

// Close unsubscribes from NATS.
func (r *Registry) Close() {
	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
}

// Announcer publishes this process's registrations. It satisfies
// commandserver.Registrar.
type Announcer struct {
	nc     *nats.Conn
	logger zerolog.Logger
}

// NewAnnouncer creates an Announcer publishing on nc.
func NewAnnouncer(nc *nats.Conn, logger zerolog.Logger) *Announcer {
	return &Announcer{nc: nc, logger: logger.With().Str("component", "announcer").Logger()}
}

func (a *Announcer) Register(ctx context.Context, reg protocol.Registration) error {
	return a.publish(ctx, protocol.SubjectRegister, reg)
}

func (a *Announcer) Unregister(ctx context.Context, reg protocol.Registration) error {
	return a.publish(ctx, protocol.SubjectUnregister, reg)
}

func (a *Announcer) publish(ctx context.Context, subject string, reg protocol.Registration) error {
	data, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	if err := a.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := a.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	a.logger.Debug().Str("subject", subject).Str("uri", reg.URI).Msg("announced")
	return nil
}
