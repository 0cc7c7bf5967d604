// Package eventservice stores and distributes events through a NATS
// JetStream key-value bucket. Each event is kept under its key
// (source + "." + eventName); only the latest value is retained.
package eventservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/tmt-csw/gocsw/pkg/event"
)

// DefaultBucket is the KV bucket used when none is configured.
const DefaultBucket = "csw_events"

// Publisher writes events.
type Publisher interface {
	Publish(ctx context.Context, e event.Event) error
}

// Subscriber reads events.
type Subscriber interface {
	Get(ctx context.Context, key string) (event.Event, error)
	Subscribe(ctx context.Context, keys []string, cb func(event.Event)) (*Subscription, error)
	SubscribePattern(ctx context.Context, pattern string, cb func(event.Event)) (*Subscription, error)
}

// Config selects and shapes the KV bucket.
type Config struct {
	Bucket   string
	History  uint8
	InMemory bool
}

// Service is both Publisher and Subscriber.
type Service struct {
	kv     jetstream.KeyValue
	logger zerolog.Logger
}

// Open creates the bucket described by cfg, or updates it if it exists.
func Open(ctx context.Context, js jetstream.JetStream, cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.History == 0 {
		cfg.History = 1
	}
	storage := jetstream.FileStorage
	if cfg.InMemory {
		storage = jetstream.MemoryStorage
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "CSW event service",
		History:     cfg.History,
		Storage:     storage,
	})
	if err != nil {
		return nil, fmt.Errorf("open event bucket %s: %w", cfg.Bucket, err)
	}
	logger = logger.With().Str("component", "eventservice").Str("bucket", cfg.Bucket).Logger()
	logger.Info().Msg("event service ready")
	return &Service{kv: kv, logger: logger}, nil
}

// Publish stores e under e.Key(), replacing the previous value.
func (s *Service) Publish(ctx context.Context, e event.Event) error {
	data, err := e.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.Key(), err)
	}
	if _, err := s.kv.Put(ctx, e.Key(), data); err != nil {
		return fmt.Errorf("publish %s: %w", e.Key(), err)
	}
	s.logger.Debug().Str("key", e.Key()).Str("event_id", e.EventID).Msg("event published")
	return nil
}

// Get returns the latest event stored under key, or event.Invalid(key) if
// nothing has been published there.
func (s *Service) Get(ctx context.Context, key string) (event.Event, error) {
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return event.Invalid(key), nil
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("get %s: %w", key, err)
	}
	return event.UnmarshalEvent(entry.Value())
}

// Keys lists the keys that currently hold an event.
func (s *Service) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	return keys, err
}

// Subscribe calls cb with the current value of each key, then with every
// update, until ctx ends or the subscription is stopped. Entries that fail
// to decode are logged and skipped.
func (s *Service) Subscribe(ctx context.Context, keys []string, cb func(event.Event)) (*Subscription, error) {
	if len(keys) == 0 {
		return nil, errors.New("subscribe: no event keys")
	}
	w, err := s.kv.WatchFiltered(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("subscribe %v: %w", keys, err)
	}
	return s.start(ctx, w, cb), nil
}

// SubscribePattern is Subscribe for a key pattern using NATS wildcards,
// e.g. "CSW.ncc.*" or "CSW.>".
func (s *Service) SubscribePattern(ctx context.Context, pattern string, cb func(event.Event)) (*Subscription, error) {
	w, err := s.kv.Watch(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", pattern, err)
	}
	return s.start(ctx, w, cb), nil
}

func (s *Service) start(ctx context.Context, w jetstream.KeyWatcher, cb func(event.Event)) *Subscription {
	sub := &Subscription{watcher: w, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-w.Updates():
				if !ok {
					return
				}
				// nil marks the end of the initial values.
				if entry == nil || entry.Operation() != jetstream.KeyValuePut {
					continue
				}
				e, err := event.UnmarshalEvent(entry.Value())
				if err != nil {
					s.logger.Warn().Err(err).Str("key", entry.Key()).Msg("skipping undecodable event")
					continue
				}
				cb(e)
			}
		}
	}()
	return sub
}

// Subscription is a running event subscription.
type Subscription struct {
	watcher jetstream.KeyWatcher
	done    chan struct{}
}

// Stop ends the subscription. The callback is not called after the
// channel returned by Done is closed.
func (s *Subscription) Stop() error { return s.watcher.Stop() }

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }
