// Package redis provides a signalstore.Store backed by Redis, suitable for
// sharing recordings across multiple engine processes. Each recording's
// metadata is stored as a JSON-encoded string key and its events as a list
// of JSON-encoded entries, with a set indexing every recording id,
// mirroring the connection-in, typed-client-out layering used elsewhere in
// this module's Redis-backed components.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/signalstore"
)

const defaultKeyPrefix = "reactorflow:recording:"

// Options configures the Redis-backed store.
type Options struct {
	// Client is the Redis connection to use. Required.
	Client *redis.Client
	// KeyPrefix namespaces every key the store writes. Defaults to
	// "reactorflow:recording:".
	KeyPrefix string
	// OperationTimeout bounds individual Redis calls. Zero means no timeout.
	OperationTimeout time.Duration
}

// Store is a Redis-backed signalstore.Store.
type Store struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// New constructs a Store. opts.Client is required.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("signalstore/redis: redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Store{client: opts.Client, prefix: prefix, timeout: opts.OperationTimeout}, nil
}

func (s *Store) metaKey(id string) string   { return s.prefix + id + ":meta" }
func (s *Store) eventsKey(id string) string { return s.prefix + id + ":events" }
func (s *Store) indexKey() string           { return s.prefix + "index" }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Create(ctx context.Context, name string, tags []string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	id := uuid.New().String()
	meta := signalstore.Metadata{ID: id, Name: name, Tags: tags, CreatedAt: time.Now()}
	buf, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("signalstore/redis: marshal metadata: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.metaKey(id), buf, 0)
	pipe.SAdd(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("signalstore/redis: create: %w", err)
	}
	return id, nil
}

func (s *Store) AppendBatch(ctx context.Context, id string, events []event.Event) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if ok, err := s.Exists(ctx, id); err != nil {
		return err
	} else if !ok {
		return signalstore.ErrNotFound
	}
	if len(events) == 0 {
		return nil
	}
	encoded := make([]any, len(events))
	for i, evt := range events {
		buf, err := json.Marshal(toWire(evt))
		if err != nil {
			return fmt.Errorf("signalstore/redis: marshal event: %w", err)
		}
		encoded[i] = buf
	}
	if err := s.client.RPush(ctx, s.eventsKey(id), encoded...).Err(); err != nil {
		return fmt.Errorf("signalstore/redis: append: %w", err)
	}
	return nil
}

func (s *Store) Finalize(ctx context.Context, id string, durationMs int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	meta, err := s.loadMeta(ctx, id)
	if err != nil {
		return err
	}
	meta.FinalizedAt = time.Now()
	meta.DurationMs = durationMs
	buf, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("signalstore/redis: marshal metadata: %w", err)
	}
	return s.client.Set(ctx, s.metaKey(id), buf, 0).Err()
}

func (s *Store) Load(ctx context.Context, id string) (*signalstore.Recording, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	meta, err := s.loadMeta(ctx, id)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.LRange(ctx, s.eventsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("signalstore/redis: load events: %w", err)
	}
	events := make([]event.Event, 0, len(raw))
	for _, r := range raw {
		var w wireEvent
		if err := json.Unmarshal([]byte(r), &w); err != nil {
			return nil, fmt.Errorf("signalstore/redis: unmarshal event: %w", err)
		}
		events = append(events, w.toEvent())
	}
	return &signalstore.Recording{Metadata: meta, Events: events}, nil
}

func (s *Store) List(ctx context.Context, q signalstore.Query) ([]signalstore.Metadata, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("signalstore/redis: list index: %w", err)
	}
	var out []signalstore.Metadata
	for _, id := range ids {
		meta, err := s.loadMeta(ctx, id)
		if err != nil {
			continue
		}
		if q.Matches(meta) {
			out = append(out, meta)
		}
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if ok, err := s.Exists(ctx, id); err != nil {
		return err
	} else if !ok {
		return signalstore.ErrNotFound
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.metaKey(id), s.eventsKey(id))
	pipe.SRem(ctx, s.indexKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.metaKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("signalstore/redis: exists: %w", err)
	}
	return n > 0, nil
}

func (s *Store) loadMeta(ctx context.Context, id string) (signalstore.Metadata, error) {
	buf, err := s.client.Get(ctx, s.metaKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return signalstore.Metadata{}, signalstore.ErrNotFound
	}
	if err != nil {
		return signalstore.Metadata{}, fmt.Errorf("signalstore/redis: load metadata: %w", err)
	}
	var meta signalstore.Metadata
	if err := json.Unmarshal(buf, &meta); err != nil {
		return signalstore.Metadata{}, fmt.Errorf("signalstore/redis: unmarshal metadata: %w", err)
	}
	return meta, nil
}

type wireEvent struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Payload   any          `json:"payload"`
	Timestamp int64        `json:"timestamp"`
	Source    event.Source `json:"source"`
}

func toWire(evt event.Event) wireEvent {
	return wireEvent{
		ID:        evt.ID(),
		Name:      evt.Name(),
		Payload:   evt.Payload(),
		Timestamp: evt.Timestamp(),
		Source:    evt.Source(),
	}
}

func (w wireEvent) toEvent() event.Event {
	return event.New(w.ID, w.Name, w.Payload, w.Source)
}

var _ signalstore.Store = (*Store)(nil)
