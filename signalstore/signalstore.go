// Package signalstore defines the recording persistence contract consumed
// by the recorder and replayer, plus the Recording/Metadata shapes stores
// exchange. Concrete backends live in signalstore/inmem, signalstore/file,
// signalstore/redis, and signalstore/mongo.
package signalstore

import (
	"context"
	"errors"
	"time"

	"github.com/reactorflow/engine/event"
)

// ErrNotFound is returned by Load and Delete when id names no recording.
var ErrNotFound = errors.New("signalstore: recording not found")

// Metadata describes a recording without its event body.
type Metadata struct {
	ID          string
	Name        string
	Tags        []string
	CreatedAt   time.Time
	FinalizedAt time.Time
	DurationMs  int64
}

// Finalized reports whether the recording has been closed out via Finalize.
func (m Metadata) Finalized() bool { return !m.FinalizedAt.IsZero() }

// Recording is a finalized or in-progress event log plus its metadata.
// Events are in emission order; stores must never reorder them.
type Recording struct {
	Metadata Metadata
	Events   []event.Event
}

// Query filters List results. A zero-value Query matches every recording.
type Query struct {
	NamePrefix string
	Tag        string
}

// Matches reports whether m satisfies q.
func (q Query) Matches(m Metadata) bool {
	if q.NamePrefix != "" && !hasPrefix(m.Name, q.NamePrefix) {
		return false
	}
	if q.Tag != "" {
		found := false
		for _, t := range m.Tags {
			if t == q.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Store is the persistence contract for recordings: events are only ever
// appended, in order, and Finalize records the total duration. The stores
// in this module do not reject AppendBatch or Finalize on a recording that
// is already finalized.
type Store interface {
	// Create starts a new recording and returns its id.
	Create(ctx context.Context, name string, tags []string) (id string, err error)
	// AppendBatch appends events to the open recording id, in order.
	AppendBatch(ctx context.Context, id string, events []event.Event) error
	// Finalize closes the recording id out, recording its total duration.
	Finalize(ctx context.Context, id string, durationMs int64) error
	// Load returns the full recording for id, or ErrNotFound.
	Load(ctx context.Context, id string) (*Recording, error)
	// List returns metadata for every recording matching q.
	List(ctx context.Context, q Query) ([]Metadata, error)
	// Delete removes the recording id, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
	// Exists reports whether id names a recording.
	Exists(ctx context.Context, id string) (bool, error)
}
