// Package inmem provides a process-local signalstore.Store backed by a map.
// It is the default store for demos, single-process tests, and any run
// that doesn't need recordings to outlive the process.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/signalstore"
)

// Store is a goroutine-safe, in-memory signalstore.Store.
type Store struct {
	mu    sync.Mutex
	byID  map[string]*signalstore.Recording
	nowFn func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{byID: make(map[string]*signalstore.Recording), nowFn: time.Now}
}

// Reset discards every recording. Intended for tests.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*signalstore.Recording)
}

func (s *Store) Create(_ context.Context, name string, tags []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New().String()
	s.byID[id] = &signalstore.Recording{
		Metadata: signalstore.Metadata{
			ID:        id,
			Name:      name,
			Tags:      append([]string(nil), tags...),
			CreatedAt: s.nowFn(),
		},
	}
	return id, nil
}

func (s *Store) AppendBatch(_ context.Context, id string, events []event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return signalstore.ErrNotFound
	}
	rec.Events = append(rec.Events, events...)
	return nil
}

func (s *Store) Finalize(_ context.Context, id string, durationMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return signalstore.ErrNotFound
	}
	rec.Metadata.FinalizedAt = s.nowFn()
	rec.Metadata.DurationMs = durationMs
	return nil
}

func (s *Store) Load(_ context.Context, id string) (*signalstore.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, signalstore.ErrNotFound
	}
	cp := *rec
	cp.Events = append([]event.Event(nil), rec.Events...)
	return &cp, nil
}

func (s *Store) List(_ context.Context, q signalstore.Query) ([]signalstore.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]signalstore.Metadata, 0, len(s.byID))
	for _, rec := range s.byID {
		if q.Matches(rec.Metadata) {
			out = append(out, rec.Metadata)
		}
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return signalstore.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *Store) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byID[id]
	return ok, nil
}

var _ signalstore.Store = (*Store)(nil)
