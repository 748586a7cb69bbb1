// Package file provides a signalstore.Store backed by one JSONL file per
// recording plus a per-recording metadata file, so recordings survive process
// restarts without requiring an external database.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/signalstore"
)

// Store persists recordings under dir: dir/<id>.meta.json and
// dir/<id>.events.jsonl.
type Store struct {
	mu    sync.Mutex
	dir   string
	nowFn func() time.Time
}

// New returns a Store rooted at dir. dir is created if it doesn't exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("signalstore/file: create dir: %w", err)
	}
	return &Store{dir: dir, nowFn: time.Now}, nil
}

func (s *Store) metaPath(id string) string   { return filepath.Join(s.dir, id+".meta.json") }
func (s *Store) eventsPath(id string) string { return filepath.Join(s.dir, id+".events.jsonl") }

func (s *Store) Create(_ context.Context, name string, tags []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	meta := signalstore.Metadata{ID: id, Name: name, Tags: tags, CreatedAt: s.nowFn()}
	if err := writeJSON(s.metaPath(id), meta); err != nil {
		return "", err
	}
	if f, err := os.Create(s.eventsPath(id)); err != nil {
		return "", fmt.Errorf("signalstore/file: create events file: %w", err)
	} else {
		f.Close()
	}
	return id, nil
}

func (s *Store) AppendBatch(_ context.Context, id string, events []event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.metaPath(id)); err != nil {
		return signalstore.ErrNotFound
	}
	f, err := os.OpenFile(s.eventsPath(id), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("signalstore/file: open events file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, evt := range events {
		if err := enc.Encode(wireEvent(evt)); err != nil {
			return fmt.Errorf("signalstore/file: append event: %w", err)
		}
	}
	return nil
}

func (s *Store) Finalize(_ context.Context, id string, durationMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := readMeta(s.metaPath(id))
	if err != nil {
		return err
	}
	meta.FinalizedAt = s.nowFn()
	meta.DurationMs = durationMs
	return writeJSON(s.metaPath(id), meta)
}

func (s *Store) Load(_ context.Context, id string) (*signalstore.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := readMeta(s.metaPath(id))
	if err != nil {
		return nil, err
	}
	events, err := readEvents(s.eventsPath(id))
	if err != nil {
		return nil, err
	}
	return &signalstore.Recording{Metadata: meta, Events: events}, nil
}

func (s *Store) List(_ context.Context, q signalstore.Query) ([]signalstore.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("signalstore/file: read dir: %w", err)
	}
	var out []signalstore.Metadata
	for _, e := range entries {
		const suffix = ".meta.json"
		if e.IsDir() || len(e.Name()) <= len(suffix) || e.Name()[len(e.Name())-len(suffix):] != suffix {
			continue
		}
		meta, err := readMeta(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		if q.Matches(meta) {
			out = append(out, meta)
		}
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.metaPath(id)); err != nil {
		return signalstore.ErrNotFound
	}
	os.Remove(s.eventsPath(id))
	return os.Remove(s.metaPath(id))
}

func (s *Store) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := os.Stat(s.metaPath(id))
	return err == nil, nil
}

// wireEvent/toEvent translate event.Event to and from a JSON-friendly
// shape, since event.Event itself exposes no exported fields to marshal.
type wireEventT struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Payload   any          `json:"payload"`
	Timestamp int64        `json:"timestamp"`
	Source    event.Source `json:"source"`
}

func wireEvent(evt event.Event) wireEventT {
	return wireEventT{
		ID:        evt.ID(),
		Name:      evt.Name(),
		Payload:   evt.Payload(),
		Timestamp: evt.Timestamp(),
		Source:    evt.Source(),
	}
}

// toEvent reconstructs an event.Event from its wire form. event.New always
// stamps the current time, so a replayed/reloaded event's timestamp is its
// reload time, not its original emission time; Source.Parent and ID, which
// matter for causal validation, are preserved exactly.
func (w wireEventT) toEvent() event.Event {
	return event.New(w.ID, w.Name, w.Payload, w.Source)
}

func writeJSON(path string, v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("signalstore/file: marshal: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("signalstore/file: write %s: %w", path, err)
	}
	return nil
}

func readMeta(path string) (signalstore.Metadata, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return signalstore.Metadata{}, signalstore.ErrNotFound
	}
	var meta signalstore.Metadata
	if err := json.Unmarshal(buf, &meta); err != nil {
		return signalstore.Metadata{}, fmt.Errorf("signalstore/file: unmarshal meta: %w", err)
	}
	return meta, nil
}

func readEvents(path string) ([]event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("signalstore/file: open events file: %w", err)
	}
	defer f.Close()

	var out []event.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var w wireEventT
		if err := json.Unmarshal(line, &w); err != nil {
			return nil, fmt.Errorf("signalstore/file: unmarshal event: %w", err)
		}
		out = append(out, w.toEvent())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("signalstore/file: scan events file: %w", err)
	}
	return out, nil
}

var _ signalstore.Store = (*Store)(nil)
