// Package recorder implements record mode (buffering every event a run
// emits and flushing it to a signalstore.Store) and replay mode (re-driving
// agent activations from a previously recorded harness sequence instead of
// calling a live harness).
package recorder

import (
	"context"
	"fmt"
	"sync"

	"github.com/reactorflow/engine/bus"
	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/harness"
	"github.com/reactorflow/engine/signalstore"
)

// Recorder buffers every event published on a bus and flushes the buffer to
// a store when the run ends.
type Recorder struct {
	store       signalstore.Store
	id          string
	mu          sync.Mutex
	buf         []event.Event
	unsubscribe func()
}

// Start creates a new recording in store and begins buffering every event
// bus publishes, across the lifetime of the run.
func Start(ctx context.Context, b *bus.Bus, store signalstore.Store, name string, tags []string) (*Recorder, error) {
	id, err := store.Create(ctx, name, tags)
	if err != nil {
		return nil, fmt.Errorf("recorder: create recording: %w", err)
	}
	r := &Recorder{store: store, id: id}
	unsubscribe, err := b.Subscribe([]string{"**"}, func(_ context.Context, evt event.Event) error {
		r.mu.Lock()
		r.buf = append(r.buf, evt)
		r.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recorder: subscribe: %w", err)
	}
	r.unsubscribe = unsubscribe
	return r, nil
}

// ID returns the recording's store-assigned id.
func (r *Recorder) ID() string { return r.id }

// Flush stops buffering, appends everything buffered to the store, and
// finalizes the recording with durationMs. Flush is idempotent in the sense
// that calling it more than once is safe, though only the first call has
// anything left to append.
func (r *Recorder) Flush(ctx context.Context, durationMs int64) error {
	r.unsubscribe()

	r.mu.Lock()
	batch := r.buf
	r.buf = nil
	r.mu.Unlock()

	if len(batch) > 0 {
		if err := r.store.AppendBatch(ctx, r.id, batch); err != nil {
			return fmt.Errorf("recorder: append batch: %w", err)
		}
	}
	if err := r.store.Finalize(ctx, r.id, durationMs); err != nil {
		return fmt.Errorf("recorder: finalize: %w", err)
	}
	return nil
}

// Replayer re-drives agent activations from a loaded recording's harness
// sequences in order, instead of invoking a live harness.
type Replayer struct {
	recording *signalstore.Recording
	mu        sync.Mutex
	cursor    int
}

// NewReplayer wraps rec for sequential replay. Concurrent activations share
// one Replayer and one cursor: sequences are handed out in the order
// activations call Next, which matches how the recording's agents
// originally activated only if the replayed workflow's agent set and
// trigger order match the recording's.
func NewReplayer(rec *signalstore.Recording) *Replayer {
	return &Replayer{recording: rec}
}

// ErrExhausted is returned when Next is called after every harness sequence
// in the recording has already been replayed.
var ErrExhausted = fmt.Errorf("recorder: no more recorded harness sequences")

// Next scans the recording forward from the current cursor for the next
// harness sequence (a maximal run of harness-family events ending in
// harness:end), re-emits it verbatim via publish, advances the cursor past
// it, and returns the extracted output.
func (r *Replayer) Next(schema []byte, publish func(event.Event)) (harness.Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.recording.Events
	i := r.cursor
	for i < len(events) && !harness.IsFamilyEvent(events[i].Name()) {
		i++
	}
	if i >= len(events) {
		return harness.Output{}, ErrExhausted
	}

	var out harness.Output
	found := false
	for ; i < len(events); i++ {
		evt := events[i]
		publish(evt)
		if evt.Name() == "harness:end" {
			out = harness.FinalizeOutput(evt.Payload(), schema)
			found = true
			i++
			break
		}
	}
	r.cursor = i
	if !found {
		return harness.Output{}, harness.ErrNoTerminalEvent
	}
	return out, nil
}
