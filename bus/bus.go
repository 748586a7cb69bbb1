// Package bus implements the event bus: pattern-matched, synchronous,
// depth-first fan-out delivery plus an append-only history buffer.
//
// Publish semantics follow a strict contract: for a given Publish call,
// every matching listener runs to completion, in registration order,
// before Publish returns. If a listener itself publishes an event, that
// recursive delivery completes in full — including any further nested
// publishes — before the outer listener's next statement runs. This
// depth-first ordering is what gives every event in a run a deterministic
// delivery order (see scheduler and pipeline for how that's exploited).
//
// Listener errors are isolated: they are reported to an optional logger and
// never propagate out of Publish, and they never stop delivery to the
// remaining listeners.
package bus

import (
	"context"
	"sync"

	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/pattern"
	"github.com/reactorflow/engine/telemetry"
)

// Listener reacts to a delivered event. Listeners run synchronously on the
// publisher's goroutine; any asynchronous work they start is the listener's
// own responsibility to track (the bus itself never awaits anything). A
// returned error is logged and isolated — it never stops delivery to other
// listeners and never propagates out of Publish.
type Listener func(ctx context.Context, evt event.Event) error

// Bus is the event bus: pattern-matched subscription, ordered synchronous
// fan-out, and an append-only history of everything published.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	nextID uint64
	hist   []event.Event
	logger telemetry.Logger
}

type subscription struct {
	id       uint64
	patterns []pattern.Pattern
	listener Listener
	closed   bool
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithLogger attaches a logger used to report listener panics. Listener
// errors are never propagated regardless of whether a logger is attached.
func WithLogger(logger telemetry.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// New constructs an empty Bus ready for subscription and publishing.
func New(opts ...Option) *Bus {
	b := &Bus{logger: telemetry.NewNoopLogger()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe compiles each pattern and registers listener to receive every
// future event whose name matches at least one of them. The returned
// unsubscribe function is idempotent.
//
// Subscribe returns an error only if one of the patterns fails to compile
// (see pattern.Compile).
func (b *Bus) Subscribe(patterns []string, listener Listener) (func(), error) {
	compiled := make([]pattern.Pattern, 0, len(patterns))
	for _, p := range patterns {
		cp, err := pattern.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, cp)
	}

	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, patterns: compiled, listener: listener}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			for i, s := range b.subs {
				if s == sub {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					break
				}
			}
			sub.closed = true
			b.mu.Unlock()
		})
	}, nil
}

// Publish appends evt to the history and synchronously delivers it, in
// registration order, to every subscription with a matching pattern.
// Listener panics are recovered, logged, and never propagate; Publish
// always returns after every matching listener has run to completion.
func (b *Bus) Publish(ctx context.Context, evt event.Event) {
	b.mu.Lock()
	b.hist = append(b.hist, evt)
	snapshot := make([]*subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, sub := range snapshot {
		if sub.closed {
			continue
		}
		if !matchesAny(sub.patterns, evt.Name()) {
			continue
		}
		b.invoke(ctx, sub, evt)
	}
}

func (b *Bus) invoke(ctx context.Context, sub *subscription, evt event.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(ctx, "bus listener panicked",
				"event", evt.Name(), "subscription", sub.id, "panic", r)
		}
	}()
	if err := sub.listener(ctx, evt); err != nil {
		b.logger.Warn(ctx, "bus listener returned an error",
			"event", evt.Name(), "subscription", sub.id, "err", err)
	}
}

func matchesAny(patterns []pattern.Pattern, name string) bool {
	for _, p := range patterns {
		if p.Match(name) {
			return true
		}
	}
	return false
}

// History returns every event published so far, oldest first. The returned
// slice is a copy; mutating it does not affect the bus.
func (b *Bus) History() []event.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]event.Event, len(b.hist))
	copy(out, b.hist)
	return out
}

// Len reports the number of events published so far.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.hist)
}
