// Package event defines the immutable event record that flows across the
// reactive workflow engine's bus. Every piece of composition between agents,
// reducers, handlers, process managers, and adapters happens exclusively
// through events — there is no other channel for one part of a run to
// influence another.
package event

import "time"

// Source records the causal origin of an event: which agent or harness
// produced it, and which earlier event's delivery caused it to be emitted.
// All fields are optional; a root event (e.g. workflow:start) has the zero
// Source.
type Source struct {
	// Agent is the name of the agent that emitted the event, if any.
	Agent string
	// Harness is the name of the harness backend that produced the event,
	// set only for harness-family events forwarded verbatim by the harness
	// driver.
	Harness string
	// Parent is the ID of the event whose delivery produced this event.
	// Empty for root events.
	Parent string
}

// Event is an immutable record published on the bus. Once constructed via
// New, none of its fields may be mutated; the bus and every subscriber
// share the same value.
type Event struct {
	id        string
	name      string
	payload   any
	timestamp int64
	source    Source
}

// New constructs an Event. id must be unique and sortable within the run
// (see the ids package); timestamp is recorded as UTC milliseconds at
// construction time.
func New(id, name string, payload any, source Source) Event {
	return Event{
		id:        id,
		name:      name,
		payload:   payload,
		timestamp: time.Now().UTC().UnixMilli(),
		source:    source,
	}
}

// ID returns the event's unique, lexicographically sortable identifier.
func (e Event) ID() string { return e.id }

// Name returns the colon-delimited event name, e.g. "task:ready".
func (e Event) Name() string { return e.name }

// Payload returns the event's arbitrary structured payload.
func (e Event) Payload() any { return e.payload }

// Timestamp returns the UTC millisecond timestamp recorded at construction.
func (e Event) Timestamp() int64 { return e.timestamp }

// Source returns the causal metadata recorded for this event.
func (e Event) Source() Source { return e.source }

// ParentOf reports whether e is the direct causal child of parent, i.e.
// e.Source().Parent == parent.ID().
func (e Event) ParentOf(parent Event) bool {
	return e.source.Parent != "" && e.source.Parent == parent.id
}
