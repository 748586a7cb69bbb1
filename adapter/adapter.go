// Package adapter defines the pluggable output-sink contract and the
// lifecycle that starts, subscribes, and tears adapters down around a run.
// Adapters observe events; they never influence the run, and their errors
// are always isolated from it.
package adapter

import (
	"context"
	"fmt"

	"github.com/reactorflow/engine/bus"
	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/telemetry"
)

// Adapter is a named output sink subscribed to a subset of bus events for
// the lifetime of a run.
type Adapter struct {
	// Name identifies the adapter in logs and error reports.
	Name string
	// Patterns are the bus patterns this adapter observes.
	Patterns []string
	// OnStart, if set, runs once before the adapter's subscription is
	// installed. An error here aborts the whole run before it starts.
	OnStart func(ctx context.Context) error
	// OnSignal is invoked for every matching event. The engine does not
	// wait for it to return: it runs on its own goroutine, and an error or
	// panic is isolated and logged, never surfaced to the run.
	OnSignal func(ctx context.Context, evt event.Event) error
	// OnStop, if set, runs once during teardown. Errors are logged and
	// swallowed.
	OnStop func(ctx context.Context) error
}

// Lifecycle tracks the adapters started for one run so Stop can tear them
// all down deterministically.
type Lifecycle struct {
	adapters []Adapter
	unsubs   []func()
	logger   telemetry.Logger
}

// StartAll runs OnStart then subscribes OnSignal for every adapter, in
// order. If any adapter's OnStart fails, every adapter started so far is
// unwound (unsubscribed and OnStop'd) before the error is returned.
func StartAll(ctx context.Context, b *bus.Bus, adapters []Adapter, logger telemetry.Logger) (*Lifecycle, error) {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	l := &Lifecycle{logger: logger}
	for _, a := range adapters {
		if a.OnStart != nil {
			if err := a.OnStart(ctx); err != nil {
				l.StopAll(ctx)
				return nil, fmt.Errorf("adapter: %s onStart: %w", a.Name, err)
			}
		}
		a := a
		unsubscribe, err := b.Subscribe(a.Patterns, func(ctx context.Context, evt event.Event) error {
			if a.OnSignal == nil {
				return nil
			}
			go l.dispatch(ctx, a, evt)
			return nil
		})
		if err != nil {
			l.StopAll(ctx)
			return nil, fmt.Errorf("adapter: %s subscribe: %w", a.Name, err)
		}
		l.adapters = append(l.adapters, a)
		l.unsubs = append(l.unsubs, unsubscribe)
	}
	return l, nil
}

func (l *Lifecycle) dispatch(ctx context.Context, a Adapter, evt event.Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(ctx, "adapter onSignal panicked", "adapter", a.Name, "event", evt.Name(), "panic", r)
		}
	}()
	if err := a.OnSignal(ctx, evt); err != nil {
		l.logger.Warn(ctx, "adapter onSignal returned an error", "adapter", a.Name, "event", evt.Name(), "err", err)
	}
}

// StopAll unsubscribes every adapter and runs OnStop for each, in
// registration order. OnStop errors are logged and swallowed; StopAll
// itself never returns an error because teardown must always complete.
func (l *Lifecycle) StopAll(ctx context.Context) {
	for _, unsubscribe := range l.unsubs {
		unsubscribe()
	}
	for _, a := range l.adapters {
		if a.OnStop == nil {
			continue
		}
		if err := a.OnStop(ctx); err != nil {
			l.logger.Warn(ctx, "adapter onStop returned an error", "adapter", a.Name, "err", err)
		}
	}
}
