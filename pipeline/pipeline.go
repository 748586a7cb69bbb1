// Package pipeline implements the update pipeline: reducers, handlers, and
// process managers subscribed on the bus ahead of any agent, so every
// matching event folds into state (and fans out derived events) in a fixed
// 1-2-3 order before an agent ever sees it.
package pipeline

import (
	"context"
	"fmt"

	"github.com/reactorflow/engine/bus"
	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/ids"
	"github.com/reactorflow/engine/runerr"
	"github.com/reactorflow/engine/statebox"
	"github.com/reactorflow/engine/telemetry"
)

// Reducer receives a mutable draft of state for a matching event and may
// mutate it. Reducers may not emit; the produced state is installed and the
// bus moves on to handlers. Reducers must be synchronous so state
// installation stays atomic — asynchronous work belongs in agents.
type Reducer[S any] func(ctx context.Context, draft *S, evt event.Event) error

// Handler receives a mutable draft of state for a matching event, mutates
// it, and may return events to emit once its mutation has been installed.
// The ID set on a returned event is ignored: the pipeline re-stamps every
// derived event with the run's shared ID generator before publishing it, so
// handler authors never construct their own run-unique IDs.
type Handler[S any] func(ctx context.Context, draft *S, evt event.Event) ([]event.Event, error)

// ProcessManager receives a readonly snapshot of already-committed state and
// returns events to emit. It may not mutate state. As with Handler, the ID
// on a returned event is ignored and replaced by the pipeline.
type ProcessManager[S any] func(ctx context.Context, state S, evt event.Event) ([]event.Event, error)

// ReducerEntry binds a Reducer to the patterns that trigger it.
type ReducerEntry[S any] struct {
	Patterns []string
	Reducer  Reducer[S]
}

// HandlerEntry binds a Handler to the patterns that trigger it.
type HandlerEntry[S any] struct {
	Patterns []string
	Handler  Handler[S]
}

// ProcessEntry binds a ProcessManager to the patterns that trigger it.
type ProcessEntry[S any] struct {
	Patterns []string
	Process  ProcessManager[S]
}

// Config configures a Pipeline for one run.
type Config[S any] struct {
	Bus       *bus.Bus
	State     *statebox.Box[S]
	IDs       *ids.Generator
	Reducers  []ReducerEntry[S]
	Handlers  []HandlerEntry[S]
	Processes []ProcessEntry[S]
	Errors    *runerr.Recorder
	Logger    telemetry.Logger
}

// Pipeline owns the bus subscriptions for a run's reducers, handlers, and
// process managers.
type Pipeline[S any] struct {
	bus       *bus.Bus
	state     *statebox.Box[S]
	idgen     *ids.Generator
	reducers  []ReducerEntry[S]
	handlers  []HandlerEntry[S]
	processes []ProcessEntry[S]
	errs      *runerr.Recorder
	logger    telemetry.Logger

	unsubs []func()
}

// New constructs a Pipeline from cfg. It does not subscribe anything yet;
// call Register to do that.
func New[S any](cfg Config[S]) *Pipeline[S] {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	errs := cfg.Errors
	if errs == nil {
		errs = &runerr.Recorder{}
	}
	idgen := cfg.IDs
	if idgen == nil {
		idgen = ids.New()
	}
	return &Pipeline[S]{
		bus:       cfg.Bus,
		state:     cfg.State,
		idgen:     idgen,
		reducers:  cfg.Reducers,
		handlers:  cfg.Handlers,
		processes: cfg.Processes,
		errs:      errs,
		logger:    logger,
	}
}

// Register subscribes every reducer, then every handler, then every process
// manager, each keyed on its own declared patterns. Because bus dispatch
// runs listeners in registration order, this ordering alone guarantees the
// reducers-then-handlers-then-processes sequence for any single event that
// happens to match entries in more than one category. Register must be
// called before any agent subscribes, so agents always observe
// already-folded state.
func (p *Pipeline[S]) Register() error {
	for i, entry := range p.reducers {
		entry := entry
		unsubscribe, err := p.bus.Subscribe(entry.Patterns, p.reducerListener(entry.Reducer))
		if err != nil {
			return fmt.Errorf("pipeline: subscribe reducer %d: %w", i, err)
		}
		p.unsubs = append(p.unsubs, unsubscribe)
	}
	for i, entry := range p.handlers {
		entry := entry
		unsubscribe, err := p.bus.Subscribe(entry.Patterns, p.handlerListener(entry.Handler))
		if err != nil {
			return fmt.Errorf("pipeline: subscribe handler %d: %w", i, err)
		}
		p.unsubs = append(p.unsubs, unsubscribe)
	}
	for i, entry := range p.processes {
		entry := entry
		unsubscribe, err := p.bus.Subscribe(entry.Patterns, p.processListener(entry.Process))
		if err != nil {
			return fmt.Errorf("pipeline: subscribe process manager %d: %w", i, err)
		}
		p.unsubs = append(p.unsubs, unsubscribe)
	}
	return nil
}

// Close unsubscribes every reducer, handler, and process manager. Safe to
// call more than once.
func (p *Pipeline[S]) Close() {
	for _, unsubscribe := range p.unsubs {
		unsubscribe()
	}
	p.unsubs = nil
}

// reducerListener installs the draft state produced by reducer against evt.
// A reducer error is recorded as fatal to the run: the engine does not
// silently swallow buggy update logic, it just can't stop bus dispatch
// mid-emission, so the error goes into errs instead of up the call stack.
func (p *Pipeline[S]) reducerListener(reducer Reducer[S]) bus.Listener {
	return func(ctx context.Context, evt event.Event) error {
		err := p.state.Update(func(draft *S) error {
			return reducer(ctx, draft, evt)
		})
		if err != nil {
			p.logger.Error(ctx, "reducer failed", "event", evt.Name(), "err", err)
			p.errs.Record(fmt.Errorf("pipeline: reducer for %s: %w", evt.Name(), err))
		}
		return nil
	}
}

// handlerListener installs the draft state produced by handler against evt,
// then emits every event the handler returned, in order, after the mutation
// has committed.
func (p *Pipeline[S]) handlerListener(handler Handler[S]) bus.Listener {
	return func(ctx context.Context, evt event.Event) error {
		var derived []event.Event
		err := p.state.Update(func(draft *S) error {
			out, herr := handler(ctx, draft, evt)
			if herr != nil {
				return herr
			}
			derived = out
			return nil
		})
		if err != nil {
			p.logger.Error(ctx, "handler failed", "event", evt.Name(), "err", err)
			p.errs.Record(fmt.Errorf("pipeline: handler for %s: %w", evt.Name(), err))
			return nil
		}
		for _, d := range derived {
			p.bus.Publish(ctx, p.stamp(d))
		}
		return nil
	}
}

// processListener runs process against a readonly snapshot of already
// committed state and emits every event it returns.
func (p *Pipeline[S]) processListener(process ProcessManager[S]) bus.Listener {
	return func(ctx context.Context, evt event.Event) error {
		snap := p.state.Snapshot()
		out, err := process(ctx, snap, evt)
		if err != nil {
			p.logger.Error(ctx, "process manager failed", "event", evt.Name(), "err", err)
			p.errs.Record(fmt.Errorf("pipeline: process manager for %s: %w", evt.Name(), err))
			return nil
		}
		for _, d := range out {
			p.bus.Publish(ctx, p.stamp(d))
		}
		return nil
	}
}

// stamp re-issues d with a fresh, run-unique ID from the pipeline's shared
// generator, keeping its name, payload, and source as the handler or process
// manager set them. This is what makes the "engine assigns every event id"
// invariant hold for pipeline-derived events the same way it holds for
// scheduler-derived ones.
func (p *Pipeline[S]) stamp(d event.Event) event.Event {
	return event.New(p.idgen.Next(), d.Name(), d.Payload(), d.Source())
}
