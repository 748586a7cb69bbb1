// Package scheduler implements the activation scheduler: it subscribes
// every configured agent on its activation patterns, evaluates guards,
// drives harness turns (live or replayed), writes declared state updates,
// detects endWhen termination, fans out declared emits, and tracks the
// pending set so a run can wait for quiescence.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/reactorflow/engine/agent"
	"github.com/reactorflow/engine/bus"
	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/harness"
	"github.com/reactorflow/engine/ids"
	"github.com/reactorflow/engine/recorder"
	"github.com/reactorflow/engine/runerr"
	"github.com/reactorflow/engine/statebox"
	"github.com/reactorflow/engine/telemetry"
)

// TimeoutError is returned by Drain when the run's configured timeout
// elapses before the pending set empties.
type TimeoutError struct {
	TimeoutMs int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("scheduler: run timed out after %dms", e.TimeoutMs)
}

// Config configures a Scheduler for one run.
type Config[S any] struct {
	Bus            *bus.Bus
	State          *statebox.Box[S]
	IDs            *ids.Generator
	Agents         map[string]agent.Definition[S]
	DefaultHarness harness.Harness
	Input          any
	EndWhen        func(S) bool
	Abort          *harness.AbortFlag
	Replayer       *recorder.Replayer
	Logger         telemetry.Logger
	Metrics        telemetry.Metrics
	Errors         *runerr.Recorder
	RunID          string
}

// Scheduler drives agent activation for one run.
type Scheduler[S any] struct {
	bus            *bus.Bus
	state          *statebox.Box[S]
	idgen          *ids.Generator
	agents         map[string]agent.Definition[S]
	defaultHarness harness.Harness
	input          any
	endWhen        func(S) bool
	abort          *harness.AbortFlag
	replayer       *recorder.Replayer
	logger         telemetry.Logger
	metrics        telemetry.Metrics
	errs           *runerr.Recorder
	runID          string

	mu          sync.Mutex
	cond        *sync.Cond
	pending     map[string]struct{}
	terminated  bool
	termEarly   bool
	activations int64

	unsubs []func()
}

// New constructs a Scheduler from cfg. It does not subscribe anything yet;
// call Register to do that.
func New[S any](cfg Config[S]) *Scheduler[S] {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	errs := cfg.Errors
	if errs == nil {
		errs = &runerr.Recorder{}
	}
	s := &Scheduler[S]{
		bus:            cfg.Bus,
		state:          cfg.State,
		idgen:          cfg.IDs,
		agents:         cfg.Agents,
		defaultHarness: cfg.DefaultHarness,
		input:          cfg.Input,
		endWhen:        cfg.EndWhen,
		abort:          cfg.Abort,
		replayer:       cfg.Replayer,
		logger:         logger,
		metrics:        metrics,
		errs:           errs,
		runID:          cfg.RunID,
		pending:        make(map[string]struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Register subscribes every configured agent on its declared activation
// patterns. It must be called once, after reducers/handlers/processes have
// already been subscribed, so the 1-2-3 dispatch order in package pipeline
// holds for every event (agents subscribe last).
func (s *Scheduler[S]) Register() error {
	for name, def := range s.agents {
		name, def := name, def
		if err := def.Validate(name); err != nil {
			return err
		}
		unsubscribe, err := s.bus.Subscribe(def.Patterns, s.onTrigger(name, def))
		if err != nil {
			return fmt.Errorf("scheduler: subscribe agent %s: %w", name, err)
		}
		s.unsubs = append(s.unsubs, unsubscribe)
	}
	return nil
}

// Close unsubscribes every agent. Safe to call more than once.
func (s *Scheduler[S]) Close() {
	for _, unsubscribe := range s.unsubs {
		unsubscribe()
	}
	s.unsubs = nil
}

// Activations returns the number of activations launched so far.
func (s *Scheduler[S]) Activations() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activations
}

// TerminatedEarly reports whether endWhen fired during this run.
func (s *Scheduler[S]) TerminatedEarly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.termEarly
}

func (s *Scheduler[S]) isTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return true
	}
	if s.abort != nil {
		select {
		case <-s.abort.Done():
			return true
		default:
		}
	}
	return false
}

// markTerminated marks the run terminated and reports whether this call was
// the one that transitioned it (so only one workflow:terminating is ever
// emitted).
func (s *Scheduler[S]) markTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return false
	}
	s.terminated = true
	s.termEarly = true
	return true
}

func (s *Scheduler[S]) addPending(id string) {
	s.mu.Lock()
	s.pending[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Scheduler[S]) removePending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Drain blocks until the pending set is empty and stays empty, the
// supplied context is cancelled, or timeout (if positive) elapses first.
func (s *Scheduler[S]) Drain(ctx context.Context, timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		s.mu.Lock()
		for len(s.pending) > 0 {
			s.cond.Wait()
		}
		s.mu.Unlock()
		close(done)
	}()

	if timeout <= 0 {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return &TimeoutError{TimeoutMs: timeout.Milliseconds()}
	}
}

func (s *Scheduler[S]) onTrigger(name string, def agent.Definition[S]) bus.Listener {
	return func(ctx context.Context, evt event.Event) error {
		if s.isTerminated() {
			s.emitSkipped(ctx, name, "workflow terminated", evt)
			return nil
		}

		snap := s.state.Snapshot()
		actx := agent.Context[S]{
			Event: agent.EventView{ID: evt.ID(), Name: evt.Name(), Payload: evt.Payload()},
			State: snap,
			Input: s.input,
		}
		if def.Guard != nil && !def.Guard(actx) {
			s.emitSkipped(ctx, name, "guard false", evt)
			return nil
		}

		s.mu.Lock()
		s.activations++
		s.mu.Unlock()

		activatedID := s.idgen.Next()
		s.addPending(activatedID)
		s.bus.Publish(ctx, event.New(activatedID, "agent:activated",
			map[string]any{"agent": name, "trigger": evt.Name()},
			event.Source{Agent: name, Parent: evt.ID()}))

		go s.runActivation(ctx, name, def, actx, activatedID)
		return nil
	}
}

func (s *Scheduler[S]) emitSkipped(ctx context.Context, name, reason string, trigger event.Event) {
	id := s.idgen.Next()
	s.bus.Publish(ctx, event.New(id, "agent:skipped",
		map[string]any{"agent": name, "reason": reason, "trigger": trigger.Name()},
		event.Source{Agent: name, Parent: trigger.ID()}))
}

func (s *Scheduler[S]) runActivation(ctx context.Context, name string, def agent.Definition[S], actx agent.Context[S], activatedID string) {
	defer s.removePending(activatedID)

	out, err := s.drive(ctx, name, def, actx, activatedID)
	if err != nil {
		s.logger.Error(ctx, "activation failed", "agent", name, "err", err)
		s.errs.Record(fmt.Errorf("agent %s: %w", name, err))
		return
	}
	s.settle(ctx, name, def, out, activatedID)
}

func (s *Scheduler[S]) drive(ctx context.Context, name string, def agent.Definition[S], actx agent.Context[S], activatedID string) (harness.Output, error) {
	publish := func(evt event.Event) {
		stamped := event.New(s.idgen.Next(), evt.Name(), evt.Payload(), event.Source{
			Agent:   name,
			Harness: evt.Source().Harness,
			Parent:  activatedID,
		})
		s.bus.Publish(ctx, stamped)
	}

	if s.replayer != nil {
		out, err := s.replayer.Next(def.Schema, publish)
		return out, err
	}

	h := def.Harness
	if h == nil {
		h = s.defaultHarness
	}
	if h == nil {
		return harness.Output{}, fmt.Errorf("no harness configured (neither agent nor run default)")
	}

	prompt, err := def.Prompt(actx)
	if err != nil {
		return harness.Output{}, fmt.Errorf("expand prompt: %w", err)
	}
	in := harness.Input{System: prompt, OutputSchema: def.Schema}
	rc := harness.RunContext{AbortFlag: s.abort, RunID: s.runID}
	return harness.Forward(ctx, h, in, rc, publish)
}

func (s *Scheduler[S]) settle(ctx context.Context, name string, def agent.Definition[S], out harness.Output, activatedID string) {
	updateValue := out.StructuredOutput
	if updateValue == nil {
		updateValue = out.Content
	}

	if def.Updates != "" {
		var oldValue any
		err := s.state.Update(func(draft *S) error {
			field, ferr := resolveField(reflect.ValueOf(draft).Elem(), def.Updates)
			if ferr != nil {
				return ferr
			}
			oldValue = field.Interface()
			return setFieldValue(field, updateValue)
		})
		if err != nil {
			s.logger.Error(ctx, "state update failed", "agent", name, "field", def.Updates, "err", err)
			s.errs.Record(fmt.Errorf("agent %s: update field %s: %w", name, def.Updates, err))
			return
		}
		changedID := s.idgen.Next()
		s.bus.Publish(ctx, event.New(changedID, fmt.Sprintf("state:%s:changed", def.Updates),
			map[string]any{"key": def.Updates, "oldValue": oldValue, "newValue": updateValue, "agent": name},
			event.Source{Agent: name, Parent: activatedID}))
	}

	if s.endWhen != nil {
		snap := s.state.Snapshot()
		if s.endWhen(snap) && s.markTerminated() {
			termID := s.idgen.Next()
			s.bus.Publish(ctx, event.New(termID, "workflow:terminating",
				map[string]any{"reason": "endWhen", "agent": name, "state": snap},
				event.Source{Agent: name, Parent: activatedID}))
		}
	}

	for _, emitName := range def.Emits {
		payload := out.StructuredOutput
		if payload == nil {
			payload = map[string]any{"agent": name, "output": out.Content}
		}
		id := s.idgen.Next()
		s.bus.Publish(ctx, event.New(id, emitName, payload, event.Source{Agent: name, Parent: activatedID}))
	}
}

// resolveField returns the settable field of struct value v named by field
// (matched against an exported Go field name or its json tag).
func resolveField(v reflect.Value, field string) (reflect.Value, error) {
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("state is not a struct")
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("json"); ok {
			if comma := strings.IndexByte(tag, ','); comma != -1 {
				tag = tag[:comma]
			}
			if tag != "" && tag != "-" {
				name = tag
			}
		}
		if name == field || sf.Name == field {
			return v.Field(i), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("no such state field %q", field)
}

// setFieldValue assigns value into field by round-tripping it through JSON,
// the same cloning strategy statebox uses elsewhere, so any JSON-shaped
// value (string, number, map, slice, or a directly assignable struct) can
// land in a field of the matching Go type.
func setFieldValue(field reflect.Value, value any) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal update value: %w", err)
	}
	ptr := field.Addr().Interface()
	if err := json.Unmarshal(buf, ptr); err != nil {
		return fmt.Errorf("unmarshal update value into field: %w", err)
	}
	return nil
}
