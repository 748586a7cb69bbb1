// Package reactor is the workflow factory: it binds a state type, validates
// agent definitions, and executes a run end to end — wiring the bus, state
// box, update pipeline, adapters, scheduler, and recorder in the fixed order
// the rest of the engine depends on, then folding the result into a single
// Result value.
package reactor

import (
	"context"
	"fmt"
	"time"

	"github.com/reactorflow/engine/adapter"
	"github.com/reactorflow/engine/agent"
	"github.com/reactorflow/engine/bus"
	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/harness"
	"github.com/reactorflow/engine/ids"
	"github.com/reactorflow/engine/pipeline"
	"github.com/reactorflow/engine/ratelimit"
	"github.com/reactorflow/engine/recorder"
	"github.com/reactorflow/engine/runerr"
	"github.com/reactorflow/engine/scheduler"
	"github.com/reactorflow/engine/signalstore"
	"github.com/reactorflow/engine/statebox"
	"github.com/reactorflow/engine/telemetry"
)

// RecordingMode selects whether a run is live, recorded, or replayed.
type RecordingMode string

const (
	RecordingLive    RecordingMode = "live"
	RecordingRecord  RecordingMode = "record"
	RecordingReplay  RecordingMode = "replay"
)

// RecordingConfig configures a run's interaction with a signalstore.Store.
type RecordingConfig struct {
	Mode        RecordingMode
	Store       signalstore.Store
	RecordingID string
	Name        string
	Tags        []string
}

// Config is the run configuration a caller hands to Workflow.Run, mirroring
// the run-configuration shape consumed across the engine: an agent set, the
// initial state, an optional default harness and end condition, the update
// pipeline entries, adapters, recording options, and an abort flag.
type Config[S any] struct {
	Agents         map[string]agent.Definition[S]
	State          S
	Harness        harness.Harness
	Timeout        time.Duration
	EndWhen        func(S) bool
	Reducers       []pipeline.ReducerEntry[S]
	Handlers       []pipeline.HandlerEntry[S]
	Processes      []pipeline.ProcessEntry[S]
	Adapters       []adapter.Adapter
	Recording      RecordingConfig
	Abort          *harness.AbortFlag
	Input          any
	Logger         telemetry.Logger
	Metrics        telemetry.Metrics
	// HarnessRateLimit, when set, throttles every live harness invocation
	// this run makes: the default harness and every agent's own harness
	// override are each wrapped in a ratelimit.Limiter with these settings
	// (agents that fall back to the default harness share its limiter). The
	// zero value disables throttling; a run behaves exactly as described
	// without it.
	HarnessRateLimit HarnessRateLimit
}

// HarnessRateLimit configures the token bucket reactor.Run wraps every live
// harness call with. RatePerSecond <= 0 means unlimited.
type HarnessRateLimit struct {
	RatePerSecond float64
	Burst         int
}

// Metrics carries the numeric facts about a completed run.
type Metrics struct {
	DurationMs  int64
	Activations int64
}

// Result is a run's outcome.
type Result[S any] struct {
	State           S
	Signals         []event.Event
	Metrics         Metrics
	TerminatedEarly bool
	RecordingID     string
}

// ConfigError reports a configuration problem caught before any run starts.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("reactor: configuration error: %s", e.Reason) }

// Workflow binds a state type S. Construct one with New, declare agents with
// Agent, then execute runs with Run.
type Workflow[S any] struct {
	agents map[string]agent.Definition[S]
}

// New returns an empty Workflow for state type S.
func New[S any]() *Workflow[S] {
	return &Workflow[S]{agents: make(map[string]agent.Definition[S])}
}

// Agent validates def and registers it under name. It returns the Workflow
// so calls can be chained.
func (w *Workflow[S]) Agent(name string, def agent.Definition[S]) *Workflow[S] {
	if err := def.Validate(name); err != nil {
		panic(err)
	}
	w.agents[name] = def
	return w
}

// Run executes cfg to completion: validating recording options, loading any
// replay recording, wiring the bus/state/pipeline/adapters/scheduler in the
// fixed order spec'd for the run lifecycle, awaiting quiescence or timeout,
// and returning the folded Result. Once workflow:start has been published,
// recording finalization and adapter teardown run before Run returns, also
// when the drain times out or a fatal error was recorded. If wiring fails
// earlier (adapter start, pipeline or agent registration), Run stops the
// adapters already started and returns; a recording already created is
// left unfinalized.
func (w *Workflow[S]) Run(ctx context.Context, cfg Config[S]) (Result[S], error) {
	if err := validateRecording(cfg.Recording); err != nil {
		return Result[S]{}, err
	}

	agents := cfg.Agents
	if agents == nil {
		agents = w.agents
	}
	if len(agents) == 0 {
		return Result[S]{}, &ConfigError{Reason: "no agents configured"}
	}

	defaultHarness := cfg.Harness
	if cfg.HarnessRateLimit.RatePerSecond > 0 {
		defaultHarness = rateLimited(defaultHarness, cfg.HarnessRateLimit)
		agents = rateLimitAgents(agents, cfg.HarnessRateLimit)
	}

	var replayer *recorder.Replayer
	if cfg.Recording.Mode == RecordingReplay {
		rec, err := cfg.Recording.Store.Load(ctx, cfg.Recording.RecordingID)
		if err != nil {
			return Result[S]{}, fmt.Errorf("reactor: load recording %s: %w", cfg.Recording.RecordingID, err)
		}
		replayer = recorder.NewReplayer(rec)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}

	b := bus.New(bus.WithLogger(logger))
	state, err := statebox.New(cfg.State)
	if err != nil {
		return Result[S]{}, fmt.Errorf("reactor: initialize state: %w", err)
	}

	var rec *recorder.Recorder
	if cfg.Recording.Mode == RecordingRecord {
		rec, err = recorder.Start(ctx, b, cfg.Recording.Store, cfg.Recording.Name, cfg.Recording.Tags)
		if err != nil {
			return Result[S]{}, fmt.Errorf("reactor: start recording: %w", err)
		}
	}

	lifecycle, err := adapter.StartAll(ctx, b, cfg.Adapters, logger)
	if err != nil {
		return Result[S]{}, fmt.Errorf("reactor: start adapters: %w", err)
	}

	idgen := ids.New()
	errs := &runerr.Recorder{}

	pipe := pipeline.New(pipeline.Config[S]{
		Bus: b, State: state, IDs: idgen,
		Reducers: cfg.Reducers, Handlers: cfg.Handlers, Processes: cfg.Processes,
		Errors: errs, Logger: logger,
	})
	if err := pipe.Register(); err != nil {
		lifecycle.StopAll(ctx)
		return Result[S]{}, fmt.Errorf("reactor: register pipeline: %w", err)
	}
	defer pipe.Close()

	sched := scheduler.New(scheduler.Config[S]{
		Bus: b, State: state, IDs: idgen, Agents: agents,
		DefaultHarness: defaultHarness, Input: cfg.Input, EndWhen: cfg.EndWhen,
		Abort: cfg.Abort, Replayer: replayer, Logger: logger, Metrics: metrics,
		Errors: errs, RunID: idgen.Next(),
	})
	if err := sched.Register(); err != nil {
		lifecycle.StopAll(ctx)
		return Result[S]{}, fmt.Errorf("reactor: register agents: %w", err)
	}
	defer sched.Close()

	start := time.Now()
	startID := idgen.Next()
	b.Publish(ctx, event.New(startID, "workflow:start",
		map[string]any{"agents": agentNames(agents), "state": state.Snapshot()}, event.Source{}))

	drainErr := sched.Drain(ctx, cfg.Timeout)

	endID := idgen.Next()
	durationMs := time.Since(start).Milliseconds()
	b.Publish(ctx, event.New(endID, "workflow:end",
		map[string]any{"durationMs": durationMs, "activations": sched.Activations(), "state": state.Snapshot()},
		event.Source{}))

	var recordingID string
	if rec != nil {
		recordingID = rec.ID()
		if ferr := rec.Flush(ctx, durationMs); ferr != nil {
			logger.Error(ctx, "finalize recording failed", "err", ferr)
		}
	}

	lifecycle.StopAll(ctx)

	result := Result[S]{
		State:           state.Snapshot(),
		Signals:         b.History(),
		Metrics:         Metrics{DurationMs: durationMs, Activations: sched.Activations()},
		TerminatedEarly: sched.TerminatedEarly(),
		RecordingID:     recordingID,
	}

	if drainErr != nil {
		return result, drainErr
	}
	if runErr := errs.Err(); runErr != nil {
		return result, runErr
	}
	return result, nil
}

func validateRecording(cfg RecordingConfig) error {
	switch cfg.Mode {
	case "", RecordingLive:
		return nil
	case RecordingRecord:
		if cfg.Store == nil {
			return &ConfigError{Reason: "record mode requires a store"}
		}
		return nil
	case RecordingReplay:
		if cfg.Store == nil || cfg.RecordingID == "" {
			return &ConfigError{Reason: "replay mode requires a store and a recording id"}
		}
		return nil
	default:
		return &ConfigError{Reason: fmt.Sprintf("unknown recording mode %q", cfg.Mode)}
	}
}

func agentNames[S any](agents map[string]agent.Definition[S]) []string {
	names := make([]string, 0, len(agents))
	for name := range agents {
		names = append(names, name)
	}
	return names
}

// rateLimited wraps h in a ratelimit.Limiter per limit, or returns h
// unchanged if h is nil (there is nothing to throttle, and wrapping nil
// would turn the scheduler's nil-harness check into a false negative).
func rateLimited(h harness.Harness, limit HarnessRateLimit) harness.Harness {
	if h == nil {
		return nil
	}
	return ratelimit.New(h, limit.RatePerSecond, limit.Burst)
}

// rateLimitAgents returns a copy of agents with every per-agent harness
// override wrapped in its own ratelimit.Limiter using the same settings as
// the run default, so
// a configured HarnessRateLimit bounds every live harness invocation the
// run makes, not just the ones falling back to the default harness.
func rateLimitAgents[S any](agents map[string]agent.Definition[S], limit HarnessRateLimit) map[string]agent.Definition[S] {
	wrapped := make(map[string]agent.Definition[S], len(agents))
	for name, def := range agents {
		def.Harness = rateLimited(def.Harness, limit)
		wrapped[name] = def
	}
	return wrapped
}
