package scheduler_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reactorflow/engine/agent"
	busp "github.com/reactorflow/engine/bus"
	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/harness"
	"github.com/reactorflow/engine/ids"
	"github.com/reactorflow/engine/runerr"
	"github.com/reactorflow/engine/scheduler"
	"github.com/reactorflow/engine/statebox"
)

type demoState struct {
	Enabled bool   `json:"enabled"`
	Done    bool   `json:"done"`
	Result  string `json:"result"`
}

type staticStream struct {
	events []event.Event
	pos    int
}

func (s *staticStream) Recv() (event.Event, error) {
	if s.pos >= len(s.events) {
		return event.Event{}, io.EOF
	}
	evt := s.events[s.pos]
	s.pos++
	return evt, nil
}
func (s *staticStream) Close() error { return nil }

type mockHarness struct {
	content    string
	structured any
}

func (h *mockHarness) Run(context.Context, harness.Input, harness.RunContext) (harness.Stream, error) {
	return &staticStream{events: []event.Event{
		event.New("h1", "harness:start", nil, event.Source{}),
		event.New("h2", "harness:end", harness.Output{Content: h.content, StructuredOutput: h.structured}, event.Source{}),
	}}, nil
}

func newEnv(t *testing.T) (*busp.Bus, *statebox.Box[demoState]) {
	t.Helper()
	b := busp.New()
	box, err := statebox.New(demoState{})
	require.NoError(t, err)
	return b, box
}

func TestGuardGatingSkipsDisabledAgent(t *testing.T) {
	b, box := newEnv(t)
	sched := scheduler.New(scheduler.Config[demoState]{
		Bus:   b,
		State: box,
		IDs:   ids.New(),
		Agents: map[string]agent.Definition[demoState]{
			"A": {Patterns: []string{"workflow:start"}, Prompt: agent.Static[demoState]("p"), Harness: &mockHarness{content: "ok"}},
			"B": {
				Patterns: []string{"workflow:start"},
				Prompt:   agent.Static[demoState]("p"),
				Harness:  &mockHarness{content: "ok"},
				Guard:    func(ctx agent.Context[demoState]) bool { return ctx.State.Enabled },
			},
		},
	})
	require.NoError(t, sched.Register())
	defer sched.Close()

	b.Publish(context.Background(), event.New("0", "workflow:start", nil, event.Source{}))
	require.NoError(t, sched.Drain(context.Background(), 0))

	require.EqualValues(t, 1, sched.Activations())

	var skippedReasons []string
	for _, evt := range b.History() {
		if evt.Name() == "agent:skipped" {
			payload := evt.Payload().(map[string]any)
			skippedReasons = append(skippedReasons, payload["reason"].(string))
		}
	}
	require.Equal(t, []string{"guard false"}, skippedReasons)
}

func TestActivationChainTracksCausalParent(t *testing.T) {
	b, box := newEnv(t)
	sched := scheduler.New(scheduler.Config[demoState]{
		Bus:   b,
		State: box,
		IDs:   ids.New(),
		Agents: map[string]agent.Definition[demoState]{
			"first":  {Patterns: []string{"workflow:start"}, Prompt: agent.Static[demoState]("p"), Harness: &mockHarness{content: "a"}, Emits: []string{"first:done"}},
			"second": {Patterns: []string{"first:done"}, Prompt: agent.Static[demoState]("p"), Harness: &mockHarness{content: "b"}, Emits: []string{"second:done"}},
			"third":  {Patterns: []string{"second:done"}, Prompt: agent.Static[demoState]("p"), Harness: &mockHarness{content: "c"}},
		},
	})
	require.NoError(t, sched.Register())
	defer sched.Close()

	b.Publish(context.Background(), event.New("0", "workflow:start", nil, event.Source{}))
	require.NoError(t, sched.Drain(context.Background(), 0))

	require.EqualValues(t, 3, sched.Activations())

	byID := make(map[string]event.Event)
	var thirdActivated event.Event
	for _, evt := range b.History() {
		byID[evt.ID()] = evt
		if evt.Name() == "agent:activated" && evt.Source().Agent == "third" {
			thirdActivated = evt
		}
	}
	require.NotEmpty(t, thirdActivated.ID())
	root := thirdActivated
	for root.Source().Parent != "" {
		parent, ok := byID[root.Source().Parent]
		require.True(t, ok, "parent %q of %s not in history", root.Source().Parent, root.Name())
		root = parent
	}
	require.Equal(t, "workflow:start", root.Name())
}

func TestEndWhenTerminatesFurtherActivations(t *testing.T) {
	b, box := newEnv(t)
	sched := scheduler.New(scheduler.Config[demoState]{
		Bus:   b,
		State: box,
		IDs:   ids.New(),
		EndWhen: func(s demoState) bool { return s.Done },
		Agents: map[string]agent.Definition[demoState]{
			"setter": {Patterns: []string{"workflow:start"}, Prompt: agent.Static[demoState]("p"), Harness: &mockHarness{structured: true}, Updates: "Done"},
			"watcher": {Patterns: []string{"state:Done:changed"}, Prompt: agent.Static[demoState]("p"), Harness: &mockHarness{content: "x"}},
		},
	})
	require.NoError(t, sched.Register())
	defer sched.Close()

	b.Publish(context.Background(), event.New("0", "workflow:start", map[string]any{"done": true}, event.Source{}))
	require.NoError(t, sched.Drain(context.Background(), 0))

	require.True(t, sched.TerminatedEarly())

	hasTerminating := false
	for _, evt := range b.History() {
		if evt.Name() == "workflow:terminating" {
			hasTerminating = true
		}
	}
	require.True(t, hasTerminating)
}

func TestDrainTimesOutWithSlowHarness(t *testing.T) {
	b, box := newEnv(t)
	sched := scheduler.New(scheduler.Config[demoState]{
		Bus:   b,
		State: box,
		IDs:   ids.New(),
		Agents: map[string]agent.Definition[demoState]{
			"slow": {Patterns: []string{"workflow:start"}, Prompt: agent.Static[demoState]("p"), Harness: &slowHarness{}},
		},
	})
	require.NoError(t, sched.Register())
	defer sched.Close()

	b.Publish(context.Background(), event.New("0", "workflow:start", nil, event.Source{}))
	err := sched.Drain(context.Background(), 20*time.Millisecond)
	require.Error(t, err)
	var timeoutErr *scheduler.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}

type slowHarness struct{}

func (slowHarness) Run(ctx context.Context, in harness.Input, rc harness.RunContext) (harness.Stream, error) {
	time.Sleep(200 * time.Millisecond)
	return &staticStream{events: []event.Event{
		event.New("1", "harness:end", harness.Output{Content: "late"}, event.Source{}),
	}}, nil
}

func TestMissingHarnessIsRecordedAsFatal(t *testing.T) {
	b, box := newEnv(t)
	errs := &runerr.Recorder{}
	sched := scheduler.New(scheduler.Config[demoState]{
		Bus:   b,
		State: box,
		IDs:   ids.New(),
		Errors: errs,
		Agents: map[string]agent.Definition[demoState]{
			"nohar": {Patterns: []string{"workflow:start"}, Prompt: agent.Static[demoState]("p")},
		},
	})
	require.NoError(t, sched.Register())
	defer sched.Close()

	b.Publish(context.Background(), event.New("0", "workflow:start", nil, event.Source{}))
	require.NoError(t, sched.Drain(context.Background(), time.Second))

	require.Error(t, errs.Err())
}
