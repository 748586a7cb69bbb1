package reactor_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reactorflow/engine/agent"
	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/harness"
	"github.com/reactorflow/engine/reactor"
	"github.com/reactorflow/engine/signalstore/inmem"
)

type counterState struct {
	Count int  `json:"count"`
	Done  bool `json:"done"`
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

type onceHarness struct{ structured any }

func (h *onceHarness) Run(context.Context, harness.Input, harness.RunContext) (harness.Stream, error) {
	return &staticStream{events: []event.Event{
		event.New("h1", "harness:start", nil, event.Source{}),
		event.New("h2", "harness:end", harness.Output{StructuredOutput: h.structured}, event.Source{}),
	}}, nil
}

func TestRunCompletesAndFoldsState(t *testing.T) {
	wf := reactor.New[counterState]()
	wf.Agent("incrementer", agent.Definition[counterState]{
		Patterns: []string{"workflow:start"},
		Prompt:   agent.Static[counterState]("p"),
		Harness:  &onceHarness{structured: 1},
		Updates:  "Count",
	})

	result, err := wf.Run(context.Background(), reactor.Config[counterState]{
		State:   counterState{},
		Timeout: time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.State.Count)
	require.False(t, result.TerminatedEarly)
	require.EqualValues(t, 1, result.Metrics.Activations)

	var names []string
	for _, evt := range result.Signals {
		names = append(names, evt.Name())
	}
	require.Contains(t, names, "workflow:start")
	require.Contains(t, names, "workflow:end")
	require.Contains(t, names, "agent:activated")
	require.Contains(t, names, "state:Count:changed")
}

func TestRunRecordsAndReplaysIdentically(t *testing.T) {
	store := inmem.New()

	wf := reactor.New[counterState]()
	wf.Agent("incrementer", agent.Definition[counterState]{
		Patterns: []string{"workflow:start"},
		Prompt:   agent.Static[counterState]("p"),
		Harness:  &onceHarness{structured: 1},
		Updates:  "Count",
	})

	liveResult, err := wf.Run(context.Background(), reactor.Config[counterState]{
		State:   counterState{},
		Timeout: time.Second,
		Recording: reactor.RecordingConfig{
			Mode:  reactor.RecordingRecord,
			Store: store,
			Name:  "test-run",
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, liveResult.RecordingID)

	replayResult, err := wf.Run(context.Background(), reactor.Config[counterState]{
		State:   counterState{},
		Timeout: time.Second,
		Recording: reactor.RecordingConfig{
			Mode:        reactor.RecordingReplay,
			Store:       store,
			RecordingID: liveResult.RecordingID,
		},
	})
	require.NoError(t, err)
	require.Equal(t, liveResult.State, replayResult.State)
}

func TestRunRejectsReplayWithoutRecordingID(t *testing.T) {
	store := inmem.New()
	wf := reactor.New[counterState]()
	wf.Agent("a", agent.Definition[counterState]{Patterns: []string{"workflow:start"}, Prompt: agent.Static[counterState]("p"), Harness: &onceHarness{}})

	_, err := wf.Run(context.Background(), reactor.Config[counterState]{
		State: counterState{},
		Recording: reactor.RecordingConfig{
			Mode:  reactor.RecordingReplay,
			Store: store,
		},
	})
	require.Error(t, err)
	var cfgErr *reactor.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestEndWhenSetsTerminatedEarly(t *testing.T) {
	wf := reactor.New[counterState]()
	wf.Agent("setter", agent.Definition[counterState]{
		Patterns: []string{"workflow:start"},
		Prompt:   agent.Static[counterState]("p"),
		Harness:  &onceHarness{structured: true},
		Updates:  "Done",
	})

	result, err := wf.Run(context.Background(), reactor.Config[counterState]{
		State:   counterState{},
		Timeout: time.Second,
		EndWhen: func(s counterState) bool { return s.Done },
	})
	require.NoError(t, err)
	require.True(t, result.TerminatedEarly)
}

// timestampingHarness records the wall-clock time of every Run call so
// tests can assert on call spacing.
type timestampingHarness struct {
	mu    sync.Mutex
	calls []time.Time
}

func (h *timestampingHarness) Run(context.Context, harness.Input, harness.RunContext) (harness.Stream, error) {
	h.mu.Lock()
	h.calls = append(h.calls, time.Now())
	h.mu.Unlock()
	return &staticStream{events: []event.Event{
		event.New("h1", "harness:start", nil, event.Source{}),
		event.New("h2", "harness:end", harness.Output{Content: "ok"}, event.Source{}),
	}}, nil
}

func TestHarnessRateLimitThrottlesConcurrentInvocations(t *testing.T) {
	h := &timestampingHarness{}
	wf := reactor.New[counterState]()
	wf.Agent("a", agent.Definition[counterState]{Patterns: []string{"workflow:start"}, Prompt: agent.Static[counterState]("p")})
	wf.Agent("b", agent.Definition[counterState]{Patterns: []string{"workflow:start"}, Prompt: agent.Static[counterState]("p")})

	_, err := wf.Run(context.Background(), reactor.Config[counterState]{
		State:            counterState{},
		Harness:          h,
		Timeout:          2 * time.Second,
		HarnessRateLimit: reactor.HarnessRateLimit{RatePerSecond: 5, Burst: 1},
	})
	require.NoError(t, err)

	h.mu.Lock()
	calls := append([]time.Time(nil), h.calls...)
	h.mu.Unlock()
	require.Len(t, calls, 2)
	gap := calls[1].Sub(calls[0])
	if gap < 0 {
		gap = -gap
	}
	require.GreaterOrEqual(t, gap, 150*time.Millisecond)
}
