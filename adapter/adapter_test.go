package adapter_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reactorflow/engine/adapter"
	busp "github.com/reactorflow/engine/bus"
	"github.com/reactorflow/engine/event"
)

func TestStartAllSubscribesAndDispatches(t *testing.T) {
	b := busp.New()
	var mu sync.Mutex
	var received []string
	started := false
	stopped := false

	lc, err := adapter.StartAll(context.Background(), b, []adapter.Adapter{{
		Name:     "sink",
		Patterns: []string{"**"},
		OnStart:  func(context.Context) error { started = true; return nil },
		OnSignal: func(_ context.Context, evt event.Event) error {
			mu.Lock()
			received = append(received, evt.Name())
			mu.Unlock()
			return nil
		},
		OnStop: func(context.Context) error { stopped = true; return nil },
	}}, nil)
	require.NoError(t, err)
	require.True(t, started)

	b.Publish(context.Background(), event.New("1", "workflow:start", nil, event.Source{}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, time.Millisecond)

	lc.StopAll(context.Background())
	require.True(t, stopped)

	b.Publish(context.Background(), event.New("2", "after:stop", nil, event.Source{}))
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
}

func TestStartAllUnwindsOnFailedOnStart(t *testing.T) {
	b := busp.New()
	firstStopped := false

	_, err := adapter.StartAll(context.Background(), b, []adapter.Adapter{
		{
			Name:    "first",
			OnStart: func(context.Context) error { return nil },
			OnStop:  func(context.Context) error { firstStopped = true; return nil },
		},
		{
			Name:    "second",
			OnStart: func(context.Context) error { return errors.New("boom") },
		},
	}, nil)

	require.Error(t, err)
	require.True(t, firstStopped)
}

func TestOnSignalPanicIsIsolated(t *testing.T) {
	b := busp.New()
	lc, err := adapter.StartAll(context.Background(), b, []adapter.Adapter{{
		Name:     "panicky",
		Patterns: []string{"**"},
		OnSignal: func(context.Context, event.Event) error { panic("boom") },
	}}, nil)
	require.NoError(t, err)

	require.NotPanics(t, func() {
		b.Publish(context.Background(), event.New("1", "go", nil, event.Source{}))
		time.Sleep(10 * time.Millisecond)
	})
	lc.StopAll(context.Background())
}
