package bus_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	busp "github.com/reactorflow/engine/bus"
	"github.com/reactorflow/engine/event"
)

func pub(b *busp.Bus, name string) event.Event {
	evt := event.New(name, name, nil, event.Source{})
	b.Publish(context.Background(), evt)
	return evt
}

func TestSubscribeAndPublishFanOut(t *testing.T) {
	b := busp.New()
	count := 0
	_, err := b.Subscribe([]string{"a:*"}, func(ctx context.Context, evt event.Event) error {
		count++
		return nil
	})
	require.NoError(t, err)

	pub(b, "a:b")
	pub(b, "a:c")
	pub(b, "x:y")

	require.Equal(t, 2, count)
	require.Equal(t, 3, b.Len())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := busp.New()
	count := 0
	unsub, err := b.Subscribe([]string{"**"}, func(ctx context.Context, evt event.Event) error {
		count++
		return nil
	})
	require.NoError(t, err)

	pub(b, "a")
	unsub()
	unsub()
	pub(b, "b")

	require.Equal(t, 1, count)
}

func TestListenerOrderIsRegistrationOrder(t *testing.T) {
	b := busp.New()
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		_, err := b.Subscribe([]string{"**"}, func(ctx context.Context, evt event.Event) error {
			order = append(order, name)
			return nil
		})
		require.NoError(t, err)
	}

	pub(b, "go")

	require.Equal(t, []string{"first", "second", "third"}, order)
}

func TestListenerErrorIsIsolated(t *testing.T) {
	b := busp.New()
	secondRan := false
	_, err := b.Subscribe([]string{"**"}, func(ctx context.Context, evt event.Event) error {
		return assertErr
	})
	require.NoError(t, err)
	_, err = b.Subscribe([]string{"**"}, func(ctx context.Context, evt event.Event) error {
		secondRan = true
		return nil
	})
	require.NoError(t, err)

	pub(b, "go")

	require.True(t, secondRan)
}

func TestListenerPanicIsIsolated(t *testing.T) {
	b := busp.New()
	secondRan := false
	_, err := b.Subscribe([]string{"**"}, func(ctx context.Context, evt event.Event) error {
		panic("boom")
	})
	require.NoError(t, err)
	_, err = b.Subscribe([]string{"**"}, func(ctx context.Context, evt event.Event) error {
		secondRan = true
		return nil
	})
	require.NoError(t, err)

	require.NotPanics(t, func() { pub(b, "go") })
	require.True(t, secondRan)
}

// TestRecursiveEmitIsDepthFirst verifies that when a listener publishes an
// event of its own, the nested delivery completes in full — including the
// nested listener's own statements — before the outer listener's next
// statement runs.
func TestRecursiveEmitIsDepthFirst(t *testing.T) {
	b := busp.New()
	var order []string

	_, err := b.Subscribe([]string{"inner"}, func(ctx context.Context, evt event.Event) error {
		order = append(order, "inner:start")
		order = append(order, "inner:end")
		return nil
	})
	require.NoError(t, err)

	_, err = b.Subscribe([]string{"outer"}, func(ctx context.Context, evt event.Event) error {
		order = append(order, "outer:before")
		pub(b, "inner")
		order = append(order, "outer:after")
		return nil
	})
	require.NoError(t, err)

	pub(b, "outer")

	require.Equal(t, []string{"outer:before", "inner:start", "inner:end", "outer:after"}, order)
}

func TestHistoryOrder(t *testing.T) {
	b := busp.New()
	pub(b, "a")
	pub(b, "b")
	pub(b, "c")

	hist := b.History()
	require.Len(t, hist, 3)
	require.Equal(t, "a", hist[0].Name())
	require.Equal(t, "c", hist[2].Name())
}

var assertErr = &testError{"listener failed"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
