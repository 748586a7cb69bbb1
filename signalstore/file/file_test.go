package file_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/signalstore"
	"github.com/reactorflow/engine/signalstore/file"
)

func TestCreateAppendFinalizeLoadRoundTrips(t *testing.T) {
	store, err := file.New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	id, err := store.Create(ctx, "demo", []string{"smoke"})
	require.NoError(t, err)

	evt := event.New("1", "workflow:start", map[string]any{"agents": []string{"a"}}, event.Source{})
	require.NoError(t, store.AppendBatch(ctx, id, []event.Event{evt}))
	require.NoError(t, store.Finalize(ctx, id, 7))

	rec, err := store.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, rec.Events, 1)
	require.Equal(t, "workflow:start", rec.Events[0].Name())
	require.True(t, rec.Metadata.Finalized())
	require.EqualValues(t, 7, rec.Metadata.DurationMs)
}

func TestLoadUnknownReturnsNotFound(t *testing.T) {
	store, err := file.New(t.TempDir())
	require.NoError(t, err)
	_, err = store.Load(context.Background(), "nope")
	require.ErrorIs(t, err, signalstore.ErrNotFound)
}

func TestListAndDelete(t *testing.T) {
	store, err := file.New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	id, err := store.Create(ctx, "run-a", []string{"keep"})
	require.NoError(t, err)

	metas, err := store.List(ctx, signalstore.Query{Tag: "keep"})
	require.NoError(t, err)
	require.Len(t, metas, 1)

	require.NoError(t, store.Delete(ctx, id))
	ok, err := store.Exists(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}
