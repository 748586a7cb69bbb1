//go:build integration

package mongo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/signalstore"
	signalmongo "github.com/reactorflow/engine/signalstore/mongo"
)

func TestStoreAgainstLiveMongo(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "mongodb")
	require.NoError(t, err)

	client, err := mongodriver.Connect(options.Client().ApplyURI(endpoint))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	store, err := signalmongo.New(signalmongo.Options{Client: client, Database: "reactorflow_test", Timeout: 10 * time.Second})
	require.NoError(t, err)

	id, err := store.Create(ctx, "live", []string{"integration"})
	require.NoError(t, err)

	evt := event.New("1", "workflow:start", nil, event.Source{})
	require.NoError(t, store.AppendBatch(ctx, id, []event.Event{evt}))
	require.NoError(t, store.Finalize(ctx, id, 10))

	rec, err := store.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, rec.Events, 1)

	_, err = store.Load(ctx, "does-not-exist")
	require.ErrorIs(t, err, signalstore.ErrNotFound)
}
