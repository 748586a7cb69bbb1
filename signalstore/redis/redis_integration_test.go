//go:build integration

package redis_test

import (
	"context"
	"fmt"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/signalstore"
	signalredis "github.com/reactorflow/engine/signalstore/redis"
)

func TestStoreAgainstLiveRedis(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })

	store, err := signalredis.New(signalredis.Options{Client: client})
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
