package sse_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reactorflow/engine/adapter/sse"
	"github.com/reactorflow/engine/event"
)

func TestBroadcastReachesConnectedClient(t *testing.T) {
	hub := sse.NewHub()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer server.Close()

	a := sse.New(hub)

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	// Give the handler a moment to register before broadcasting.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.OnSignal(context.Background(), event.New("1", "agent:activated", "hi", event.Source{})))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))
	require.Contains(t, line, "agent:activated")
}
