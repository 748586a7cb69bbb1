package logsink_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reactorflow/engine/adapter/logsink"
	"github.com/reactorflow/engine/event"
)

type recordingLogger struct {
	mu    sync.Mutex
	calls []string
}

func (l *recordingLogger) Debug(context.Context, string, ...any) {}
func (l *recordingLogger) Info(_ context.Context, msg string, kv ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, msg)
}
func (l *recordingLogger) Warn(context.Context, string, ...any)  {}
func (l *recordingLogger) Error(context.Context, string, ...any) {}

func TestOnSignalLogsEvent(t *testing.T) {
	logger := &recordingLogger{}
	a := logsink.New(logsink.Options{Logger: logger})

	err := a.OnSignal(context.Background(), event.New("1", "agent:activated", nil, event.Source{Agent: "a"}))
	require.NoError(t, err)
	require.Equal(t, []string{"event"}, logger.calls)
}
