// Package logsink provides an adapter.Adapter that reports every matching
// event through the telemetry.Logger seam, for runs where structured log
// aggregation is the desired observability surface rather than a terminal.
package logsink

import (
	"context"

	"github.com/reactorflow/engine/adapter"
	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/telemetry"
)

// Options configures the log-sink adapter.
type Options struct {
	// Logger receives one Info call per matching event. When nil, a no-op
	// logger is used and events are discarded.
	Logger telemetry.Logger
	// Patterns overrides the default "**" subscription.
	Patterns []string
}

// New returns an adapter.Adapter that logs every matching event at Info
// level with its id, name, and payload as structured fields.
func New(opts Options) adapter.Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = []string{"**"}
	}
	return adapter.Adapter{
		Name:     "logsink",
		Patterns: patterns,
		OnSignal: func(ctx context.Context, evt event.Event) error {
			logger.Info(ctx, "event",
				"id", evt.ID(),
				"name", evt.Name(),
				"payload", evt.Payload(),
				"source.agent", evt.Source().Agent,
				"source.harness", evt.Source().Harness,
				"source.parent", evt.Source().Parent,
			)
			return nil
		},
	}
}
