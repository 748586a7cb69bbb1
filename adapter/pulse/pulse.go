// Package pulse provides an adapter.Adapter that publishes every matching
// event to a Redis-Streams-backed Pulse stream, for distributed consumers
// that need to observe a run from outside the engine process.
package pulse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"

	"github.com/reactorflow/engine/adapter"
	"github.com/reactorflow/engine/event"
)

// Options configures the Pulse adapter.
type Options struct {
	// Redis is the connection backing the Pulse stream. Required.
	Redis *redis.Client
	// StreamName names the Pulse stream events are published to.
	StreamName string
	// OperationTimeout bounds each publish call. Zero means no timeout.
	OperationTimeout time.Duration
	// Patterns overrides the default "**" subscription.
	Patterns []string
}

type envelope struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Payload any    `json:"payload"`
	Source  struct {
		Agent   string `json:"agent,omitempty"`
		Harness string `json:"harness,omitempty"`
		Parent  string `json:"parent,omitempty"`
	} `json:"source,omitempty"`
}

// New opens (or creates) the configured Pulse stream and returns an
// adapter.Adapter that publishes every matching event to it.
func New(opts Options) (adapter.Adapter, error) {
	if opts.Redis == nil {
		return adapter.Adapter{}, fmt.Errorf("adapter/pulse: redis client is required")
	}
	if opts.StreamName == "" {
		return adapter.Adapter{}, fmt.Errorf("adapter/pulse: stream name is required")
	}
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = []string{"**"}
	}

	stream, err := streaming.NewStream(opts.StreamName, opts.Redis)
	if err != nil {
		return adapter.Adapter{}, fmt.Errorf("adapter/pulse: open stream: %w", err)
	}

	return adapter.Adapter{
		Name:     "pulse",
		Patterns: patterns,
		OnSignal: func(ctx context.Context, evt event.Event) error {
			if opts.OperationTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.OperationTimeout)
				defer cancel()
			}
			env := envelope{ID: evt.ID(), Name: evt.Name(), Payload: evt.Payload()}
			env.Source.Agent = evt.Source().Agent
			env.Source.Harness = evt.Source().Harness
			env.Source.Parent = evt.Source().Parent
			buf, err := json.Marshal(env)
			if err != nil {
				return fmt.Errorf("adapter/pulse: marshal envelope: %w", err)
			}
			_, err = stream.Add(ctx, evt.Name(), buf)
			if err != nil {
				return fmt.Errorf("adapter/pulse: publish: %w", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return nil
		},
	}, nil
}
