package main

import (
	"context"
	"fmt"
	"io"

	goredis "github.com/redis/go-redis/v9"

	"github.com/reactorflow/engine/adapter"
	"github.com/reactorflow/engine/adapter/logsink"
	"github.com/reactorflow/engine/adapter/pulse"
	"github.com/reactorflow/engine/adapter/sse"
	"github.com/reactorflow/engine/adapter/terminal"
	"github.com/reactorflow/engine/config"
	"github.com/reactorflow/engine/event"
	"github.com/reactorflow/engine/harness"
	"github.com/reactorflow/engine/ids"
	"github.com/reactorflow/engine/signalstore"
	"github.com/reactorflow/engine/signalstore/file"
	"github.com/reactorflow/engine/signalstore/inmem"
	"github.com/reactorflow/engine/signalstore/redis"
)

// buildAdapter resolves cfg.Kind to a concrete adapter.Adapter.
func buildAdapter(cfg config.AdapterConfig, out io.Writer) (adapter.Adapter, error) {
	switch cfg.Kind {
	case "terminal":
		return terminal.New(terminal.Options{Writer: out}), nil
	case "log":
		return logsink.New(logsink.Options{}), nil
	case "sse":
		hub := sse.NewHub()
		return sse.New(hub), nil
	case "pulse":
		client := goredis.NewClient(&goredis.Options{Addr: stringOpt(cfg.Options, "addr", "localhost:6379")})
		streamName := stringOpt(cfg.Options, "stream", "reactorflow")
		return pulse.New(pulse.Options{Redis: client, StreamName: streamName})
	default:
		return adapter.Adapter{}, fmt.Errorf("reactorctl: unknown adapter kind %q", cfg.Kind)
	}
}

// buildStore resolves cfg.Kind to a concrete signalstore.Store.
func buildStore(cfg config.StoreConfig) (signalstore.Store, error) {
	switch cfg.Kind {
	case "", "inmem":
		return inmem.New(), nil
	case "file":
		dir := stringOpt(cfg.Options, "dir", "./recordings")
		return file.New(dir)
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: stringOpt(cfg.Options, "addr", "localhost:6379")})
		return redis.New(redis.Options{Client: client, KeyPrefix: stringOpt(cfg.Options, "prefix", "reactorflow:")})
	case "mongo":
		return nil, fmt.Errorf("reactorctl: mongo store requires a live client; wire it programmatically instead of via CLI config")
	default:
		return nil, fmt.Errorf("reactorctl: unknown store kind %q", cfg.Kind)
	}
}

// buildHarness resolves cfg.Kind to a harness.Harness. Only "stub" is
// wired from CLI config alone — the real provider backends need live
// credentials and SDK clients a YAML file shouldn't carry, so callers wire
// those programmatically and pass them into reactor.Config directly.
func buildHarness(cfg config.HarnessConfig) (harness.Harness, error) {
	switch cfg.Kind {
	case "", "stub":
		return stubHarness{content: stringOpt(cfg.Options, "content", "stub response")}, nil
	case "anthropic", "openai", "bedrock":
		return nil, fmt.Errorf("reactorctl: harness kind %q requires a live SDK client; construct it programmatically", cfg.Kind)
	default:
		return nil, fmt.Errorf("reactorctl: unknown harness kind %q", cfg.Kind)
	}
}

func stringOpt(opts map[string]any, key, fallback string) string {
	if v, ok := opts[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// stubHarness is a deterministic, no-network harness.Harness used for demos
// and the "stub" config kind.
type stubHarness struct {
	content string
}

func (h stubHarness) Run(ctx context.Context, in harness.Input, rc harness.RunContext) (harness.Stream, error) {
	idgen := ids.New()
	return &stubStream{events: []event.Event{
		event.New(idgen.Next(), "harness:start", nil, event.Source{Harness: "stub"}),
		event.New(idgen.Next(), "harness:end", harness.Output{Content: h.content}, event.Source{Harness: "stub"}),
	}}, nil
}

var _ harness.Harness = stubHarness{}

type stubStream struct {
	events []event.Event
	pos    int
}

func (s *stubStream) Recv() (event.Event, error) {
	if s.pos >= len(s.events) {
		return event.Event{}, io.EOF
	}
	evt := s.events[s.pos]
	s.pos++
	return evt, nil
}

func (s *stubStream) Close() error { return nil }

var _ harness.Stream = (*stubStream)(nil)
