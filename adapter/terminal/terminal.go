// Package terminal provides an adapter.Adapter that renders events as
// colorized, human-readable lines, for demos and CLI runs.
package terminal

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/reactorflow/engine/adapter"
	"github.com/reactorflow/engine/event"
)

var (
	workflowColor = color.New(color.FgCyan, color.Bold)
	agentColor    = color.New(color.FgGreen)
	stateColor    = color.New(color.FgYellow)
	harnessColor  = color.New(color.FgMagenta)
	defaultColor  = color.New(color.Reset)
)

// Options configures the terminal adapter.
type Options struct {
	// Writer is where rendered lines are written. Defaults to os.Stdout.
	Writer io.Writer
	// Patterns overrides the default "**" subscription.
	Patterns []string
}

// New returns an adapter.Adapter that writes one colorized line per
// matching event.
func New(opts Options) adapter.Adapter {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = []string{"**"}
	}
	return adapter.Adapter{
		Name:     "terminal",
		Patterns: patterns,
		OnSignal: func(_ context.Context, evt event.Event) error {
			_, err := fmt.Fprintln(w, render(evt))
			return err
		},
	}
}

func render(evt event.Event) string {
	c := colorFor(evt.Name())
	return c.Sprintf("[%s] %s %v", evt.ID(), evt.Name(), evt.Payload())
}

func colorFor(name string) *color.Color {
	switch {
	case hasPrefix(name, "workflow:"):
		return workflowColor
	case hasPrefix(name, "agent:"):
		return agentColor
	case hasPrefix(name, "state:"):
		return stateColor
	case hasPrefix(name, "harness:"), hasPrefix(name, "text:"), hasPrefix(name, "tool:"), hasPrefix(name, "thinking:"):
		return harnessColor
	default:
		return defaultColor
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
