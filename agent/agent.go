// Package agent defines the passive agent declaration the scheduler
// activates: a set of triggering patterns, an optional guard, an optional
// state field to write, the events it may emit, and the prompt that drives
// its harness turn.
//
// An agent definition carries no behavior of its own beyond these fields —
// all activation, guard evaluation, and state mutation happens through the
// scheduler and state box, never inside the definition.
package agent

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/reactorflow/engine/harness"
)

// Context is handed to a guard and to a prompt function. State is always a
// frozen snapshot; Input is the original run input the workflow was invoked
// with, unchanged for the life of the run.
type Context[S any] struct {
	Event EventView
	State S
	Input any
}

// EventView is the subset of event.Event an agent's guard/prompt needs.
// Declared independently of package event to avoid forcing every agent
// author to import it for the common case of reading Name/Payload.
type EventView struct {
	ID      string
	Name    string
	Payload any
}

// Guard decides whether an activation should proceed for ctx.
type Guard[S any] func(ctx Context[S]) bool

// Prompt produces the text handed to the harness as its system prompt for
// this activation.
type Prompt[S any] func(ctx Context[S]) (string, error)

// Static returns a Prompt that ignores ctx and always yields s verbatim.
func Static[S any](s string) Prompt[S] {
	return func(Context[S]) (string, error) { return s, nil }
}

// Template returns a Prompt that expands {{state.field}}, {{input}},
// {{signal.name}}, and bareword {{field}} (read as {{state.field}})
// placeholders in tmpl against ctx. Bareword fields are resolved by
// exported JSON-tagged or Go field name against ctx.State.
func Template[S any](tmpl string) Prompt[S] {
	return func(ctx Context[S]) (string, error) {
		return expandTemplate(tmpl, ctx)
	}
}

func expandTemplate[S any](tmpl string, ctx Context[S]) (string, error) {
	var b strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			b.WriteString(rest)
			break
		}
		end += start
		b.WriteString(rest[:start])
		key := strings.TrimSpace(rest[start+2 : end])
		val, err := resolveTemplateKey(key, ctx)
		if err != nil {
			return "", fmt.Errorf("agent: expand template key %q: %w", key, err)
		}
		b.WriteString(val)
		rest = rest[end+2:]
	}
	return b.String(), nil
}

func resolveTemplateKey[S any](key string, ctx Context[S]) (string, error) {
	switch {
	case key == "input":
		return fmt.Sprintf("%v", ctx.Input), nil
	case key == "signal.name":
		return ctx.Event.Name, nil
	case strings.HasPrefix(key, "state."):
		return stateFieldString(ctx.State, strings.TrimPrefix(key, "state."))
	default:
		return stateFieldString(ctx.State, key)
	}
}

// stateFieldString resolves field (a JSON tag or exported Go field name) on
// state via reflection and renders it with fmt's default verb.
func stateFieldString(state any, field string) (string, error) {
	v := reflect.ValueOf(state)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", fmt.Errorf("state is not a struct, cannot resolve field %q", field)
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("json"); ok {
			if comma := strings.IndexByte(tag, ','); comma != -1 {
				tag = tag[:comma]
			}
			if tag != "" && tag != "-" {
				name = tag
			}
		}
		if name == field || sf.Name == field {
			return fmt.Sprintf("%v", v.Field(i).Interface()), nil
		}
	}
	return "", fmt.Errorf("no such state field %q", field)
}

// Definition is a user-authored agent declaration. Patterns is required and
// non-empty; every other field is optional.
type Definition[S any] struct {
	// Patterns are the bus patterns that trigger this agent's activation.
	Patterns []string
	// Emits lists the event names this agent may fan out on activation
	// completion.
	Emits []string
	// Guard, if set, gates activation on ctx; a false result skips
	// activation without launching a harness turn.
	Guard Guard[S]
	// Updates, if non-empty, names the state field this agent's output is
	// written to on completion.
	Updates string
	// Prompt produces the harness system prompt for an activation. Required.
	Prompt Prompt[S]
	// Schema, if set, is the JSON Schema the harness driver coerces
	// structured output against when the harness itself didn't report one.
	Schema []byte
	// Harness, if set, overrides the run's default harness for this agent.
	Harness harness.Harness
}

// Validate checks the invariants Definition must hold before it can be
// registered with a workflow: at least one pattern, and a prompt.
func (d Definition[S]) Validate(name string) error {
	if len(d.Patterns) == 0 {
		return fmt.Errorf("agent: %s declares no activation patterns", name)
	}
	if d.Prompt == nil {
		return fmt.Errorf("agent: %s declares no prompt", name)
	}
	return nil
}
