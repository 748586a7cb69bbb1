// Package harness defines the contract a streaming LLM-facing backend must
// satisfy to drive an agent activation, plus the driver that consumes a
// harness's event stream, forwards it to the bus, and extracts the final
// output (including schema-coerced structured output).
//
// The harness itself is an external collaborator (spec §6.1): the engine
// never interprets prompts or calls a model directly. This module ships no
// provider-backed implementation; the only concrete Harness in the tree is
// the deterministic stub in cmd/reactorctl.
package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/reactorflow/engine/event"
)

// Message is a single turn in the conversation handed to the harness.
type Message struct {
	Role    string
	Content string
}

// Input is the payload a harness receives to start a streaming turn.
type Input struct {
	// System is the expanded prompt (template already resolved against the
	// triggering agent's context).
	System string
	// Messages carries any conversational history the caller wants the
	// harness to see in addition to System.
	Messages []Message
	// OutputSchema is the JSON Schema the harness should coerce its final
	// structured output against, if the agent declared one. Nil means no
	// schema was declared.
	OutputSchema []byte
}

// RunContext carries per-activation metadata a harness needs to respect
// cancellation and correlate its events.
type RunContext struct {
	// AbortFlag, when non-nil and set, asks the harness to stop producing
	// further events as soon as possible.
	AbortFlag *AbortFlag
	// RunID identifies the workflow run driving this activation.
	RunID string
}

// AbortFlag is a simple, concurrency-safe on/off signal shared between the
// engine and a harness implementation.
type AbortFlag struct {
	ch chan struct{}
}

// NewAbortFlag returns a ready-to-use, unset AbortFlag.
func NewAbortFlag() *AbortFlag { return &AbortFlag{ch: make(chan struct{})} }

// Set signals the flag. Set is idempotent and safe to call more than once.
func (f *AbortFlag) Set() {
	select {
	case <-f.ch:
	default:
		close(f.ch)
	}
}

// Done returns a channel that is closed once Set has been called.
func (f *AbortFlag) Done() <-chan struct{} { return f.ch }

// Output is the final result produced when a harness sequence completes.
type Output struct {
	// Content is the raw text response, if any.
	Content string
	// StructuredOutput is the harness-reported structured result, if the
	// harness itself produced one directly (bypassing the engine's JSON
	// fallback extraction).
	StructuredOutput any
}

// Stream is a generator-style producer of bus events terminated by a
// harness:end event (or io.EOF if the harness closed without producing
// one, which the driver treats as an error). Implementations model the
// same Recv-until-EOF shape as a typical streaming SDK client.
type Stream interface {
	// Recv returns the next event in the harness sequence. It returns
	// io.EOF once the sequence is exhausted.
	Recv() (event.Event, error)
	// Close releases any resources held by the stream. Close is always
	// called by the driver, even after an error or io.EOF.
	Close() error
}

// Harness is the external, caller-supplied streaming backend an agent
// activation drives. A harness must yield a "harness:start" event first and
// a "harness:end" event last, and must respect RunContext.AbortFlag.
type Harness interface {
	Run(ctx context.Context, in Input, rc RunContext) (Stream, error)
}

// familyPrefixes lists the event-name prefixes a harness may legitimately
// produce. The replayer uses this to find where a harness sequence starts
// in a recording.
var familyPrefixes = []string{"harness:", "text:", "tool:", "thinking:"}

// IsFamilyEvent reports whether name belongs to one of the harness event
// families (harness:*, text:*, tool:*, thinking:*).
func IsFamilyEvent(name string) bool {
	for _, p := range familyPrefixes {
		if len(name) >= len(p) && name[:len(p)] == p {
			return true
		}
	}
	return false
}

// ErrNoTerminalEvent is returned when a harness stream ends without ever
// producing a "harness:end" event.
var ErrNoTerminalEvent = errors.New("harness: stream ended without harness:end")

// endPayload is the shape the driver expects from a "harness:end" event's
// payload. Harness implementations are expected to emit either this type or
// a value that round-trips through JSON into it (map[string]any is common
// for harnesses built around a generic event envelope).
type endPayload struct {
	Output   Output `json:"output"`
	Duration int64  `json:"durationMs"`
}

// Forward runs h against in, forwarding every yielded event to publish
// (typically bus.Bus.Publish) and returning the final output once
// "harness:end" arrives. If the agent declared a schema (in.OutputSchema)
// and the harness didn't set StructuredOutput itself, Forward attempts the
// best-effort JSON-fallback extraction described in the design notes,
// validating the candidate against the schema before accepting it.
func Forward(
	ctx context.Context,
	h Harness,
	in Input,
	rc RunContext,
	publish func(evt event.Event),
) (Output, error) {
	stream, err := h.Run(ctx, in, rc)
	if err != nil {
		return Output{}, fmt.Errorf("harness: start stream: %w", err)
	}
	defer stream.Close()

	var (
		out  Output
		seen bool
	)
	for {
		evt, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Output{}, fmt.Errorf("harness: stream: %w", err)
		}
		publish(evt)
		if evt.Name() == "harness:end" {
			seen = true
			out = decodeEndPayload(evt.Payload())
			break
		}
	}
	if !seen {
		return Output{}, ErrNoTerminalEvent
	}
	return FinalizeOutput(out.asPayload(), in.OutputSchema), nil
}

// asPayload lets Forward route its already-decoded Output back through
// FinalizeOutput without double-decoding.
func (o Output) asPayload() any { return o }

// FinalizeOutput decodes a "harness:end" event payload into an Output and,
// if schema is non-empty and the harness didn't already report structured
// output itself, applies the best-effort JSON-fallback extraction described
// in the design notes. The replayer calls this with a replayed payload so
// replay and live runs apply the identical extraction rule.
func FinalizeOutput(payload any, schema []byte) Output {
	out := decodeEndPayload(payload)
	if len(schema) > 0 && out.StructuredOutput == nil {
		if so, ok := coerceStructuredOutput(out.Content, schema); ok {
			out.StructuredOutput = so
		}
	}
	return out
}

func decodeEndPayload(payload any) Output {
	if out, ok := payload.(Output); ok {
		return out
	}
	if p, ok := payload.(*endPayload); ok {
		return p.Output
	}
	// Best effort: round-trip anything JSON-marshalable (e.g. map[string]any)
	// into the expected shape.
	buf, err := json.Marshal(payload)
	if err != nil {
		return Output{}
	}
	var p endPayload
	if err := json.Unmarshal(buf, &p); err != nil {
		return Output{}
	}
	return p.Output
}

// coerceStructuredOutput locates the first top-level JSON object or array in
// content (first '{' or '[' through its matching close), parses it, and
// validates it against schema. On any failure it returns ok=false and the
// caller leaves StructuredOutput unset — this is an interoperability hack
// for imperfect backends, not a semantic guarantee.
func coerceStructuredOutput(content string, schema []byte) (any, bool) {
	span := extractJSONSpan(content)
	if span == "" {
		return nil, false
	}
	var candidate any
	if err := json.Unmarshal([]byte(span), &candidate); err != nil {
		return nil, false
	}
	if err := validateAgainstSchema(candidate, schema); err != nil {
		return nil, false
	}
	return candidate, true
}

func extractJSONSpan(content string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '{':
			start, open, close = i, '{', '}'
		case '[':
			start, open, close = i, '[', ']'
		}
		if start != -1 {
			break
		}
	}
	if start == -1 {
		return ""
	}
	last := bytes.LastIndexByte([]byte(content), close)
	if last == -1 || last < start {
		return ""
	}
	_ = open
	return content[start : last+1]
}

func validateAgainstSchema(candidate any, schemaBytes []byte) error {
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return schema.Validate(candidate)
}
