package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NoopLogger discards every log call. It is the default Logger when a
// caller does not configure one.
type NoopLogger struct{}

// NewNoopLogger returns a Logger that discards all calls.
func NewNoopLogger() NoopLogger { return NoopLogger{} }

func (NoopLogger) Debug(context.Context, string, ...any) {}
func (NoopLogger) Info(context.Context, string, ...any)  {}
func (NoopLogger) Warn(context.Context, string, ...any)  {}
func (NoopLogger) Error(context.Context, string, ...any) {}

// NoopMetrics discards every metrics call. It is the default Metrics when a
// caller does not configure one.
type NoopMetrics struct{}

// NewNoopMetrics returns a Metrics that discards all calls.
func NewNoopMetrics() NoopMetrics { return NoopMetrics{} }

func (NoopMetrics) IncCounter(string, float64, ...string)            {}
func (NoopMetrics) RecordTimer(string, time.Duration, ...string)     {}
func (NoopMetrics) RecordGauge(string, float64, ...string)           {}

// NoopTracer returns spans that discard every call. It is the default
// Tracer when a caller does not configure one.
type NoopTracer struct{}

// NewNoopTracer returns a Tracer that produces discarding spans.
func NewNoopTracer() NoopTracer { return NoopTracer{} }

func (NoopTracer) Start(ctx context.Context, _ string, _ ...trace.SpanStartOption) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (NoopTracer) Span(context.Context) Span { return noopSpan{} }

type noopSpan struct{}

func (noopSpan) End(...trace.SpanEndOption)                {}
func (noopSpan) AddEvent(string, ...any)                   {}
func (noopSpan) SetStatus(codes.Code, string)               {}
func (noopSpan) RecordError(error, ...trace.EventOption)    {}
