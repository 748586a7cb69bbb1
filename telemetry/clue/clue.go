// Package clue wires goa.design/clue's logger and OpenTelemetry's metrics
// and tracing onto the telemetry.Logger/Metrics/Tracer seams, for callers
// that want real observability without depending on Temporal.
package clue

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"

	"github.com/reactorflow/engine/telemetry"
)

// Logger wraps goa.design/clue/log. It reads formatting and debug settings
// from the context, set via log.Context and log.WithFormat/log.WithDebug.
type Logger struct{}

// NewLogger constructs a telemetry.Logger backed by goa.design/clue/log.
func NewLogger() telemetry.Logger { return Logger{} }

func (Logger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, fielders(msg, keyvals)...)
}

func (Logger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, fielders(msg, keyvals)...)
}

func (Logger) Warn(ctx context.Context, msg string, keyvals ...any) {
	log.Warn(ctx, append(fielders(msg, keyvals), log.KV{K: "severity", V: "warning"})...)
}

func (Logger) Error(ctx context.Context, msg string, keyvals ...any) {
	log.Error(ctx, nil, fielders(msg, keyvals)...)
}

func fielders(msg string, keyvals []any) []log.Fielder {
	out := []log.Fielder{log.KV{K: "msg", V: msg}}
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		out = append(out, log.KV{K: key, V: keyvals[i+1]})
	}
	return out
}

// Metrics wraps an OTEL Meter for engine instrumentation.
type Metrics struct {
	meter metric.Meter
}

// NewMetrics constructs a telemetry.Metrics backed by the OTEL global
// MeterProvider. Configure the provider (e.g. via clue.ConfigureOpenTelemetry)
// before using the returned value.
func NewMetrics() telemetry.Metrics {
	return &Metrics{meter: otel.Meter("github.com/reactorflow/engine")}
}

func (m *Metrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func (m *Metrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	hist, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	hist.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagAttrs(tags)...))
}

func (m *Metrics) RecordGauge(name string, value float64, tags ...string) {
	hist, err := m.meter.Float64Histogram(name + "_gauge")
	if err != nil {
		return
	}
	hist.Record(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func tagAttrs(tags []string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}

// Tracer wraps an OTEL Tracer for engine instrumentation.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer constructs a telemetry.Tracer backed by the OTEL global
// TracerProvider.
func NewTracer() telemetry.Tracer {
	return &Tracer{tracer: otel.Tracer("github.com/reactorflow/engine")}
}

func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, telemetry.Span) {
	newCtx, span := t.tracer.Start(ctx, name, opts...)
	return newCtx, &spanWrapper{span: span}
}

func (t *Tracer) Span(ctx context.Context) telemetry.Span {
	return &spanWrapper{span: trace.SpanFromContext(ctx)}
}

type spanWrapper struct {
	span trace.Span
}

func (s *spanWrapper) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }

func (s *spanWrapper) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name, trace.WithAttributes(eventAttrs(attrs)...))
}

func (s *spanWrapper) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s *spanWrapper) RecordError(err error, opts ...trace.EventOption) {
	s.span.RecordError(err, opts...)
}

func eventAttrs(keyvals []any) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		switch v := keyvals[i+1].(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		default:
			attrs = append(attrs, attribute.String(key, ""))
		}
	}
	return attrs
}

var (
	_ telemetry.Logger  = Logger{}
	_ telemetry.Metrics = (*Metrics)(nil)
	_ telemetry.Tracer  = (*Tracer)(nil)
	_ telemetry.Span    = (*spanWrapper)(nil)
)
