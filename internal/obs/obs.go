// Package obs integrates dispatcher, session, task, and transport events with
// structured logging and OpenTelemetry tracing/metrics. Implementations
// typically delegate to Clue but the interfaces are intentionally small so
// tests and embedders can supply lightweight stubs.
package obs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the core.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter, timer, and gauge helpers for core instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so core code stays agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// Provider bundles the three ambient observability ports so components can
// depend on one constructor argument instead of three.
type Provider struct {
	Log     Logger
	Metrics Metrics
	Trace   Tracer
}

// NewNoopProvider returns a Provider that discards all observability output,
// the default for tests and for embedders who have not wired OTel/Clue.
func NewNoopProvider() Provider {
	return Provider{Log: NewNoopLogger(), Metrics: NewNoopMetrics(), Trace: NewNoopTracer()}
}

// NewClueProvider returns a Provider backed by goa.design/clue/log for
// logging and the global OTel providers for tracing/metrics. Configure the
// global providers (via clue.ConfigureOpenTelemetry or OTEL_EXPORTER_OTLP_*
// environment variables) before constructing transports/dispatchers that use
// this provider.
func NewClueProvider() Provider {
	return Provider{Log: NewClueLogger(), Metrics: NewClueMetrics(), Trace: NewClueTracer()}
}
