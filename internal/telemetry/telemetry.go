// Package telemetry defines the logging, metrics, and tracing surface shared
// by every component of the orchestrator. Implementations delegate to
// goa.design/clue/log and OpenTelemetry; a no-op implementation is provided
// for tests so packages never need to special-case "telemetry disabled".
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the orchestrator.
// Implementations typically delegate to Clue but the interface is
// intentionally small so tests can provide lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter, timer, and gauge helpers for runtime
// instrumentation (e.g., dispatcher hit rate, reflexion retry counts).
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so orchestrator code can remain agnostic of
// the underlying OpenTelemetry provider.
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

// ToolTelemetry captures observability metadata collected during a single
// tool invocation issued by the Dispatcher.
type ToolTelemetry struct {
	// DurationMs is the wall-clock execution time in milliseconds.
	DurationMs int64
	// Server is the tool server that handled the call.
	Server string
	// Tool is the resolved tool name.
	Tool string
	// Extra holds server-specific metadata not captured by common fields.
	Extra map[string]any
}

// Set bundles a Logger, Metrics, and Tracer for components that need all
// three. Constructors accept a Set instead of three separate parameters so
// call sites cannot accidentally mix telemetry from different backends.
type Set struct {
	Log     Logger
	Metrics Metrics
	Trace   Tracer
}

// Noop returns a Set whose Logger, Metrics, and Tracer all discard their
// inputs. Useful as a default in tests and for components that have not yet
// been wired to a real telemetry backend.
func Noop() Set {
	return Set{Log: NewNoopLogger(), Metrics: NewNoopMetrics(), Trace: NewNoopTracer()}
}
