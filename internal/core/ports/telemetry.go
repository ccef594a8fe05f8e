package ports

import "context"

// SpanConfig carries options applied when starting a span.
type SpanConfig struct {
	Attributes map[string]any
}

// SpanOption configures a SpanConfig when starting a span.
type SpanOption func(*SpanConfig)

// Span represents a single unit of traced work.
//
//go:generate mockgen -source=telemetry.go -destination=mocks/mock_telemetry.go -package=mocks
type Span interface {
	// End completes the span.
	End()

	// RecordError attaches an error to the span and marks it as failed.
	RecordError(err error)

	// SetAttribute attaches a key-value pair to the span.
	SetAttribute(key string, value any)

	// Write appends raw log bytes to the span, satisfying io.Writer.
	Write(p []byte) (n int, err error)

	// MarkExecStart signals that command execution has begun within the span.
	MarkExecStart()
}

// Tracer starts spans and emits scheduler-wide lifecycle events.
type Tracer interface {
	// Start begins a new span named name, returning a derived context and the span.
	Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)

	// EmitPlan reports the planned task graph before execution begins.
	EmitPlan(ctx context.Context, taskNames []string, dependencies map[string][]string, targets []string)

	// Shutdown flushes and stops the tracer.
	Shutdown(ctx context.Context) error
}
