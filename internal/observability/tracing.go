package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer. A span is opened only where a
// caller calls Start; the orchestrator and the CRM adapters do not
// construct a Tracer or open spans.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// TraceConfig configures tracer construction. ServiceName is attached to
// every span as a resource attribute.
type TraceConfig struct {
	ServiceName string
}

// NewTracer builds a Tracer backed by the stdlib SDK's default sampler.
// Exporting spans to a collector is an operator-side concern (wire an
// otlptrace exporter into the returned provider); the core only needs a
// valid trace.Tracer to annotate its own operations.
func NewTracer(cfg TraceConfig) *Tracer {
	provider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(provider)
	name := cfg.ServiceName
	if name == "" {
		name = "convoy"
	}
	return &Tracer{provider: provider, tracer: provider.Tracer(name)}
}

// Start opens a span named op, e.g. "orchestrator.turn" or "crm.create_appointment".
func (t *Tracer) Start(ctx context.Context, op string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, op)
}

// Shutdown flushes and stops the underlying provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}
