package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/tkersh/echobase-sub003"

// OTelTracer propagates W3C trace context and baggage through carriers and
// opens spans on the global TracerProvider.
type OTelTracer struct {
	propagator propagation.TextMapPropagator
	tracer     trace.Tracer
}

// NewOTelTracer builds a Tracer on the globally registered provider.
func NewOTelTracer() *OTelTracer {
	return &OTelTracer{
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
		tracer: otel.GetTracerProvider().Tracer(instrumentationName),
	}
}

func (t *OTelTracer) Inject(ctx context.Context, carrier map[string]string) {
	if carrier == nil {
		return
	}
	t.propagator.Inject(ctx, propagation.MapCarrier(carrier))
}

func (t *OTelTracer) Extract(ctx context.Context, carrier map[string]string) context.Context {
	if len(carrier) == 0 {
		return ctx
	}
	return t.propagator.Extract(ctx, propagation.MapCarrier(carrier))
}

func (t *OTelTracer) Start(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, func() { span.End() }
}

var _ Tracer = (*OTelTracer)(nil)
