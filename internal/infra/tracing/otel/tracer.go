// Package otel adapts OpenTelemetry tracing to the service tracer hook.
package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"estatecore/internal/core"
)

const instrumentationName = "estatecore/internal/core"

// Tracer starts one internal span per service operation.
type Tracer struct {
	tracer trace.Tracer
}

// New returns a Tracer backed by provider, or by the global provider when nil.
func New(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{tracer: provider.Tracer(instrumentationName)}
}

// Start implements core.Tracer.
func (t *Tracer) Start(ctx context.Context, operation string) (context.Context, core.TraceSpan) {
	ctx, span := t.tracer.Start(ctx, "estatecore."+operation, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("estatecore.operation", operation))
	span.AddEvent("estatecore.begin")
	return ctx, spanEnder{span: span}
}

type spanEnder struct {
	span trace.Span
}

func (s spanEnder) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
