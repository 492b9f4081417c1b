package descriptor

import (
	"context"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "projsync/descriptor"

func startSpan(ctx context.Context, name, path string) (context.Context, trace.Span) {
	return otelapi.Tracer(tracerName).Start(ctx, name,
		trace.WithAttributes(attribute.String("descriptor.path", path)),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
