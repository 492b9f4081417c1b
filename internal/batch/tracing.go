package batch

import (
	"context"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func startFlushSpan(ctx context.Context, size int) (context.Context, trace.Span) {
	return otelapi.Tracer("projsync/batch").Start(ctx, "batch.flush",
		trace.WithAttributes(attribute.Int("batch.size", size)),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
