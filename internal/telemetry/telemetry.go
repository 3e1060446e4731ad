// Package telemetry wraps OpenTelemetry span creation for lifecycle and
// merge train operations. It mirrors the teacher's internal/executor/
// tracing.go start/end span pair, collapsed into one pair reusable across
// operations instead of one pair per concept, since this domain has no
// workflow/goal/subagent hierarchy to mirror. With no SDK configured,
// otel.Tracer returns the no-op tracer, so spans are always safe to start
// whether or not an exporter is wired up downstream.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/vinayprograms/zjj")

// StartSpan begins a span named op with the given attributes attached.
func StartSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, op)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
