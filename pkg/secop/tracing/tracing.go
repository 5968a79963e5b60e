// Package tracing provides OpenTelemetry span helpers around the
// read/write wrapper and dispatcher request handling (SPEC_FULL.md §3,
// §7 ambient additions).
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/vitalybin/frappy/secop")

// StartParamSpan opens a span named "secop.module.<op>" tagged with the
// module and parameter it concerns.
func StartParamSpan(ctx context.Context, op, module, parameter string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "secop.module."+op,
		trace.WithAttributes(
			attribute.String("module", module),
			attribute.String("parameter", parameter),
		),
	)
}

// StartDispatchSpan opens a span named "secop.dispatch.<action>" for one
// incoming client request.
func StartDispatchSpan(ctx context.Context, action, specifier string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "secop.dispatch."+action,
		trace.WithAttributes(attribute.String("specifier", specifier)),
	)
}

// End records err (if any) on span and closes it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
