package license

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/technosupport/ts-licensing/internal/license")

// endSpan records err on span and ends it. Caller-facing errors are tagged
// with their kind; only internal errors mark the span as failed.
func endSpan(span trace.Span, err error) {
	if err != nil {
		kind := KindOf(err)
		span.SetAttributes(attribute.String("license.error_kind", kind.String()))
		span.RecordError(err)
		if kind == KindInternal {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
