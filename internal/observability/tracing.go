package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the linksync tracer.
	TracerName = "github.com/jonesrussell/north-cloud/linksync"
)

// Tracer provides tracing for sync, lifecycle and health passes.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
	}
}

// PassSpan starts a span for a whole-site pass.
// Caller is responsible for calling span.End().
//
//nolint:spancheck // span is returned to caller who manages its lifecycle
func (t *Tracer) PassSpan(ctx context.Context, pass string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "linksync."+pass,
		trace.WithAttributes(attribute.String("pass.name", pass)),
	)
}

// ItemSpan starts a span for one content item within a pass.
// Caller is responsible for calling span.End().
//
//nolint:spancheck // span is returned to caller who manages its lifecycle
func (t *Tracer) ItemSpan(ctx context.Context, pass, itemID string, links int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "linksync."+pass+".item",
		trace.WithAttributes(
			attribute.String("item.id", itemID),
			attribute.Int("item.links", links),
		),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks a span as successful.
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "success")
}
