// Package otel holds span helpers shared by the scheduler and the read side.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys
const (
	AttrCollectionID = attribute.Key("collection.id")
	AttrSyncState    = attribute.Key("collection.sync_state")
	AttrRunID        = attribute.Key("refresh.run_id")
	AttrOutcome      = attribute.Key("refresh.outcome")
	AttrLockHolder   = attribute.Key("lock.holder")
	AttrResultCount  = attribute.Key("result.count")
)

// StartSpan starts a span, or returns the span already in ctx when tracer is nil
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError marks span as failed. The status text stays generic; the error
// itself, which may hold file paths, goes into the span event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
