package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	"flattener/pkg/models"
)

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "produce")
	defer span.End()

	original := []models.Header{{Key: "source", Value: []byte("web")}}
	headers := InjectTraceContext(ctx, original)

	require.Len(t, original, 1)
	require.Len(t, headers, 2)
	assert.Equal(t, "traceparent", headers[1].Key)

	extracted := ExtractTraceContext(context.Background(), headers)
	assert.Equal(t, span.SpanContext().TraceID(), oteltrace.SpanContextFromContext(extracted).TraceID())
}

func TestInjectTraceContext_ReplacesExistingHeader(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "produce")
	defer span.End()

	stale := []models.Header{{Key: "traceparent", Value: []byte("stale")}}
	headers := InjectTraceContext(ctx, stale)

	require.Len(t, headers, 1)
	assert.NotEqual(t, "stale", string(headers[0].Value))
	assert.Equal(t, "stale", string(stale[0].Value))
}

func TestStartSpanFromRecord_WithoutParent(t *testing.T) {
	rec := models.NewRecordBuilder().WithTopic("orders").WithPartition(1).Build()

	ctx, span := StartSpanFromRecord(context.Background(), "flatten", rec)
	defer span.End()
	assert.NotNil(t, ctx)
}
