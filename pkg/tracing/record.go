package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"flattener/pkg/models"
)

const tracerName = "flattener-stage"

// InjectTraceContext writes the span context of ctx into headers, replacing
// existing propagation headers. The input slice is not modified.
func InjectTraceContext(ctx context.Context, headers []models.Header) []models.Header {
	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		return headers
	}

	carrier := &headerCarrier{headers: append([]models.Header(nil), headers...)}
	propagator.Inject(ctx, carrier)

	return carrier.headers
}

func ExtractTraceContext(ctx context.Context, headers []models.Header) context.Context {
	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		return ctx
	}

	return propagator.Extract(ctx, &headerCarrier{headers: headers})
}

type headerCarrier struct {
	headers []models.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range c.headers {
		if h.Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, models.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// StartSpanFromRecord continues the trace carried in rec's headers.
func StartSpanFromRecord(ctx context.Context, operationName string, rec models.Record) (context.Context, trace.Span) {
	ctx = ExtractTraceContext(ctx, rec.Headers)

	attrs := []attribute.KeyValue{
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.name", rec.Topic),
		attribute.Int64("messaging.kafka.offset", rec.Offset),
	}
	if rec.Partition != nil {
		attrs = append(attrs, attribute.Int("messaging.kafka.destination.partition", int(*rec.Partition)))
	}

	return GetTracer(tracerName).Start(ctx, operationName, trace.WithAttributes(attrs...))
}
