package logging

import (
	"context"
)

type contextKey string

const (
	TraceIDKey     contextKey = "trace_id"
	TopicKey       contextKey = "topic"
	PartitionKey   contextKey = "partition"
	OffsetKey      contextKey = "offset"
	ServiceNameKey contextKey = "service_name"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRecordPosition tags ctx with the broker coordinates of the record being processed.
func WithRecordPosition(ctx context.Context, topic string, partition int32, offset int64) context.Context {
	ctx = context.WithValue(ctx, TopicKey, topic)
	ctx = context.WithValue(ctx, PartitionKey, partition)
	return context.WithValue(ctx, OffsetKey, offset)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func GetServiceName(ctx context.Context) string {
	if serviceName, ok := ctx.Value(ServiceNameKey).(string); ok {
		return serviceName
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 10)

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, "trace_id", traceID)
	}

	if topic, ok := ctx.Value(TopicKey).(string); ok && topic != "" {
		fields = append(fields, "record_topic", topic)
		if partition, ok := ctx.Value(PartitionKey).(int32); ok {
			fields = append(fields, "record_partition", partition)
		}
		if offset, ok := ctx.Value(OffsetKey).(int64); ok {
			fields = append(fields, "record_offset", offset)
		}
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, "service_name", serviceName)
	}

	return fields
}
