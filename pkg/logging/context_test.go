package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	assert.Empty(t, GetLogFields(context.Background()))

	ctx := WithTraceID(context.Background(), "abc")
	ctx = WithRecordPosition(ctx, "orders", 2, 17)
	ctx = WithServiceName(ctx, "flattener")

	assert.Equal(t, []interface{}{
		"trace_id", "abc",
		"record_topic", "orders",
		"record_partition", int32(2),
		"record_offset", int64(17),
		"service_name", "flattener",
	}, GetLogFields(ctx))
}
