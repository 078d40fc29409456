package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"flattener/pkg/logging"
)

func TestContextFieldsAreAttached(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &SugaredLogger{SugaredLogger: zap.New(core).Sugar()}
	l.SetServiceName("flattener")

	ctx := logging.WithRecordPosition(context.Background(), "orders", 1, 5)
	l.InfowCtx(ctx, "Record transformed", "outcome", "transformed")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "orders", fields["record_topic"])
	assert.Equal(t, int64(5), fields["record_offset"])
	assert.Equal(t, "flattener", fields["service_name"])
	assert.Equal(t, "transformed", fields["outcome"])
}

func TestNew(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", ""} {
		l, err := New(level, "json")
		require.NoError(t, err)
		assert.NotNil(t, l)
	}
}
