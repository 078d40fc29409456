package broker

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flattener/internal/config"
	"flattener/internal/constants"
	"flattener/internal/logger"
	"flattener/pkg/circuitbreaker"
	apperrors "flattener/pkg/errors"
	"flattener/pkg/models"
)

type recordingProducer struct {
	mu        sync.Mutex
	published []models.Record
	topics    []string
	err       error
	closed    int
}

func (p *recordingProducer) Publish(_ context.Context, topic string, rec models.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.published = append(p.published, rec)
	return nil
}

func (p *recordingProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func testKafkaConfig() config.KafkaConfig {
	return config.KafkaConfig{
		Brokers:     []string{"localhost:9092"},
		GroupID:     "test",
		InputTopic:  "in",
		OutputTopic: "out",
		DLQTopic:    "dlq",
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			Multiplier:      2,
		},
	}
}

func TestKafkaConsumer_ProcessWithRetry(t *testing.T) {
	dlq := &recordingProducer{}
	c := NewKafkaConsumer(testKafkaConfig(), logger.NopLogger(), WithDLQProducer(dlq))

	t.Run("transient errors are retried", func(t *testing.T) {
		calls := 0
		err := c.processWithRetry(context.Background(), models.Record{Topic: "in"}, func(context.Context, models.Record) error {
			calls++
			if calls < 3 {
				return errors.New("broker unavailable")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("schema mismatch is not retried", func(t *testing.T) {
		calls := 0
		err := c.processWithRetry(context.Background(), models.Record{Topic: "in"}, func(context.Context, models.Record) error {
			calls++
			return apperrors.SchemaMismatch("Record value is not a JSON object (map).")
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsSchemaMismatch(err))
		assert.Equal(t, 1, calls)
	})

	t.Run("panic becomes fatal error", func(t *testing.T) {
		calls := 0
		err := c.processWithRetry(context.Background(), models.Record{Topic: "in"}, func(context.Context, models.Record) error {
			calls++
			panic("boom")
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsFatal(err))
		assert.Equal(t, 1, calls)
	})
}

func TestKafkaConsumer_SendToDLQ(t *testing.T) {
	dlq := &recordingProducer{}
	c := NewKafkaConsumer(testKafkaConfig(), logger.NopLogger(), WithDLQProducer(dlq))

	m := kafka.Message{
		Topic:     "in",
		Partition: 4,
		Offset:    1234,
		Key:       []byte("k"),
		Value:     []byte(`{"customField":"not-a-map"}`),
		Time:      time.UnixMilli(1700000000000),
		Headers:   []kafka.Header{{Key: "source", Value: []byte("web")}},
	}
	cause := apperrors.SchemaMismatch("The field 'customField' is not a JSON object (map).")

	require.NoError(t, c.sendToDLQ(context.Background(), m, cause))
	require.Len(t, dlq.published, 1)
	assert.Equal(t, "dlq", dlq.topics[0])

	rec := dlq.published[0]
	assert.Equal(t, RawBytes(m.Value), rec.Value)
	assert.Equal(t, RawBytes(m.Key), rec.Key)
	require.NotNil(t, rec.Timestamp)
	assert.Equal(t, int64(1700000000000), *rec.Timestamp)

	header := func(key string) string {
		v, ok := rec.Header(key)
		require.True(t, ok, key)
		return string(v)
	}
	assert.Equal(t, "web", header("source"))
	assert.Contains(t, header(constants.HeaderDLQReason), "The field 'customField' is not a JSON object")
	assert.Equal(t, "SCHEMA_MISMATCH", header(constants.HeaderDLQErrorCode))
	assert.Equal(t, "in", header(constants.HeaderDLQSourceTopic))
	assert.Equal(t, "4", header(constants.HeaderDLQSourcePartition))
	assert.Equal(t, strconv.Itoa(1234), header(constants.HeaderDLQSourceOffset))
	_, err := time.Parse(time.RFC3339Nano, header(constants.HeaderDLQTimestamp))
	assert.NoError(t, err)
}

func TestKafkaConsumer_DLQEncodesOriginalBytes(t *testing.T) {
	dlq := &recordingProducer{}
	c := NewKafkaConsumer(testKafkaConfig(), logger.NopLogger(), WithDLQProducer(dlq))

	raw := []byte(`{"broken":`)
	require.NoError(t, c.sendToDLQ(context.Background(), kafka.Message{Topic: "in", Value: raw}, apperrors.ErrDecode))

	msg, err := NewCodec(true).Encode("dlq", dlq.published[0])
	require.NoError(t, err)
	assert.Equal(t, raw, msg.Value)
}

func TestKafkaConsumer_CloseLeavesSharedDLQProducerOpen(t *testing.T) {
	shared := &recordingProducer{}
	c := NewKafkaConsumer(testKafkaConfig(), logger.NopLogger(), WithDLQProducer(shared))
	require.NoError(t, c.Close())
	assert.Equal(t, 0, shared.closed)

	own := NewKafkaConsumer(testKafkaConfig(), logger.NopLogger())
	assert.True(t, own.ownsDLQ)
	assert.NoError(t, own.Close())
}

func TestKafkaConsumer_WithoutDLQ(t *testing.T) {
	c := NewKafkaConsumer(testKafkaConfig(), logger.NopLogger(), WithoutDLQ())
	assert.Nil(t, c.dlqProducer)
}

func TestKafkaConsumer_StartOffset(t *testing.T) {
	assert.Equal(t, kafka.FirstOffset, NewKafkaConsumer(testKafkaConfig(), logger.NopLogger(), WithoutDLQ()).startOffset)

	c := NewKafkaConsumer(testKafkaConfig(), logger.NopLogger(), WithoutDLQ(), WithLatestOffset(), WithGroupID("g-1"))
	assert.Equal(t, kafka.LastOffset, c.startOffset)
	assert.Equal(t, "g-1", c.groupID)
}

func TestKafkaConsumer_RetryPolicyFromConfig(t *testing.T) {
	cfg := testKafkaConfig()
	cfg.Retry.MaxAttempts = 7
	cfg.Retry.MaxElapsedTime = time.Minute

	policy := NewKafkaConsumer(cfg, logger.NopLogger(), WithoutDLQ()).retryPolicy()
	assert.Equal(t, 7, policy.MaxAttempts)
	assert.Equal(t, time.Millisecond, policy.InitialInterval)
	assert.Equal(t, time.Minute, policy.MaxElapsedTime)
}

func TestCircuitBreakerProducer(t *testing.T) {
	inner := &recordingProducer{err: errors.New("write failed")}
	p := NewCircuitBreakerProducer(inner, circuitbreaker.Config{
		Name:        "test-producer",
		MaxRequests: 1,
		Timeout:     time.Hour,
		ReadyToTrip: circuitbreaker.RatioTrip(2, 1),
	}, logger.NopLogger())

	for i := 0; i < 2; i++ {
		err := p.Publish(context.Background(), "out", models.Record{})
		assert.EqualError(t, err, "write failed")
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	err := p.Publish(context.Background(), "out", models.Record{})
	require.Error(t, err)
	assert.Equal(t, "SERVICE_UNAVAILABLE", apperrors.Code(err))
	assert.False(t, apperrors.IsFatal(err))
}

func TestFactory_UnknownBroker(t *testing.T) {
	_, err := NewProducer(config.BrokerConfig{Type: "nats"}, logger.NopLogger())
	assert.Error(t, err)

	_, err = NewConsumer(config.BrokerConfig{Type: "nats"}, logger.NopLogger())
	assert.Error(t, err)
}

func TestFactory_BreakerDisabled(t *testing.T) {
	p, err := NewProducerWithBreaker(config.BrokerConfig{Type: "kafka", Kafka: testKafkaConfig()}, config.CircuitBreakerConfig{}, logger.NopLogger())
	require.NoError(t, err)
	_, isKafka := p.(*KafkaProducer)
	assert.True(t, isKafka)
	require.NoError(t, p.Close())
}
