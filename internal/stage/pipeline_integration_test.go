//go:build integration

package stage

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"

	"flattener/internal/broker"
	"flattener/internal/config"
	"flattener/internal/constants"
	"flattener/internal/logger"
)

func setupKafka(t *testing.T, topics ...string) []string {
	t.Helper()
	ctx := context.Background()

	container, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkamodule.WithClusterID("flattener-test"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	}
	require.NoError(t, controllerConn.CreateTopics(configs...))

	return brokers
}

func readOne(t *testing.T, brokers []string, topic string) kafka.Message {
	t.Helper()
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
		MaxWait:     500 * time.Millisecond,
	})
	defer reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	return m
}

func TestPipeline_Integration(t *testing.T) {
	brokers := setupKafka(t, "raw", "flattened", "raw-dlq")
	log := logger.NopLogger()

	kafkaCfg := config.KafkaConfig{
		Brokers:     brokers,
		GroupID:     "flattener-it",
		InputTopic:  "raw",
		OutputTopic: "flattened",
		DLQTopic:    "raw-dlq",
		Retry: config.RetryConfig{
			MaxAttempts:     2,
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     50 * time.Millisecond,
			Multiplier:      2,
		},
	}

	svc, err := NewService(config.TransformConfig{Stage: "it", Source: "static", FieldName: "attrs"}, nil, log)
	require.NoError(t, err)

	producer := broker.NewKafkaProducer(kafkaCfg, log)
	t.Cleanup(func() { _ = producer.Close() })

	consumer := broker.NewKafkaConsumer(kafkaCfg, log)
	consumer.SetServiceName(constants.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- consumer.Consume(ctx, "raw", NewRecordHandler(svc, producer, "flattened", log).Handle)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = consumer.Close()
	})

	writer := &kafka.Writer{Addr: kafka.TCP(brokers...), RequiredAcks: kafka.RequireAll}
	t.Cleanup(func() { _ = writer.Close() })

	require.NoError(t, writer.WriteMessages(context.Background(),
		kafka.Message{Topic: "raw", Key: []byte("k1"), Value: []byte(`{"id":1,"attrs":{"b":"two","a":"one"}}`)},
		kafka.Message{Topic: "raw", Key: []byte("k2"), Value: []byte(`{"id":2,"attrs":"not-a-map"}`)},
	))

	out := readOne(t, brokers, "flattened")
	assert.Equal(t, "k1", string(out.Key))

	var value map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Value, &value))
	assert.Equal(t, []interface{}{"one", "two"}, value["attrs"])
	assert.Equal(t, float64(1), value["id"])

	dead := readOne(t, brokers, "raw-dlq")
	assert.Equal(t, `{"id":2,"attrs":"not-a-map"}`, string(dead.Value))

	headers := map[string]string{}
	for _, h := range dead.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "SCHEMA_MISMATCH", headers[constants.HeaderDLQErrorCode])
	assert.Contains(t, headers[constants.HeaderDLQReason], "The field 'attrs' is not a JSON object")
	assert.Equal(t, "raw", headers[constants.HeaderDLQSourceTopic])
}
