package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 9090
broker:
  type: kafka
  kafka:
    brokers: ["kafka-1:9092", "kafka-2:9092"]
    group_id: flattener
    input_topic: raw_events
    output_topic: flattened_events
    dlq_topic: flattener_dlq
    schemas_enabled: true
    retry:
      max_attempts: 5
      initial_interval: 200ms
transform:
  source: Static
  field_name: customField
  predicate:
    expression: topic == "raw_events"
    negate: true
circuit_breaker:
  enabled: true
  failure_ratio: 0.5
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.ReadTimeoutSeconds)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.True(t, cfg.Broker.Kafka.SchemasEnabled)
	assert.Equal(t, 5, cfg.Broker.Kafka.Retry.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Broker.Kafka.Retry.InitialInterval)
	assert.Equal(t, 30*time.Second, cfg.Broker.Kafka.Retry.MaxInterval)
	assert.Equal(t, "static", cfg.Transform.Source)
	assert.Equal(t, "customField", cfg.Transform.FieldName)
	assert.Equal(t, "flattener", cfg.Transform.Stage)
	assert.Equal(t, `topic == "raw_events"`, cfg.Transform.Predicate.Expression)
	assert.True(t, cfg.Transform.Predicate.Negate)
	assert.True(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BROKER_KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("TRANSFORM_FIELD_NAME", "fromEnv")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "fromEnv", cfg.Transform.FieldName)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "server:\n  port: 8080\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
