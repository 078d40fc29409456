package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, ReadTimeoutSeconds: 10, WriteTimeoutSeconds: 10},
		Broker: BrokerConfig{
			Type: "kafka",
			Kafka: KafkaConfig{
				Brokers:     []string{"localhost:9092"},
				GroupID:     "flattener",
				InputTopic:  "raw_events",
				OutputTopic: "flattened_events",
				DLQTopic:    "flattener_dlq",
				Retry: RetryConfig{
					MaxAttempts:     3,
					InitialInterval: time.Second,
					MaxInterval:     30 * time.Second,
					Multiplier:      2,
				},
			},
		},
		Transform: TransformConfig{
			Stage:     "flattener",
			Source:    "static",
			FieldName: "customField",
		},
	}
}

func TestValidateStatic(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(cfg *Config) {}},
		{
			name:    "bad port",
			mutate:  func(cfg *Config) { cfg.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "no brokers",
			mutate:  func(cfg *Config) { cfg.Broker.Kafka.Brokers = nil },
			wantErr: "broker.kafka.brokers",
		},
		{
			name:    "unknown broker",
			mutate:  func(cfg *Config) { cfg.Broker.Type = "rabbitmq" },
			wantErr: "broker.type",
		},
		{
			name:    "no output topic",
			mutate:  func(cfg *Config) { cfg.Broker.Kafka.OutputTopic = "" },
			wantErr: "broker.kafka.output_topic",
		},
		{
			name:    "dlq equals input",
			mutate:  func(cfg *Config) { cfg.Broker.Kafka.DLQTopic = "raw_events" },
			wantErr: "broker.kafka.dlq_topic",
		},
		{
			name:    "retry intervals inverted",
			mutate:  func(cfg *Config) { cfg.Broker.Kafka.Retry.MaxInterval = time.Millisecond },
			wantErr: "broker.kafka.retry.max_interval",
		},
		{
			name:    "static without field",
			mutate:  func(cfg *Config) { cfg.Transform.FieldName = "  " },
			wantErr: "transform.field_name",
		},
		{
			name:    "unknown source",
			mutate:  func(cfg *Config) { cfg.Transform.Source = "etcd" },
			wantErr: "transform.source",
		},
		{
			name: "postgres source needs postgres",
			mutate: func(cfg *Config) {
				cfg.Transform.Source = "postgres"
				cfg.Transform.FieldName = ""
			},
			wantErr: "database.postgres.host",
		},
		{
			name: "redis source",
			mutate: func(cfg *Config) {
				cfg.Transform.Source = "redis"
				cfg.Database.Redis = RedisConfig{Host: "localhost", Port: 6379}
			},
		},
		{
			name: "mongodb source with bad uri",
			mutate: func(cfg *Config) {
				cfg.Transform.Source = "mongodb"
				cfg.Database.MongoDB = MongoDBConfig{URI: "localhost:27017", Database: "flattener"}
			},
			wantErr: "database.mongodb.uri",
		},
		{
			name: "circuit breaker ratio",
			mutate: func(cfg *Config) {
				cfg.CircuitBreaker = CircuitBreakerConfig{Enabled: true, FailureRatio: 1.5}
			},
			wantErr: "circuit_breaker.failure_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateStatic(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateStatic_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = -1
	cfg.Transform.Source = "nope"

	err := ValidateStatic(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "transform.source")
}
