package broker

import (
	"fmt"

	"flattener/internal/config"
	"flattener/internal/logger"
	"flattener/pkg/circuitbreaker"
)

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case "kafka":
		return NewKafkaProducer(cfg.Kafka, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

// NewProducerWithBreaker wraps the configured producer in a circuit breaker
// when cbCfg is enabled.
func NewProducerWithBreaker(cfg config.BrokerConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) (Producer, error) {
	producer, err := NewProducer(cfg, log)
	if err != nil {
		return nil, err
	}
	if !cbCfg.Enabled {
		return producer, nil
	}

	breakerCfg := circuitbreaker.DefaultConfig("kafka-producer")
	if cbCfg.MaxRequests > 0 {
		breakerCfg.MaxRequests = cbCfg.MaxRequests
	}
	if cbCfg.Interval > 0 {
		breakerCfg.Interval = cbCfg.Interval
	}
	if cbCfg.Timeout > 0 {
		breakerCfg.Timeout = cbCfg.Timeout
	}
	if cbCfg.FailureRatio > 0 {
		breakerCfg.ReadyToTrip = circuitbreaker.RatioTrip(cbCfg.MinRequests, cbCfg.FailureRatio)
	}

	return NewCircuitBreakerProducer(producer, breakerCfg, log), nil
}

func NewConsumer(cfg config.BrokerConfig, log logger.Logger, opts ...ConsumerOption) (Consumer, error) {
	switch cfg.Type {
	case "kafka":
		return NewKafkaConsumer(cfg.Kafka, log, opts...), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
