package broker

import (
	"context"

	"github.com/sony/gobreaker"

	"flattener/internal/logger"
	"flattener/pkg/circuitbreaker"
	"flattener/pkg/errors"
	"flattener/pkg/models"
)

// CircuitBreakerProducer stops publishing once the broker keeps failing so
// the consumer backs off through its retry policy instead of hammering Kafka.
type CircuitBreakerProducer struct {
	producer Producer
	breaker  *circuitbreaker.Wrapper
	logger   logger.Logger
}

func NewCircuitBreakerProducer(producer Producer, cfg circuitbreaker.Config, log logger.Logger) *CircuitBreakerProducer {
	userHook := cfg.OnStateChange
	cfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warnw("Circuit breaker state changed",
			"name", name,
			"from", from.String(),
			"to", to.String(),
		)
		if userHook != nil {
			userHook(name, from, to)
		}
	}

	return &CircuitBreakerProducer{
		producer: producer,
		breaker:  circuitbreaker.NewWrapper(cfg),
		logger:   log,
	}
}

func (p *CircuitBreakerProducer) Publish(ctx context.Context, topic string, rec models.Record) error {
	err := p.breaker.Run(ctx, func() error {
		return p.producer.Publish(ctx, topic, rec)
	})
	if circuitbreaker.IsBreakerError(err) {
		return errors.ErrServiceUnavailable.
			WithDetail("message", "output producer circuit breaker is open").
			WithDetail("topic", topic).
			WithCause(err)
	}
	return err
}

func (p *CircuitBreakerProducer) State() gobreaker.State {
	return p.breaker.State()
}

func (p *CircuitBreakerProducer) Close() error {
	return p.producer.Close()
}
