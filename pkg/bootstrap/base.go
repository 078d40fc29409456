package bootstrap

import (
	"context"
	"fmt"

	"flattener/internal/broker"
	"flattener/internal/config"
	"flattener/internal/logger"
)

// Base owns the broker clients shared by a stage process: the breaker
// guarded producer, the input consumer and the config event consumer.
type Base struct {
	Config         *config.Config
	Logger         logger.Logger
	Producer       broker.Producer
	Consumer       broker.Consumer
	ConfigConsumer broker.Consumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitBroker creates the producer and the input consumer. Failed records of
// the input consumer are dead-lettered through the same producer.
func (b *Base) InitBroker(serviceName string) error {
	producer, err := broker.NewProducerWithBreaker(b.Config.Broker, b.Config.CircuitBreaker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}

	consumer, err := broker.NewConsumer(b.Config.Broker, b.Logger,
		broker.WithCodec(broker.NewCodec(b.Config.Broker.Kafka.SchemasEnabled)),
		broker.WithDLQProducer(producer),
	)
	if err != nil {
		producer.Close()
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if serviceName != "" {
		consumer.SetServiceName(serviceName)
	}

	b.Producer = producer
	b.Consumer = consumer
	return nil
}

// InitConfigConsumer creates the consumer for config change events. Every
// instance must see every event, so each one joins its own group and starts
// at the tail of the topic.
func (b *Base) InitConfigConsumer(serviceName, instanceID string) error {
	if b.Config.Broker.Kafka.ConfigUpdateTopic == "" {
		return nil
	}

	groupID := fmt.Sprintf("%s-config-%s", b.Config.Broker.Kafka.GroupID, instanceID)
	consumer, err := broker.NewConsumer(b.Config.Broker, b.Logger,
		broker.WithGroupID(groupID),
		broker.WithLatestOffset(),
		broker.WithCodec(broker.NewCodec(false)),
		broker.WithoutDLQ(),
	)
	if err != nil {
		return fmt.Errorf("failed to create config consumer: %w", err)
	}

	if serviceName != "" {
		consumer.SetServiceName(serviceName)
	}

	b.ConfigConsumer = consumer
	return nil
}

func (b *Base) ShutdownBroker() []error {
	var errs []error

	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}

	if b.ConfigConsumer != nil {
		if err := b.ConfigConsumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("config consumer close error: %w", err))
		}
	}

	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	errs = append(errs, b.ShutdownBroker()...)

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
