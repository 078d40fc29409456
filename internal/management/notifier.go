package management

import (
	"context"
	"time"

	"github.com/google/uuid"

	"flattener/internal/broker"
	"flattener/internal/stage"
	"flattener/pkg/models"
)

type ConfigEventProducer struct {
	producer broker.Producer
	topic    string
}

func NewConfigEventProducer(producer broker.Producer, topic string) *ConfigEventProducer {
	return &ConfigEventProducer{
		producer: producer,
		topic:    topic,
	}
}

// PublishTransformConfigEvent is a no-op without a producer or topic.
func (p *ConfigEventProducer) PublishTransformConfigEvent(ctx context.Context, cfg *stage.StageConfig, action string) error {
	if p.producer == nil || p.topic == "" {
		return nil
	}

	event := models.ConfigUpdateEvent{
		EventID:     uuid.NewString(),
		EventType:   models.EventTypeTransformConfigUpdated,
		ServiceType: models.ServiceTypeFlattener,
		Stage:       cfg.Stage,
		FieldName:   cfg.FieldName,
		Action:      action,
		Timestamp:   time.Now().UTC(),
		ChangedBy:   cfg.UpdatedBy,
		Metadata:    map[string]interface{}{"version": cfg.Version},
	}

	rec := models.NewRecordBuilder().
		WithTopic(p.topic).
		WithKey(cfg.Stage).
		WithValue(event).
		WithTimestamp(event.Timestamp).
		Build()

	return p.producer.Publish(ctx, p.topic, rec)
}
