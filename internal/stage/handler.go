package stage

import (
	"context"
	"fmt"

	"flattener/internal/broker"
	"flattener/internal/logger"
	"flattener/pkg/models"
)

// RecordHandler connects the stage to the broker: every consumed record is
// processed and the result, transformed or passed through, is published to
// the output topic.
type RecordHandler struct {
	service     *Service
	producer    broker.Producer
	outputTopic string
	logger      logger.Logger
}

func NewRecordHandler(service *Service, producer broker.Producer, outputTopic string, log logger.Logger) *RecordHandler {
	return &RecordHandler{
		service:     service,
		producer:    producer,
		outputTopic: outputTopic,
		logger:      log,
	}
}

func (h *RecordHandler) Handle(ctx context.Context, rec models.Record) error {
	out, outcome, err := h.service.Process(ctx, rec)
	if err != nil {
		h.logger.WarnwCtx(ctx, "Record rejected by transform", "error", err)
		return err
	}

	if err := h.producer.Publish(ctx, h.outputTopic, out); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", h.outputTopic, err)
	}

	h.logger.DebugwCtx(ctx, "Record processed",
		"outcome", outcome,
		"output_topic", h.outputTopic,
	)
	return nil
}
