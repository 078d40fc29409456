package config_handler

import (
	"context"
	"encoding/json"

	"flattener/internal/logger"
	"flattener/pkg/models"
)

type ConfigReloader interface {
	ReloadConfig(ctx context.Context, skipJitter ...bool) error
}

type ConfigUpdater interface {
	ConfigureFieldName(ctx context.Context, fieldName string) error
}

// Handler applies config update events addressed to one stage.
type Handler struct {
	expectedEventType   string
	expectedServiceType string
	stage               string
	reloader            ConfigReloader
	updater             ConfigUpdater
	logger              logger.Logger
}

func NewHandler(expectedEventType, expectedServiceType, stage string, log logger.Logger) *Handler {
	return &Handler{
		expectedEventType:   expectedEventType,
		expectedServiceType: expectedServiceType,
		stage:               stage,
		logger:              log,
	}
}

func (h *Handler) WithReloader(reloader ConfigReloader) *Handler {
	h.reloader = reloader
	return h
}

func (h *Handler) WithUpdater(updater ConfigUpdater) *Handler {
	h.updater = updater
	return h
}

// HandleConfigUpdateEvent ignores records that are not config events for this
// stage. An event naming a field is applied directly; any other matching event
// triggers a reload from the stage repository.
func (h *Handler) HandleConfigUpdateEvent(ctx context.Context, rec models.Record) error {
	event, ok := h.decode(ctx, rec)
	if !ok {
		return nil
	}

	if event.EventType != h.expectedEventType || event.ServiceType != h.expectedServiceType {
		return nil
	}
	if event.Stage != "" && event.Stage != h.stage {
		return nil
	}

	h.logger.InfowCtx(ctx, "Received config update event",
		"event_id", event.EventID,
		"action", event.Action,
		"stage", event.Stage,
		"field_name", event.FieldName,
		"changed_by", event.ChangedBy,
	)

	if event.FieldName != "" && h.updater != nil {
		if err := h.updater.ConfigureFieldName(ctx, event.FieldName); err != nil {
			h.logger.ErrorwCtx(ctx, "Failed to apply field name from config event", "error", err)
			return err
		}
		return nil
	}

	if h.reloader != nil {
		if err := h.reloader.ReloadConfig(ctx); err != nil {
			h.logger.ErrorwCtx(ctx, "Failed to reload config after update event", "error", err)
			return err
		}
		h.logger.InfowCtx(ctx, "Config reloaded after update event", "action", event.Action)
	}

	return nil
}

func (h *Handler) decode(ctx context.Context, rec models.Record) (models.ConfigUpdateEvent, bool) {
	var event models.ConfigUpdateEvent

	payload, ok := rec.Value.(map[string]interface{})
	if !ok {
		h.logger.WarnwCtx(ctx, "Config event is not a JSON object")
		return event, false
	}

	if _, ok := payload["event_type"].(string); !ok {
		h.logger.WarnwCtx(ctx, "Config event missing event_type")
		return event, false
	}
	if _, ok := payload["service_type"].(string); !ok {
		h.logger.WarnwCtx(ctx, "Config event missing service_type")
		return event, false
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.WarnwCtx(ctx, "Failed to marshal config event", "error", err)
		return event, false
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		h.logger.WarnwCtx(ctx, "Failed to unmarshal config event", "error", err)
		return event, false
	}

	return event, true
}
