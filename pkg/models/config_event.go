package models

import "time"

type ConfigUpdateEvent struct {
	EventID     string                 `json:"event_id,omitempty"`
	EventType   string                 `json:"event_type"`   // "transform_config_updated"
	ServiceType string                 `json:"service_type"` // "flattener"
	Stage       string                 `json:"stage,omitempty"`
	FieldName   string                 `json:"field_name,omitempty"`
	Action      string                 `json:"action"` // "update", "reload"
	Timestamp   time.Time              `json:"timestamp"`
	ChangedBy   string                 `json:"changed_by,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

const (
	EventTypeTransformConfigUpdated = "transform_config_updated"
)

const (
	ActionUpdate = "update"
	ActionReload = "reload"
)

const (
	ServiceTypeFlattener = "flattener"
)
