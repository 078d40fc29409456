package management

import (
	"time"

	"flattener/internal/stage"
	"flattener/pkg/models"
)

// PreviewRequest is a record to run through the active transform without
// publishing it.
type PreviewRequest struct {
	Topic     string            `json:"topic"`
	Partition *int32            `json:"partition,omitempty"`
	Key       interface{}       `json:"key,omitempty"`
	Value     interface{}       `json:"value"`
	Timestamp *int64            `json:"timestamp,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

func (r PreviewRequest) Record() models.Record {
	b := models.NewRecordBuilder().
		WithTopic(r.Topic).
		WithKey(r.Key).
		WithValue(r.Value)
	if r.Partition != nil {
		b = b.WithPartition(*r.Partition)
	}
	if r.Timestamp != nil {
		b = b.WithTimestamp(time.UnixMilli(*r.Timestamp))
	}
	for k, v := range r.Headers {
		b = b.WithHeader(k, []byte(v))
	}
	return b.Build()
}

type PreviewResponse struct {
	Outcome string        `json:"outcome"`
	Record  models.Record `json:"record"`
}

type UpdateConfigResponse struct {
	Config      *stage.StageConfig `json:"config"`
	EventSent   bool               `json:"event_sent"`
	EventFailed string             `json:"event_error,omitempty"`
}
