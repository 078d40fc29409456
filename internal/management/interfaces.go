package management

import (
	"context"

	"flattener/internal/stage"
	"flattener/pkg/models"
)

// StageService is the part of the stage the admin API drives.
type StageService interface {
	Snapshot() stage.Snapshot
	Update(ctx context.Context, props map[string]interface{}, changedBy string) (*stage.StageConfig, error)
	Preview(ctx context.Context, rec models.Record) (models.Record, string, error)
}

// EventPublisher announces config changes to the other stage instances.
type EventPublisher interface {
	PublishTransformConfigEvent(ctx context.Context, cfg *stage.StageConfig, action string) error
}
