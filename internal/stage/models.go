package stage

import (
	"time"

	"flattener/pkg/transform"
)

// StageConfig is the stored transform configuration of one pipeline stage.
type StageConfig struct {
	Stage     string    `json:"stage" bson:"stage"`
	FieldName string    `json:"field_name" bson:"field_name"`
	Enabled   bool      `json:"enabled" bson:"enabled"`
	Version   int       `json:"version" bson:"version"`
	UpdatedBy string    `json:"updated_by,omitempty" bson:"updated_by,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Props renders the stored config as transform options.
func (c StageConfig) Props() map[string]interface{} {
	return map[string]interface{}{transform.FieldNameConfig: c.FieldName}
}

// Snapshot describes what a stage is currently running.
type Snapshot struct {
	Stage      string                `json:"stage"`
	Source     string                `json:"source"`
	FieldName  string                `json:"field_name"`
	Enabled    bool                  `json:"enabled"`
	Version    int                   `json:"version"`
	Predicate  *PredicateSnapshot    `json:"predicate,omitempty"`
	Definition []transform.ConfigKey `json:"definition"`
}

type PredicateSnapshot struct {
	Expression string `json:"expression"`
	Negate     bool   `json:"negate"`
}

const (
	OutcomePredicateSkipped = "predicate_skipped"
	OutcomeDisabled         = "disabled"
	OutcomeRejected         = "rejected"
)
