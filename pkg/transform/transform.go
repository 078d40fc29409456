// Package transform holds single-record transformations applied by a
// pipeline stage and the contract the stage uses to host them.
package transform

import "flattener/pkg/models"

// Transformation is the lifecycle contract between a pipeline stage and a
// single-record transform. The stage calls Configure once before any Apply;
// Apply may then be called concurrently.
type Transformation interface {
	Configure(props map[string]interface{}) error
	Apply(rec models.Record) (models.Record, error)
	Config() *ConfigDef
	Close() error
}

