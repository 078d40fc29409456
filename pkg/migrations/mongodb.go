package migrations

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const StageConfigCollection = "transform_stage_configs"

// EnsureMongoCollection creates the stage config indexes. The collection
// itself is created on first insert.
func EnsureMongoCollection(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "stage", Value: 1}},
			Options: options.Index().SetName("idx_transform_stage_configs_stage").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_transform_stage_configs_updated_at"),
		},
	}

	if _, err := db.Collection(StageConfigCollection).Indexes().CreateMany(ctx, indexes); err != nil {
		if !mongo.IsDuplicateKeyError(err) && !isIndexExists(err) {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}

func isIndexExists(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		// IndexOptionsConflict, IndexKeySpecsConflict
		return cmdErr.Code == 85 || cmdErr.Code == 86
	}
	return false
}
