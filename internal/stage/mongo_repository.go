package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"flattener/pkg/migrations"
)

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection(migrations.StageConfigCollection)}
}

func (r *MongoRepository) Get(ctx context.Context, stage string) (*StageConfig, error) {
	start := time.Now()
	var cfg StageConfig
	err := r.collection.FindOne(ctx, bson.M{"stage": stage}).Decode(&cfg)
	observeQuery("mongodb", "get", start, ignoreNoDocuments(err))
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(stage)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find stage config: %w", err)
	}
	return &cfg, nil
}

func (r *MongoRepository) Save(ctx context.Context, cfg *StageConfig) error {
	start := time.Now()
	now := time.Now().UTC().Truncate(time.Millisecond)

	update := bson.M{
		"$set": bson.M{
			"field_name": cfg.FieldName,
			"enabled":    cfg.Enabled,
			"updated_by": cfg.UpdatedBy,
			"updated_at": now,
		},
		"$inc":         bson.M{"version": 1},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var saved StageConfig
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"stage": cfg.Stage}, update, opts).Decode(&saved)
	observeQuery("mongodb", "save", start, err)
	if err != nil {
		return fmt.Errorf("failed to save stage config: %w", err)
	}

	cfg.Version = saved.Version
	cfg.CreatedAt = saved.CreatedAt
	cfg.UpdatedAt = saved.UpdatedAt
	return nil
}

func ignoreNoDocuments(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return err
}
