package stage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"flattener/internal/constants"
)

// RedisRepository keeps each stage config in a hash at flattener:stage:<stage>.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func stageKey(stage string) string {
	return constants.CacheKeyPrefixStage + stage
}

func (r *RedisRepository) Get(ctx context.Context, stage string) (*StageConfig, error) {
	start := time.Now()
	values, err := r.client.HGetAll(ctx, stageKey(stage)).Result()
	observeQuery("redis", "get", start, err)
	if err != nil {
		return nil, fmt.Errorf("redis HGetAll failed: %w", err)
	}
	if len(values) == 0 {
		return nil, notFound(stage)
	}

	cfg := &StageConfig{
		Stage:     stage,
		FieldName: values["field_name"],
		Enabled:   values["enabled"] != "false",
		UpdatedBy: values["updated_by"],
	}
	if cfg.Version, err = strconv.Atoi(values["version"]); err != nil {
		return nil, fmt.Errorf("invalid version for stage %s: %w", stage, err)
	}
	cfg.CreatedAt = parseUnixMilli(values["created_at"])
	cfg.UpdatedAt = parseUnixMilli(values["updated_at"])

	return cfg, nil
}

// Save bumps the version with HINCRBY inside a transaction so concurrent
// writers never reuse a version.
func (r *RedisRepository) Save(ctx context.Context, cfg *StageConfig) error {
	start := time.Now()
	key := stageKey(cfg.Stage)
	now := time.Now().UTC()

	var version *redis.IntCmd
	var created *redis.BoolCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		version = pipe.HIncrBy(ctx, key, "version", 1)
		created = pipe.HSetNX(ctx, key, "created_at", strconv.FormatInt(now.UnixMilli(), 10))
		pipe.HSet(ctx, key,
			"stage", cfg.Stage,
			"field_name", cfg.FieldName,
			"enabled", strconv.FormatBool(cfg.Enabled),
			"updated_by", cfg.UpdatedBy,
			"updated_at", strconv.FormatInt(now.UnixMilli(), 10),
		)
		return nil
	})
	observeQuery("redis", "save", start, err)
	if err != nil {
		return fmt.Errorf("redis save failed: %w", err)
	}

	cfg.Version = int(version.Val())
	cfg.UpdatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	if created.Val() {
		cfg.CreatedAt = cfg.UpdatedAt
	} else if stored, err := r.client.HGet(ctx, key, "created_at").Result(); err == nil {
		cfg.CreatedAt = parseUnixMilli(stored)
	}
	return nil
}

func parseUnixMilli(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
