package stage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "flattener/pkg/errors"
)

func newRedisRepository(t *testing.T) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRepository(client), mr
}

func TestRedisRepository_GetMissing(t *testing.T) {
	repo, _ := newRedisRepository(t)

	_, err := repo.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRedisRepository_SaveAndGet(t *testing.T) {
	repo, mr := newRedisRepository(t)
	ctx := context.Background()

	first := &StageConfig{Stage: "s1", FieldName: "attrs", Enabled: true, UpdatedBy: "alice"}
	require.NoError(t, repo.Save(ctx, first))
	assert.Equal(t, 1, first.Version)
	assert.False(t, first.CreatedAt.IsZero())

	second := &StageConfig{Stage: "s1", FieldName: "labels", Enabled: false, UpdatedBy: "bob"}
	require.NoError(t, repo.Save(ctx, second))
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "labels", got.FieldName)
	assert.False(t, got.Enabled)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "bob", got.UpdatedBy)
	assert.Equal(t, first.CreatedAt, got.CreatedAt)

	assert.Equal(t, "labels", mr.HGet("flattener:stage:s1", "field_name"))
}

func TestRedisRepository_InvalidVersion(t *testing.T) {
	repo, mr := newRedisRepository(t)
	mr.HSet("flattener:stage:s1", "field_name", "f", "version", "abc")

	_, err := repo.Get(context.Background(), "s1")
	assert.Error(t, err)
}

func TestNewRepository(t *testing.T) {
	repo, err := NewRepository("static", Stores{})
	require.NoError(t, err)
	assert.Nil(t, repo)

	_, err = NewRepository("postgres", Stores{})
	assert.Error(t, err)

	_, err = NewRepository("etcd", Stores{})
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: miniredis.RunT(t).Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo, err = NewRepository("redis", Stores{Redis: client})
	require.NoError(t, err)
	assert.IsType(t, &RedisRepository{}, repo)
}
