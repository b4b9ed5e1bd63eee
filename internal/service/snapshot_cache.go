package service

import (
	"context"
	"time"

	"homework-planner/backend/pkg/redis"
)

// SnapshotCache 最近一次可用性评分快照
type SnapshotCache interface {
	Save(ctx context.Context, key string, v any) error
	Load(ctx context.Context, key string, v any) (bool, error)
}

// NewSnapshotCache Redis 不可用时返回空实现
func NewSnapshotCache(rdb *redis.Client, ttl time.Duration) SnapshotCache {
	if rdb == nil {
		return noopSnapshotCache{}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisSnapshotCache{rdb: rdb, ttl: ttl}
}

func availabilityKey(sc StudentContext) string {
	return "planner:availability:" + sc.Key()
}

type redisSnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func (c *redisSnapshotCache) Save(ctx context.Context, key string, v any) error {
	return c.rdb.SetJSON(ctx, key, v, c.ttl)
}

func (c *redisSnapshotCache) Load(ctx context.Context, key string, v any) (bool, error) {
	return c.rdb.GetJSON(ctx, key, v)
}

type noopSnapshotCache struct{}

func (noopSnapshotCache) Save(context.Context, string, any) error { return nil }
func (noopSnapshotCache) Load(context.Context, string, any) (bool, error) { return false, nil }
