package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"portal/internal/authz"
	"portal/internal/logging"
)

const permissionKeyPrefix = "portal:permissions:"

// RedisCache backs the permission cache with Redis so multiple API
// instances share one staleness window. Redis errors degrade to a cache
// miss; they are logged, never propagated.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, memberID uuid.UUID) (*authz.PermissionSet, bool) {
	data, err := c.client.Get(ctx, permissionKeyPrefix+memberID.String()).Bytes()
	if err != nil {
		if err != redis.Nil {
			logging.Warn("permission cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var set authz.PermissionSet
	if err := json.Unmarshal(data, &set); err != nil {
		logging.Warn("permission cache entry corrupt", zap.String("member_id", memberID.String()), zap.Error(err))
		return nil, false
	}
	return &set, true
}

func (c *RedisCache) Set(ctx context.Context, memberID uuid.UUID, set *authz.PermissionSet) {
	data, err := json.Marshal(set)
	if err != nil {
		logging.Warn("permission cache marshal failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, permissionKeyPrefix+memberID.String(), data, c.ttl).Err(); err != nil {
		logging.Warn("permission cache write failed", zap.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, memberID uuid.UUID) {
	if err := c.client.Del(ctx, permissionKeyPrefix+memberID.String()).Err(); err != nil {
		logging.Warn("permission cache invalidate failed", zap.Error(err))
	}
}

func (c *RedisCache) InvalidateAll(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, permissionKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logging.Warn("permission cache invalidate failed", zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		logging.Warn("permission cache scan failed", zap.Error(err))
	}
}
