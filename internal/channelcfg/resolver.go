// Package channelcfg answers "is this channel switched on for this
// tenant and source type". Lookups are read-only and fail open: a
// missing row, an unreadable cache or a store error never block a
// tenant's jobs.
package channelcfg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paktel/notify-gateway/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store reads the config rows (MySQL).
type Store interface {
	Get(ctx context.Context, tenantID int64, sourceType string) (*model.TenantChannelConfig, error)
}

// Cache is a shared, replica-safe cache with TTL semantics. The redis
// adapter below is the production implementation.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, val string, ttl time.Duration) error
}

// absentMarker caches "no row exists" so misses do not hammer MySQL.
const absentMarker = "-"

type Resolver struct {
	store Store
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

func NewResolver(store Store, cache Cache, ttl time.Duration, log *zap.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Resolver{store: store, cache: cache, ttl: ttl, log: log}
}

// Enabled reports whether the channel is switched on for the tenant and
// source type. No active row means all channels on.
func (r *Resolver) Enabled(ctx context.Context, tenantID int64, sourceType string, ch model.Channel) (bool, error) {
	cfg, err := r.lookup(ctx, tenantID, sourceType)
	if err != nil {
		// Config is advisory: blocking dispatch over a config read
		// failure would be worse than delivering once too often.
		r.log.Warn("channel config lookup failed, failing open",
			zap.Int64("tenant_id", tenantID),
			zap.String("source_type", sourceType),
			zap.Error(err))
		return true, nil
	}
	if cfg == nil {
		return true, nil
	}
	return cfg.Allows(ch), nil
}

func (r *Resolver) lookup(ctx context.Context, tenantID int64, sourceType string) (*model.TenantChannelConfig, error) {
	key := fmt.Sprintf("chcfg:%d:%s", tenantID, sourceType)

	if r.cache != nil {
		if raw, ok, err := r.cache.Get(ctx, key); err == nil && ok {
			if raw == absentMarker {
				return nil, nil
			}
			var cfg model.TenantChannelConfig
			if err := json.Unmarshal([]byte(raw), &cfg); err == nil {
				return &cfg, nil
			}
			// fall through to the store on a corrupt entry
		}
	}

	cfg, err := r.store.Get(ctx, tenantID, sourceType)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		val := absentMarker
		if cfg != nil {
			if b, err := json.Marshal(cfg); err == nil {
				val = string(b)
			}
		}
		if err := r.cache.Set(ctx, key, val, r.ttl); err != nil {
			r.log.Debug("channel config cache set failed", zap.Error(err))
		}
	}
	return cfg, nil
}

// RedisCache adapts a redis client to the Cache interface.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache { return &RedisCache{rdb: rdb} }

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, val, ttl).Err()
}
