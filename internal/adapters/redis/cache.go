package redisad

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"voice_review/internal/adapters/observability"
)

const (
	cachePrefix = "cache:"
	cacheLabel  = "catalog"
)

// Cache stores catalog read models as JSON under the "cache:" prefix.
type Cache struct{ c redis.UniversalClient }

func NewCache(c redis.UniversalClient) *Cache { return &Cache{c: c} }

// Get reports a miss for absent keys and for entries that no longer decode
// into dst; the latter are dropped.
func (r *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := r.c.Get(ctx, cachePrefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		observability.ObserveCache(cacheLabel, "miss")
		return false, nil
	case err != nil:
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		_ = r.Del(ctx, key)
		return false, nil
	}
	observability.ObserveCache(cacheLabel, "hit")
	return true, nil
}

func (r *Cache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if ttlSec <= 0 {
		ttlSec = 60
	}
	observability.ObserveCache(cacheLabel, "set")
	return r.c.Set(ctx, cachePrefix+key, b, time.Duration(ttlSec)*time.Second).Err()
}

func (r *Cache) Del(ctx context.Context, key string) error {
	observability.ObserveCache(cacheLabel, "del")
	return r.c.Del(ctx, cachePrefix+key).Err()
}
