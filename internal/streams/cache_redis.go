package streams

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/murrou-cell/stremio-zamunda/internal/domain"
)

const redisCachePrefix = "zamunda:streams:"

// RedisCache stores stream lists as JSON with a native Redis expiry, which
// takes the place of the in-memory sweep.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]domain.Stream, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var streams []domain.Stream
	if err := json.Unmarshal(data, &streams); err != nil {
		return nil, false, err
	}
	if streams == nil {
		streams = []domain.Stream{}
	}
	return streams, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, streams []domain.Stream) error {
	if streams == nil {
		streams = []domain.Stream{}
	}
	data, err := json.Marshal(streams)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, r.ttl).Err()
}
