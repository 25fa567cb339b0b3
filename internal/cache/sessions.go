package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avolkhov/storefront-checkout/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// RedisSessionCache holds best-effort copies of session metadata.
// Metadata is immutable once the session exists, so stale entries are
// impossible; TTL only bounds memory.
type RedisSessionCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisSessionCache(client *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{
		client:  client,
		baseTTL: 24 * time.Hour,
	}
}

func (c *RedisSessionCache) Get(ctx context.Context, sessionID string) (*domain.SessionMetadata, error) {
	data, err := c.client.Get(ctx, cacheKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var meta domain.SessionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal session metadata failed: %w", err)
	}
	return &meta, nil
}

func (c *RedisSessionCache) Set(ctx context.Context, sessionID string, meta *domain.SessionMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal session metadata failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(30)) * time.Minute
	if err := c.client.Set(ctx, cacheKey(sessionID), data, c.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func cacheKey(sessionID string) string {
	return fmt.Sprintf("session-meta:%s", sessionID)
}
