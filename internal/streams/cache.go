package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/eventpass/streamgate/internal/models"
)

const cacheKeyPrefix = "stream_session:event:"

// cachedSession keeps the server-only replay key, which the public JSON omits.
type cachedSession struct {
	*models.StreamSession
	ReplayS3Key string `json:"replay_s3_key,omitempty"`
}

// RedisCache caches stream sessions by event ID.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a session cache. A non-positive ttl defaults to 30s.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(eventID uuid.UUID) string {
	return cacheKeyPrefix + eventID.String()
}

// Get returns the cached session for an event, or nil on a miss.
func (c *RedisCache) Get(ctx context.Context, eventID uuid.UUID) (*models.StreamSession, error) {
	raw, err := c.client.Get(ctx, cacheKey(eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	cs := cachedSession{StreamSession: &models.StreamSession{}}
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	cs.StreamSession.ReplayS3Key = cs.ReplayS3Key
	return cs.StreamSession, nil
}

// Set stores a session under its event ID.
func (c *RedisCache) Set(ctx context.Context, s *models.StreamSession) error {
	body, err := json.Marshal(cachedSession{StreamSession: s, ReplayS3Key: s.ReplayS3Key})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(s.EventID), body, c.ttl).Err()
}

// Invalidate drops the cached session for an event.
func (c *RedisCache) Invalidate(ctx context.Context, eventID uuid.UUID) error {
	return c.client.Del(ctx, cacheKey(eventID)).Err()
}
