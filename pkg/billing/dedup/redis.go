package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "billing:webhook:event:"

// Redis is a Guard backed by Redis SETNX with a TTL, safe across replicas.
type Redis struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
}

// NewRedis creates a Redis-backed guard. Marks expire after ttl.
func NewRedis(client *redis.Client, ttl time.Duration) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Redis{
		client:    client,
		ttl:       ttl,
		keyPrefix: defaultKeyPrefix,
	}, nil
}

// CheckAndMark implements Guard.
func (r *Redis) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.keyPrefix+eventID, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event: %w", err)
	}
	// SetNX returns false when the key already existed.
	return !ok, nil
}

// Forget implements Guard.
func (r *Redis) Forget(ctx context.Context, eventID string) error {
	if err := r.client.Del(ctx, r.keyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to forget event: %w", err)
	}
	return nil
}
