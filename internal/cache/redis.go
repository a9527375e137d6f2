package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/support-agent/backend/internal/storage/models"
	"github.com/support-agent/backend/pkg/logger"
)

const redisKeyPrefix = "response:"

// RedisFastPath caches serialized entries with a short TTL in front of the
// durable store. Redis holds no state the durable store does not; losing it
// only costs latency.
type RedisFastPath struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisFastPath(address, password string, db int, ttl time.Duration) (*RedisFastPath, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis fast path connected")

	return &RedisFastPath{client: client, ttl: ttl}, nil
}

func (r *RedisFastPath) Get(ctx context.Context, fingerprint string) (*models.CacheEntry, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cached entry: %w", err)
	}
	return &entry, nil
}

func (r *RedisFastPath) Set(ctx context.Context, e *models.CacheEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if err := r.client.Set(ctx, redisKeyPrefix+e.Fingerprint, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisFastPath) Invalidate(ctx context.Context, fingerprint string) error {
	return r.client.Del(ctx, redisKeyPrefix+fingerprint).Err()
}

func (r *RedisFastPath) Close() error {
	return r.client.Close()
}
