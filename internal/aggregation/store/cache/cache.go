// Package cache keeps the latest final rows in Redis for the lookup API.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"upagg/internal/aggregation/models"
	"upagg/pkg/platform/sentinel"
)

const (
	resultKeyPrefix = "upagg:result:"
	defaultTTL      = 24 * time.Hour
	// rows per pipeline round trip
	batchSize = 500
)

// RedisCache stores each final row as JSON under its entity id.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

type Option func(*RedisCache)

// WithTTL sets how long cached rows live. Non-positive values keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func NewRedis(client *redis.Client, opts ...Option) *RedisCache {
	c := &RedisCache{client: client, ttl: defaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func key(id models.EntityID) string {
	return resultKeyPrefix + string(id)
}

// PutResults writes rows in pipelined batches.
func (c *RedisCache) PutResults(ctx context.Context, results []models.Result) error {
	for start := 0; start < len(results); start += batchSize {
		end := min(start+batchSize, len(results))
		pipe := c.client.Pipeline()
		for _, r := range results[start:end] {
			payload, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("marshal result %s: %w", r.EntityID, err)
			}
			pipe.Set(ctx, key(r.EntityID), payload, c.ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("write results: %w", err)
		}
	}
	return nil
}

func (c *RedisCache) FindResult(ctx context.Context, id models.EntityID) (*models.Result, error) {
	raw, err := c.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	var r models.Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("unmarshal result %s: %w", id, err)
	}
	return &r, nil
}
