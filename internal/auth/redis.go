// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

// RedisVerdictCache shares verdicts across gateway replicas. A cache
// failure is surfaced as an error and the validator treats it as a miss.
type RedisVerdictCache struct {
	client *redis.Client
}

// NewRedisVerdictCache connects to the Redis instance at addr.
func NewRedisVerdictCache(addr, password string, db int) *RedisVerdictCache {
	return &RedisVerdictCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Get implements VerdictCache.
func (c *RedisVerdictCache) Get(ctx context.Context, key string) (*Verdict, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, inqerr.Wrap(err, inqerr.CodeAuthVerifyUnavailable, "reading verdict cache")
	}
	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, inqerr.Wrap(err, inqerr.CodeAuthVerifyUnavailable, "decoding cached verdict")
	}
	return &v, nil
}

// Set implements VerdictCache.
func (c *RedisVerdictCache) Set(ctx context.Context, key string, verdict Verdict, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(verdict)
	if err != nil {
		return inqerr.Wrap(err, inqerr.CodeAuthVerifyUnavailable, "encoding verdict")
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return inqerr.Wrap(err, inqerr.CodeAuthVerifyUnavailable, "writing verdict cache")
	}
	return nil
}

// Close releases the Redis connection.
func (c *RedisVerdictCache) Close() error {
	return c.client.Close()
}

var _ VerdictCache = (*RedisVerdictCache)(nil)
