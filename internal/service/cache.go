package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadrelay/keygate/internal/store"
)

// Cache TTL bounds. A revoked key stays usable on other replicas for at most
// the configured TTL; the replica that revokes it drops its entry at once.
const (
	DefaultKeyCacheTTL = 30 * time.Second
	MaxKeyCacheTTL     = 5 * time.Minute
)

// KeyCache is a read-through cache of key resolutions, keyed by secret hash.
// It caches credentials only; rate-limit counters are never cached.
type KeyCache interface {
	Get(ctx context.Context, hash string) (*store.KeyCredential, bool, error)
	Set(ctx context.Context, hash string, cred *store.KeyCredential) error
	Delete(ctx context.Context, hashes ...string) error
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (*store.KeyCredential, bool, error) {
	return nil, false, nil
}
func (noopCache) Set(context.Context, string, *store.KeyCredential) error { return nil }
func (noopCache) Delete(context.Context, ...string) error                  { return nil }

// RedisKeyCache stores resolutions in Redis so every replica shares them and
// invalidation is visible cluster-wide.
type RedisKeyCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisKeyCache wraps a Redis client. The TTL is clamped to
// (0, MaxKeyCacheTTL]; zero selects DefaultKeyCacheTTL.
func NewRedisKeyCache(client redis.UniversalClient, ttl time.Duration) *RedisKeyCache {
	return &RedisKeyCache{client: client, ttl: ClampKeyCacheTTL(ttl), prefix: "keygate:key:"}
}

// ClampKeyCacheTTL applies the default and upper bound to a configured TTL.
func ClampKeyCacheTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return DefaultKeyCacheTTL
	case ttl > MaxKeyCacheTTL:
		return MaxKeyCacheTTL
	default:
		return ttl
	}
}

// TTL returns the effective staleness bound.
func (c *RedisKeyCache) TTL() time.Duration { return c.ttl }

func (c *RedisKeyCache) Get(ctx context.Context, hash string) (*store.KeyCredential, bool, error) {
	b, err := c.client.Get(ctx, c.prefix+hash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var cred store.KeyCredential
	if err := json.Unmarshal(b, &cred); err != nil {
		return nil, false, fmt.Errorf("decode cached key: %w", err)
	}
	return &cred, true, nil
}

func (c *RedisKeyCache) Set(ctx context.Context, hash string, cred *store.KeyCredential) error {
	b, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode cached key: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+hash, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisKeyCache) Delete(ctx context.Context, hashes ...string) error {
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = c.prefix + h
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// NewRedisClient opens a client for the key cache and verifies it with a
// ping, failing fast at startup rather than on the first request.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}
