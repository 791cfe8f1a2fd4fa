// Package dedup remembers which checkouts were already applied so an order is
// deducted from a cart at most once, however often it is delivered.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

type Checker interface {
	// FirstSeen marks key and reports whether it was unmarked before.
	FirstSeen(ctx context.Context, key string) (bool, error)
	// Forget unmarks key so a failed application can be retried.
	Forget(ctx context.Context, key string) error
}

const keyPrefix = "cart:checkout-applied:"

type RedisChecker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisChecker(client *redis.Client, ttl time.Duration) *RedisChecker {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisChecker{client: client, ttl: ttl}
}

func (r *RedisChecker) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, keyPrefix+key, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

func (r *RedisChecker) Forget(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// MemoryChecker keeps the most recent keys of this process only.
type MemoryChecker struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

func NewMemoryChecker(capacity int, ttl time.Duration) *MemoryChecker {
	return &MemoryChecker{seen: expirable.NewLRU[string, struct{}](capacity, nil, ttl)}
}

func (m *MemoryChecker) FirstSeen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen.Contains(key) {
		return false, nil
	}
	m.seen.Add(key, struct{}{})
	return true, nil
}

func (m *MemoryChecker) Forget(_ context.Context, key string) error {
	m.seen.Remove(key)
	return nil
}
