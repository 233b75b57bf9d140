// Package dedupe lets several dispatcher instances agree on which one handles an event.
package dedupe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claimer marks keys as taken. Claim returns true only for the first caller within the TTL.
type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
}

type RedisClaimer struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisClient parses url, connects and pings.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func NewRedisClaimer(client *redis.Client, prefix string, ttl time.Duration) *RedisClaimer {
	return &RedisClaimer{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisClaimer) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// MemoryClaimer is a single-process Claimer.
type MemoryClaimer struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryClaimer(ttl time.Duration) *MemoryClaimer {
	return &MemoryClaimer{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (m *MemoryClaimer) Claim(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, expires := range m.seen {
		if now.After(expires) {
			delete(m.seen, k)
		}
	}
	if _, taken := m.seen[key]; taken {
		return false, nil
	}
	m.seen[key] = now.Add(m.ttl)
	return true, nil
}
