package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Limiter decides whether one more attempt for key fits the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// counter increments the hit count of key within one window slot.
type counter interface {
	incr(ctx context.Context, key string, slot int64, window time.Duration) (int64, error)
}

// FixedWindowLimiter limits attempts per key in a fixed time window.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	count  counter
	now    func() time.Time
}

// NewMemoryFixedWindowLimiter creates a process-local limiter.
func NewMemoryFixedWindowLimiter(limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	return &FixedWindowLimiter{
		limit:  limit,
		window: window,
		count:  &memoryCounter{hits: map[string]memoryHit{}},
		now:    time.Now,
	}, nil
}

// NewRedisFixedWindowLimiter creates a Redis-backed limiter shared by every
// storefront instance pointing at the same Redis.
func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "storefront:ratelimit"
	}
	return &FixedWindowLimiter{
		limit:  limit,
		window: window,
		count: &redisCounter{
			client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
			prefix: prefix,
		},
		now: time.Now,
	}, nil
}

// Allow returns true when key is within quota.
// Backend failures fail closed.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	if windowMs <= 0 {
		return true
	}
	slot := l.now().UTC().UnixMilli() / windowMs
	n, err := l.count.incr(ctx, key, slot, l.window)
	if err != nil {
		return false
	}
	return n <= int64(l.limit)
}

// Window reports the limiter window, used for Retry-After.
func (l *FixedWindowLimiter) Window() time.Duration {
	return l.window
}

type redisCounter struct {
	client *redis.Client
	prefix string
}

func (c *redisCounter) incr(ctx context.Context, key string, slot int64, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	redisKey := fmt.Sprintf("%s:%s:%d", c.prefix, key, slot)
	return fixedWindowScript.Run(ctx, c.client, []string{redisKey}, window.Milliseconds()).Int64()
}

type memoryHit struct {
	slot  int64
	count int64
}

type memoryCounter struct {
	mu   sync.Mutex
	hits map[string]memoryHit
}

func (c *memoryCounter) incr(_ context.Context, key string, slot int64, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.hits[key]
	if h.slot != slot {
		h = memoryHit{slot: slot}
	}
	h.count++
	c.hits[key] = h
	if len(c.hits) > 4096 {
		for k, v := range c.hits {
			if v.slot < slot {
				delete(c.hits, k)
			}
		}
	}
	return h.count, nil
}
