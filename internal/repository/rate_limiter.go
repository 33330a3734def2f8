package repository

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Webhook rate limit defaults.
const (
	DefaultRateWindow = 10 * time.Second
	DefaultRateMax    = 30
)

type RateLimitConfig struct {
	Window time.Duration
	Max    int64
	Now    func() time.Time
}

// Buckets are kept at least this long so RecentCount can cover a minute.
const minRateRetention = time.Minute

func (c *RateLimitConfig) setDefaults() {
	if c.Window <= 0 {
		c.Window = DefaultRateWindow
	}
	// Buckets are whole seconds.
	c.Window = max(c.Window.Truncate(time.Second), time.Second)
	if c.Max <= 0 {
		c.Max = DefaultRateMax
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

func (c RateLimitConfig) bucket(t time.Time) int64 {
	return t.Unix() / int64(c.Window/time.Second)
}

func (c RateLimitConfig) retention() time.Duration {
	return max(2*c.Window, minRateRetention)
}

// retainedBuckets is how many buckets back from the current one are kept.
func (c RateLimitConfig) retainedBuckets() int64 {
	return int64(c.retention() / c.Window)
}

// RedisRateLimiter is a fixed-window counter per symbol.
type RedisRateLimiter struct {
	client redis.UniversalClient
	cfg    RateLimitConfig
}

func NewRedisRateLimiter(client redis.UniversalClient, cfg RateLimitConfig) *RedisRateLimiter {
	cfg.setDefaults()
	return &RedisRateLimiter{client: client, cfg: cfg}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, symbol string) (bool, error) {
	key := rateKey(symbol, r.cfg.bucket(r.cfg.Now()))
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate %s: %w", symbol, err)
	}
	if n == 1 {
		if err := r.client.Expire(ctx, key, r.cfg.retention()).Err(); err != nil {
			return true, fmt.Errorf("rate expire %s: %w", symbol, err)
		}
	}
	return n <= r.cfg.Max, nil
}

func (r *RedisRateLimiter) RecentCount(ctx context.Context, d time.Duration) (int64, error) {
	current := r.cfg.bucket(r.cfg.Now())
	buckets := int64(d / r.cfg.Window)
	if buckets < 1 {
		buckets = 1
	}

	var total int64
	for b := current - buckets + 1; b <= current; b++ {
		keys, err := r.scan(ctx, fmt.Sprintf("%s:rate:*:%d", keyPrefix, b))
		if err != nil {
			return total, err
		}
		if len(keys) == 0 {
			continue
		}
		vals, err := r.client.MGet(ctx, keys...).Result()
		if err != nil {
			return total, fmt.Errorf("rate count: %w", err)
		}
		for _, v := range vals {
			if s, ok := v.(string); ok {
				n, _ := strconv.ParseInt(s, 10, 64)
				total += n
			}
		}
	}
	return total, nil
}

func (r *RedisRateLimiter) scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		page, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("rate scan: %w", err)
		}
		keys = append(keys, page...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// MemoryRateLimiter keeps the same fixed windows in process.
type MemoryRateLimiter struct {
	mu     sync.Mutex
	cfg    RateLimitConfig
	counts map[string]map[int64]int64
}

func NewMemoryRateLimiter(cfg RateLimitConfig) *MemoryRateLimiter {
	cfg.setDefaults()
	return &MemoryRateLimiter{cfg: cfg, counts: make(map[string]map[int64]int64)}
}

func (r *MemoryRateLimiter) Allow(_ context.Context, symbol string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.cfg.bucket(r.cfg.Now())
	per, ok := r.counts[symbol]
	if !ok {
		per = make(map[int64]int64)
		r.counts[symbol] = per
	}
	oldest := b - r.cfg.retainedBuckets()
	for old := range per {
		if old < oldest {
			delete(per, old)
		}
	}
	per[b]++
	return per[b] <= r.cfg.Max, nil
}

func (r *MemoryRateLimiter) RecentCount(_ context.Context, d time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.cfg.bucket(r.cfg.Now())
	buckets := int64(d / r.cfg.Window)
	if buckets < 1 {
		buckets = 1
	}
	var total int64
	for _, per := range r.counts {
		for b, n := range per {
			if b > current-buckets && b <= current {
				total += n
			}
		}
	}
	return total, nil
}
