package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLockTTL bounds how long a crashed holder can block a symbol.
const DefaultLockTTL = 60 * time.Second

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client   redis.UniversalClient
	newToken func() string
}

type LockerOption func(*RedisLocker)

// WithTokenSource replaces the uuid token generator.
func WithTokenSource(fn func() string) LockerOption {
	return func(l *RedisLocker) { l.newToken = fn }
}

func NewRedisLocker(client redis.UniversalClient, opts ...LockerOption) *RedisLocker {
	l := &RedisLocker{client: client, newToken: uuid.NewString}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire never waits: contention and store failures both report not acquired.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := l.newToken()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", key, err)
	}
	return n == 1, nil
}

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker honors the same contract within one process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	now   func() time.Time
}

func NewMemoryLocker(now func() time.Time) *MemoryLocker {
	if now == nil {
		now = time.Now
	}
	return &MemoryLocker{locks: make(map[string]memoryLock), now: now}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.locks[key]; ok && now.Before(cur.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.locks[key] = memoryLock{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.locks[key]
	if !ok || cur.token != token || !l.now().Before(cur.expiresAt) {
		return false, nil
	}
	delete(l.locks, key)
	return true, nil
}
