package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	domrepo "SignalDesk/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

// RedisConfigStore persists the runtime configuration document at tv:config.
type RedisConfigStore struct {
	client redis.UniversalClient
}

func NewRedisConfigStore(client redis.UniversalClient) *RedisConfigStore {
	return &RedisConfigStore{client: client}
}

func (s *RedisConfigStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, ConfigKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return data, nil
}

func (s *RedisConfigStore) Save(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, ConfigKey, data, 0).Err(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

type MemoryConfigStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryConfigStore() *MemoryConfigStore { return &MemoryConfigStore{} }

func (s *MemoryConfigStore) Load(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, domrepo.ErrNotFound
	}
	return append([]byte(nil), s.data...), nil
}

func (s *MemoryConfigStore) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	return nil
}
