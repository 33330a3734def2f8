package repository

import (
	"context"
	"sync"

	"SignalDesk/internal/domain/models"
)

type MemorySnapshotStore struct {
	mu    sync.RWMutex
	rules map[string]models.LatestRules
	ai    map[string]models.LatestAI
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{
		rules: make(map[string]models.LatestRules),
		ai:    make(map[string]models.LatestAI),
	}
}

func (s *MemorySnapshotStore) WriteRules(_ context.Context, symbol string, rules models.LatestRules) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.rules[symbol]; ok && cur.GeneratedAt >= rules.GeneratedAt {
		return false, nil
	}
	s.rules[symbol] = rules
	return true, nil
}

func (s *MemorySnapshotStore) WriteAI(_ context.Context, symbol string, ai models.LatestAI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ai[symbol] = ai
	return nil
}

func (s *MemorySnapshotStore) Read(_ context.Context, symbol string) (models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var snap models.Snapshot
	if r, ok := s.rules[symbol]; ok {
		snap.Rules = &r
	}
	if a, ok := s.ai[symbol]; ok {
		snap.AI = &a
	}
	markSuperseded(&snap)
	return snap, nil
}
