package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

// SnapshotTTL bounds how long an untouched snapshot survives.
const SnapshotTTL = 48 * time.Hour

// writeRulesScript stores the rules tier only when it is strictly newer.
//
// KEYS: latest hash
// ARGV: rules json, generated_at (unix ms), evaluation id, ttl seconds
var writeRulesScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'rules_at')
if cur and tonumber(cur) >= tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], 'rules', ARGV[1], 'rules_at', ARGV[2], 'rules_eval', ARGV[3])
redis.call('EXPIRE', KEYS[1], ARGV[4])
return 1
`)

type RedisSnapshotStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisSnapshotStore(client redis.UniversalClient) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, ttl: SnapshotTTL}
}

func (s *RedisSnapshotStore) WriteRules(ctx context.Context, symbol string, rules models.LatestRules) (bool, error) {
	data, err := json.Marshal(rules)
	if err != nil {
		return false, fmt.Errorf("marshal rules: %w", err)
	}
	n, err := writeRulesScript.Run(ctx, s.client, []string{latestKey(symbol)},
		string(data), rules.GeneratedAt, rules.EvaluationID, seconds(s.ttl),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("write rules %s: %w: %v", symbol, domrepo.ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

func (s *RedisSnapshotStore) WriteAI(ctx context.Context, symbol string, ai models.LatestAI) error {
	data, err := json.Marshal(ai)
	if err != nil {
		return fmt.Errorf("marshal ai: %w", err)
	}
	key := latestKey(symbol)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "ai", string(data), "ai_eval", ai.EvaluationID)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write ai %s: %w: %v", symbol, domrepo.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisSnapshotStore) Read(ctx context.Context, symbol string) (models.Snapshot, error) {
	vals, err := s.client.HMGet(ctx, latestKey(symbol), "rules", "ai").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.Snapshot{}, fmt.Errorf("read snapshot %s: %w: %v", symbol, domrepo.ErrStoreUnavailable, err)
	}

	var snap models.Snapshot
	if len(vals) > 0 {
		if raw, ok := vals[0].(string); ok {
			var r models.LatestRules
			if err := json.Unmarshal([]byte(raw), &r); err != nil {
				return models.Snapshot{}, fmt.Errorf("decode rules %s: %w", symbol, err)
			}
			snap.Rules = &r
		}
	}
	if len(vals) > 1 {
		if raw, ok := vals[1].(string); ok {
			var a models.LatestAI
			if err := json.Unmarshal([]byte(raw), &a); err != nil {
				return models.Snapshot{}, fmt.Errorf("decode ai %s: %w", symbol, err)
			}
			snap.AI = &a
		}
	}
	markSuperseded(&snap)
	return snap, nil
}

func markSuperseded(snap *models.Snapshot) {
	snap.AISuperseded = snap.AI != nil && snap.Rules != nil && snap.AI.EvaluationID != snap.Rules.EvaluationID
}
