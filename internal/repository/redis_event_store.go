package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

// appendScript deduplicates, appends, trims and refreshes expiry in one step.
// Entries are stored as "<seq>|<record json>".
//
// KEYS: events list, dedupe marker, sequence counter
// ARGV: record json, max len, log ttl seconds, dedup horizon seconds
var appendScript = redis.NewScript(`
if not redis.call('SET', KEYS[2], '1', 'NX', 'EX', ARGV[4]) then
  return 0
end
local seq = redis.call('INCR', KEYS[3])
redis.call('RPUSH', KEYS[1], seq .. '|' .. ARGV[1])
redis.call('LTRIM', KEYS[1], -tonumber(ARGV[2]), -1)
redis.call('EXPIRE', KEYS[1], ARGV[3])
redis.call('EXPIRE', KEYS[3], ARGV[3])
return seq
`)

const defaultPageSize = 100

// RedisEventStore keeps each symbol's log in a capped Redis list.
type RedisEventStore struct {
	client   redis.UniversalClient
	pageSize int64
}

type EventStoreOption func(*RedisEventStore)

// WithPageSize sets how many entries one LRANGE fetches. Pages overlap by
// one entry, so sizes below 2 are ignored.
func WithPageSize(n int) EventStoreOption {
	return func(s *RedisEventStore) {
		if n > 1 {
			s.pageSize = int64(n)
		}
	}
}

func NewRedisEventStore(client redis.UniversalClient, opts ...EventStoreOption) *RedisEventStore {
	s := &RedisEventStore{client: client, pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisEventStore) Append(ctx context.Context, rec models.EventRecord, opts domrepo.AppendOptions) (bool, error) {
	if opts.MaxLen <= 0 {
		return false, fmt.Errorf("append %s: max len must be positive", rec.Symbol)
	}
	rec.Seq = 0
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal event: %w", err)
	}

	keys := []string{eventsKey(rec.Symbol), dedupeKey(rec.Symbol, rec.EventID), eventsSeqKey(rec.Symbol)}
	seq, err := appendScript.Run(ctx, s.client, keys,
		string(data), opts.MaxLen, seconds(opts.TTL), seconds(opts.DedupHorizon),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("append %s: %w: %v", rec.Symbol, domrepo.ErrStoreUnavailable, err)
	}
	return seq > 0, nil
}

// maxRewinds bounds how often one Read steps back after the list shifted.
const maxRewinds = 16

// Read pages oldest first. Consecutive pages overlap by one entry; when the
// overlap is missing, a trim or delete shifted the list left between fetches
// and the reader steps back a page instead of skipping entries. Entries seen
// twice are dropped by sequence number.
func (s *RedisEventStore) Read(ctx context.Context, symbol string, since int64) iter.Seq2[models.EventRecord, error] {
	return func(yield func(models.EventRecord, error) bool) {
		key := eventsKey(symbol)
		var (
			lastSeq int64
			start   int64
			rewinds int
		)
		for {
			page, err := s.client.LRange(ctx, key, start, start+s.pageSize-1).Result()
			if err != nil {
				yield(models.EventRecord{}, fmt.Errorf("read %s: %w: %v", symbol, domrepo.ErrStoreUnavailable, err))
				return
			}
			recs := decodePage(page)
			if lastSeq > 0 && start > 0 && !reaches(recs, lastSeq) && rewinds < maxRewinds {
				rewinds++
				start = max(0, start-s.pageSize)
				continue
			}
			for _, rec := range recs {
				if rec.Seq <= lastSeq {
					continue
				}
				lastSeq = rec.Seq
				if rec.TS < since {
					continue
				}
				if !yield(rec, nil) {
					return
				}
			}
			if int64(len(page)) < s.pageSize {
				return
			}
			start += s.pageSize - 1
		}
	}
}

func decodePage(page []string) []models.EventRecord {
	out := make([]models.EventRecord, 0, len(page))
	for _, raw := range page {
		if rec, err := decodeEntry(raw); err == nil {
			out = append(out, rec)
		}
	}
	return out
}

// reaches reports whether recs still holds an entry at or before seq.
func reaches(recs []models.EventRecord, seq int64) bool {
	return len(recs) > 0 && recs[0].Seq <= seq
}

func (s *RedisEventStore) ReadNewest(ctx context.Context, symbol string) iter.Seq2[models.EventRecord, error] {
	return func(yield func(models.EventRecord, error) bool) {
		key := eventsKey(symbol)
		var lowestSeq int64 = -1
		for stop := int64(-1); ; stop -= s.pageSize {
			page, err := s.client.LRange(ctx, key, stop-s.pageSize+1, stop).Result()
			if err != nil {
				yield(models.EventRecord{}, fmt.Errorf("read %s: %w: %v", symbol, domrepo.ErrStoreUnavailable, err))
				return
			}
			for i := len(page) - 1; i >= 0; i-- {
				rec, err := decodeEntry(page[i])
				if err != nil {
					continue
				}
				if lowestSeq >= 0 && rec.Seq >= lowestSeq {
					continue
				}
				lowestSeq = rec.Seq
				if !yield(rec, nil) {
					return
				}
			}
			if int64(len(page)) < s.pageSize {
				return
			}
		}
	}
}

func (s *RedisEventStore) Delete(ctx context.Context, symbol, eventID string) (int, error) {
	key := eventsKey(symbol)
	entries, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("delete %s/%s: %w", symbol, eventID, err)
	}
	removed := 0
	for _, raw := range entries {
		rec, err := decodeEntry(raw)
		if err != nil || rec.EventID != eventID {
			continue
		}
		n, err := s.client.LRem(ctx, key, 1, raw).Result()
		if err != nil {
			return removed, fmt.Errorf("delete %s/%s: %w", symbol, eventID, err)
		}
		removed += int(n)
	}
	return removed, nil
}

func (s *RedisEventStore) Seen(ctx context.Context, symbol, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, dedupeKey(symbol, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("seen %s: %w: %v", symbol, domrepo.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

func (s *RedisEventStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decodeEntry(raw string) (models.EventRecord, error) {
	var rec models.EventRecord
	seqPart, body, ok := strings.Cut(raw, "|")
	if !ok {
		return rec, errors.New("malformed event entry")
	}
	seq, err := strconv.ParseInt(seqPart, 10, 64)
	if err != nil {
		return rec, fmt.Errorf("malformed event seq: %w", err)
	}
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return rec, fmt.Errorf("malformed event body: %w", err)
	}
	rec.Seq = seq
	return rec, nil
}

func seconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
