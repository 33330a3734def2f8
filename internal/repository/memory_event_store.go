package repository

import (
	"context"
	"iter"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
)

type memoryLog struct {
	records   []models.EventRecord
	expiresAt time.Time
	seq       int64
}

// MemoryEventStore is the in-process EventStore, used in tests and single-node runs.
type MemoryEventStore struct {
	mu        sync.Mutex
	logs      map[string]*memoryLog
	dedupe    map[string]time.Time
	nextSweep time.Time
	now       func() time.Time
}

const dedupeSweepInterval = time.Minute

func NewMemoryEventStore(now func() time.Time) *MemoryEventStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryEventStore{
		logs:   make(map[string]*memoryLog),
		dedupe: make(map[string]time.Time),
		now:    now,
	}
}

func (s *MemoryEventStore) Append(_ context.Context, rec models.EventRecord, opts domrepo.AppendOptions) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepDedupe(now)
	dk := dedupeKey(rec.Symbol, rec.EventID)
	if exp, ok := s.dedupe[dk]; ok && now.Before(exp) {
		return false, nil
	}
	s.dedupe[dk] = now.Add(time.Duration(seconds(opts.DedupHorizon)) * time.Second)

	log := s.liveLog(rec.Symbol, now)
	if log == nil {
		log = &memoryLog{}
		s.logs[rec.Symbol] = log
	}
	log.seq++
	rec.Seq = log.seq
	log.records = append(log.records, rec)
	if n := len(log.records); opts.MaxLen > 0 && n > opts.MaxLen {
		log.records = append([]models.EventRecord(nil), log.records[n-opts.MaxLen:]...)
	}
	log.expiresAt = now.Add(time.Duration(seconds(opts.TTL)) * time.Second)
	return true, nil
}

// sweepDedupe drops expired markers at most once per interval.
func (s *MemoryEventStore) sweepDedupe(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	for k, exp := range s.dedupe {
		if !now.Before(exp) {
			delete(s.dedupe, k)
		}
	}
	s.nextSweep = now.Add(dedupeSweepInterval)
}

func (s *MemoryEventStore) Seen(_ context.Context, symbol, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.dedupe[dedupeKey(symbol, eventID)]
	return ok && s.now().Before(exp), nil
}

// liveLog returns the symbol's log, dropping it first when it has expired.
func (s *MemoryEventStore) liveLog(symbol string, now time.Time) *memoryLog {
	log, ok := s.logs[symbol]
	if !ok {
		return nil
	}
	if !now.Before(log.expiresAt) {
		delete(s.logs, symbol)
		return nil
	}
	return log
}

func (s *MemoryEventStore) snapshot(symbol string) []models.EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.liveLog(symbol, s.now())
	if log == nil {
		return nil
	}
	return append([]models.EventRecord(nil), log.records...)
}

func (s *MemoryEventStore) Read(_ context.Context, symbol string, since int64) iter.Seq2[models.EventRecord, error] {
	return func(yield func(models.EventRecord, error) bool) {
		for _, rec := range s.snapshot(symbol) {
			if rec.TS < since {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (s *MemoryEventStore) ReadNewest(_ context.Context, symbol string) iter.Seq2[models.EventRecord, error] {
	return func(yield func(models.EventRecord, error) bool) {
		recs := s.snapshot(symbol)
		for i := len(recs) - 1; i >= 0; i-- {
			if !yield(recs[i], nil) {
				return
			}
		}
	}
}

func (s *MemoryEventStore) Delete(_ context.Context, symbol, eventID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.liveLog(symbol, s.now())
	if log == nil {
		return 0, nil
	}
	kept := log.records[:0]
	removed := 0
	for _, rec := range log.records {
		if rec.EventID == eventID {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	log.records = kept
	return removed, nil
}

func (s *MemoryEventStore) Ping(context.Context) error { return nil }
