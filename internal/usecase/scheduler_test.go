package usecase

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRules struct {
	mu      sync.Mutex
	changed map[string]bool
	calls   []string
}

func (f *fakeRules) Evaluate(_ context.Context, symbol string) (Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, symbol)
	if symbol == "BROKEN" {
		return Evaluation{}, errBoom
	}
	return Evaluation{Written: true, Changed: f.changed[symbol]}, nil
}

type fakeRefresher struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeRefresher) Refresh(_ context.Context, symbol string) (RefreshOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, symbol)
	return RefreshWritten, nil
}

func (f *fakeRefresher) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

func TestSchedulerRunRulesTriggersChangedSymbols(t *testing.T) {
	rules := &fakeRules{changed: map[string]bool{"ETHUSDT": true}}
	metrics := newCountingMetrics()
	s := NewScheduler(rules, &fakeRefresher{}, newHolder(t), metrics, nil)

	s.RunRules(context.Background(), []string{"ETHUSDT", "BROKEN", "BTCUSDT"})

	assert.Equal(t, []string{"ETHUSDT", "BROKEN", "BTCUSDT"}, rules.calls)
	assert.Equal(t, []string{"ETHUSDT"}, s.drainPending())
	assert.Equal(t, int64(1), s.Status().RulesTicks)
	assert.Equal(t, 1, metrics.get(metrics.ticks, "rules"))
}

func TestSchedulerTriggersCoalesce(t *testing.T) {
	s := NewScheduler(&fakeRules{}, &fakeRefresher{}, newHolder(t), nil, nil)
	for i := 0; i < 5; i++ {
		s.Trigger("ETHUSDT")
	}
	s.Trigger("BTCUSDT")

	got := s.drainPending()
	sort.Strings(got)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, got)
	assert.Len(t, s.signal, 1)
	assert.Empty(t, s.drainPending())
}

func TestSchedulerRunExplainStopsOnCancel(t *testing.T) {
	ref := &fakeRefresher{}
	s := NewScheduler(&fakeRules{}, ref, newHolder(t), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.RunExplain(ctx, []string{"ETHUSDT", "BTCUSDT"})
	assert.Empty(t, ref.seen())
	assert.Zero(t, s.Status().AITicks)
}

func TestSchedulerStartExplainsChangedSymbolsImmediately(t *testing.T) {
	rules := &fakeRules{changed: map[string]bool{"ETHUSDT": true}}
	ref := &fakeRefresher{}
	s := NewScheduler(rules, ref, newHolder(t), nil, nil)

	s.Start(context.Background())
	s.Start(context.Background())
	assert.True(t, s.Status().Running)

	assert.Eventually(t, func() bool {
		seen := ref.seen()
		return len(seen) == 1 && seen[0] == "ETHUSDT"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return s.Status().RulesTicks == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))

	st := s.Status()
	assert.False(t, st.Running)
	assert.Equal(t, int64(1), st.AITicks)
	assert.NotZero(t, st.LastRulesAt)
	assert.NotZero(t, st.LastAIAt)
}
