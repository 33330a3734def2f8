package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/logger"
	pkgmetrics "SignalDesk/pkg/metrics"
)

// RulesRunner evaluates one symbol.
type RulesRunner interface {
	Evaluate(ctx context.Context, symbol string) (Evaluation, error)
}

// Refresher regenerates the explanation of one symbol.
type Refresher interface {
	Refresh(ctx context.Context, symbol string) (RefreshOutcome, error)
}

// Scheduler drives the rules tier and the explanation tier on their own
// intervals. Both intervals are re-read from the config holder every tick.
type Scheduler struct {
	rules   RulesRunner
	explain Refresher
	config  *ConfigHolder
	metrics domrepo.Metrics
	log     *logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]struct{}
	signal  chan struct{}

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	rulesTicks  atomic.Int64
	aiTicks     atomic.Int64
	lastRulesAt atomic.Int64
	lastAIAt    atomic.Int64
}

func NewScheduler(rules RulesRunner, explain Refresher, config *ConfigHolder, metrics domrepo.Metrics, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = pkgmetrics.Nop{}
	}
	return &Scheduler{
		rules:   rules,
		explain: explain,
		config:  config,
		metrics: metrics,
		log:     log.With("scheduler"),
		now:     time.Now,
		pending: make(map[string]struct{}),
		signal:  make(chan struct{}, 1),
	}
}

// Start launches the two loops. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go s.rulesLoop(ctx)
	go s.explainLoop(ctx)
	s.log.Info("scheduler started",
		logger.Duration("rules_interval", s.config.Current().RulesInterval()),
		logger.Duration("ai_interval", s.config.Current().AIInterval()))
}

// Stop cancels both loops and waits for them, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger asks the explanation loop to refresh symbol soon. Repeated
// triggers for the same symbol coalesce; the call never blocks.
func (s *Scheduler) Trigger(symbol string) {
	s.mu.Lock()
	s.pending[symbol] = struct{}{}
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Status() models.SchedulerStatus {
	return models.SchedulerStatus{
		Running:     s.running.Load(),
		RulesTicks:  s.rulesTicks.Load(),
		AITicks:     s.aiTicks.Load(),
		LastRulesAt: s.lastRulesAt.Load(),
		LastAIAt:    s.lastAIAt.Load(),
	}
}

func (s *Scheduler) rulesLoop(ctx context.Context) {
	defer s.wg.Done()
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		cfg := s.config.Current()
		s.RunRules(ctx, cfg.WatchlistSymbols)
		timer.Reset(s.config.Current().RulesInterval())
	}
}

// RunRules evaluates every symbol once and triggers an explanation for each
// symbol whose decision changed.
func (s *Scheduler) RunRules(ctx context.Context, symbols []string) {
	start := s.now()
	for _, sym := range symbols {
		if ctx.Err() != nil {
			return
		}
		ev, err := s.rules.Evaluate(ctx, sym)
		if err != nil {
			s.log.Warn("rules tick failed", logger.String("symbol", sym), logger.Error(err))
			continue
		}
		if ev.Changed {
			s.Trigger(sym)
		}
	}
	s.rulesTicks.Add(1)
	s.lastRulesAt.Store(s.now().UnixMilli())
	s.metrics.RecordTick("rules", s.now().Sub(start).Seconds())
}

func (s *Scheduler) explainLoop(ctx context.Context) {
	defer s.wg.Done()
	timer := time.NewTimer(s.config.Current().AIInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.signal:
			s.RunExplain(ctx, s.drainPending())
		case <-timer.C:
			s.drainPending()
			s.RunExplain(ctx, s.config.Current().WatchlistSymbols)
			timer.Reset(s.config.Current().AIInterval())
		}
	}
}

// RunExplain refreshes the explanation of every symbol once.
func (s *Scheduler) RunExplain(ctx context.Context, symbols []string) {
	if len(symbols) == 0 {
		return
	}
	start := s.now()
	for _, sym := range symbols {
		if ctx.Err() != nil {
			return
		}
		outcome, err := s.explain.Refresh(ctx, sym)
		if err != nil {
			s.log.Warn("explain tick failed", logger.String("symbol", sym), logger.Error(err))
			continue
		}
		s.log.Debug("explain refreshed", logger.String("symbol", sym), logger.String("outcome", string(outcome)))
	}
	s.aiTicks.Add(1)
	s.lastAIAt.Store(s.now().UnixMilli())
	s.metrics.RecordTick("ai", s.now().Sub(start).Seconds())
}

func (s *Scheduler) drainPending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pending))
	for sym := range s.pending {
		out = append(out, sym)
	}
	clear(s.pending)
	return out
}
