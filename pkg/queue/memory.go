package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SignalDesk/pkg/logger"
)

// LocalQueue runs jobs in process. Used when no Redis is configured; pending
// messages are lost on shutdown.
type LocalQueue struct {
	logger *logger.Logger
	config QueueConfig
	reg    *registry
	ch     chan Message
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	deadMu sync.Mutex
	dead   []Message
}

func NewLocalQueue(lgr *logger.Logger, config QueueConfig, buffer int) *LocalQueue {
	config.setDefaults()
	if buffer <= 0 {
		buffer = 256
	}
	if lgr == nil {
		lgr = logger.Nop()
	}
	lgr = lgr.With("queue")
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalQueue{
		logger: lgr,
		config: config,
		reg:    newRegistry(lgr),
		ch:     make(chan Message, buffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (q *LocalQueue) RegisterJob(job Job) { q.reg.register(job) }

func (q *LocalQueue) Start(context.Context) error {
	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.logger.Info("local queue started", logger.Int("workers", q.config.Workers))
	return nil
}

func (q *LocalQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case msg := <-q.ch:
			q.process(msg)
		}
	}
}

func (q *LocalQueue) Stop(ctx context.Context) error {
	q.cancel()
	return waitGroupDone(ctx, &q.wg)
}

// Enqueue fails instead of blocking when the buffer is full.
func (q *LocalQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	msg, err := q.reg.envelope(msgType, payload)
	if err != nil {
		return err
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return fmt.Errorf("queue full")
	}
}

// DeadLetters returns messages that exhausted their retries.
func (q *LocalQueue) DeadLetters() []Message {
	q.deadMu.Lock()
	defer q.deadMu.Unlock()
	return append([]Message(nil), q.dead...)
}

func (q *LocalQueue) process(msg Message) {
	switch q.reg.run(q.ctx, &msg, q.config.RetryLimit) {
	case deadLetter:
		q.deadMu.Lock()
		q.dead = append(q.dead, msg)
		q.deadMu.Unlock()
	case retryLater:
		time.AfterFunc(q.config.RetryDelay, func() {
			select {
			case q.ch <- msg:
			case <-q.ctx.Done():
			default:
				q.logger.Warn("retry dropped, queue full", logger.String("id", msg.ID))
			}
		})
	}
}

func waitGroupDone(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	}
}
