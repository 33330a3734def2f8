package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalDesk/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "signaldesk:queue"
	deadLetterCap    = 1000
	promoteBatch     = 100
)

// promoteScript moves up to ARGV[2] due members of the retry set onto the
// pending list in one step, so two replicas never double-deliver a retry.
var promoteScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
for _, m in ipairs(due) do
	redis.call("ZREM", KEYS[1], m)
	redis.call("LPUSH", KEYS[2], m)
end
return #due
`)

// RedisQueue keeps pending messages in a list, delayed retries in a sorted
// set scored by due time (unix ms) and exhausted messages in a capped list.
type RedisQueue struct {
	logger *logger.Logger
	config QueueConfig
	client redis.UniversalClient
	reg    *registry
	keys   queueKeys

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

type queueKeys struct {
	pending, retry, dead string
}

func newQueueKeys(prefix string) queueKeys {
	return queueKeys{pending: prefix + ":messages", retry: prefix + ":retry", dead: prefix + ":dlq"}
}

type RedisQueueOption func(*RedisQueue)

func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) { r.keys = newQueueKeys(prefix) }
}

func NewRedisQueue(lgr *logger.Logger, config QueueConfig, client redis.UniversalClient, opts ...RedisQueueOption) *RedisQueue {
	config.setDefaults()
	if lgr == nil {
		lgr = logger.Nop()
	}
	lgr = lgr.With("queue")
	rq := &RedisQueue{
		logger: lgr,
		config: config,
		client: client,
		reg:    newRegistry(lgr),
		keys:   newQueueKeys(defaultKeyPrefix),
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

func (r *RedisQueue) RegisterJob(job Job) { r.reg.register(job) }

func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.running = true
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.promoter()
	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("list", r.keys.pending))
	return nil
}

func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	if err := waitGroupDone(ctx, &r.wg); err != nil {
		r.logger.Warn("timeout waiting for queue workers", logger.Error(err))
		return err
	}
	r.logger.Info("redis queue stopped")
	return nil
}

func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	msg, err := r.reg.envelope(msgType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.keys.pending, data).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", msgType, err)
	}
	return nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	for r.ctx.Err() == nil {
		msg, ok := r.pop()
		if ok {
			r.process(msg)
		}
	}
	r.logger.Debug("queue worker stopped", logger.Int("worker_id", id))
}

func (r *RedisQueue) pop() (Message, bool) {
	res, err := r.client.BRPop(r.ctx, time.Second, r.keys.pending).Result()
	switch {
	case errors.Is(err, redis.Nil) || r.ctx.Err() != nil:
		return Message{}, false
	case err != nil:
		r.logger.Error("brpop error", logger.Error(err))
		select {
		case <-r.ctx.Done():
		case <-time.After(time.Second):
		}
		return Message{}, false
	case len(res) < 2:
		return Message{}, false
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		r.logger.Error("unmarshal message", logger.Error(err))
		return Message{}, false
	}
	return msg, true
}

// process runs msg and parks it in the retry set or the dead letter list on
// failure. Writes use a detached context so shutdown cannot lose a retry.
func (r *RedisQueue) process(msg Message) {
	outcome := r.reg.run(r.ctx, &msg, r.config.RetryLimit)
	if outcome == handled {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ctx := context.WithoutCancel(r.ctx)

	if outcome == retryLater {
		due := time.Now().Add(r.config.RetryDelay).UnixMilli()
		if err := r.client.ZAdd(ctx, r.keys.retry, redis.Z{Score: float64(due), Member: data}).Err(); err != nil {
			r.logger.Error("schedule retry", logger.String("id", msg.ID), logger.Error(err))
		}
		return
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.keys.dead, data)
	pipe.LTrim(ctx, r.keys.dead, 0, deadLetterCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("dead letter", logger.String("id", msg.ID), logger.Error(err))
	}
}

func (r *RedisQueue) promoter() {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := r.promote(r.ctx, now); err != nil && r.ctx.Err() == nil {
				r.logger.Error("promote retries", logger.Error(err))
			}
		}
	}
}

// promote returns how many retries became pending again.
func (r *RedisQueue) promote(ctx context.Context, now time.Time) (int64, error) {
	return promoteScript.Run(ctx, r.client,
		[]string{r.keys.retry, r.keys.pending},
		now.UnixMilli(), promoteBatch).Int64()
}
