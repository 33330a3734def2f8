package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalDesk/pkg/logger"

	"github.com/google/uuid"
)

// Publisher enqueues a job message.
type Publisher interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

type QueueConfig struct {
	Workers    int           // number of workers
	RetryLimit int           // retries before the dead letter list
	RetryDelay time.Duration // delay before a retry becomes visible
}

func (c *QueueConfig) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
}

// Message is the envelope stored in the queue.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

func newMessage(id, msgType string, payload interface{}, now time.Time) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Message{ID: id, Type: msgType, Payload: data, Timestamp: now}, nil
}

// ParsePayload decodes a job payload into T.
func ParsePayload[T any](payload json.RawMessage) (*T, error) {
	var result T
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &result, nil
}

type verdict int

const (
	handled verdict = iota
	retryLater
	deadLetter
)

// registry maps message types to jobs. Both queue backends share it.
type registry struct {
	mu   sync.RWMutex
	jobs map[string]Job
	log  *logger.Logger
}

func newRegistry(log *logger.Logger) *registry {
	return &registry{jobs: make(map[string]Job), log: log}
}

// register keeps the first job seen for a type.
func (r *registry) register(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Type()]; exists {
		r.log.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.log.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

func (r *registry) lookup(msgType string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[msgType]
	return job, ok
}

func (r *registry) envelope(msgType string, payload interface{}) (Message, error) {
	if _, ok := r.lookup(msgType); !ok {
		return Message{}, fmt.Errorf("no job registered for type: %s", msgType)
	}
	return newMessage(uuid.NewString(), msgType, payload, time.Now())
}

// run handles msg once. On a retryable failure msg.Attempts is bumped.
func (r *registry) run(ctx context.Context, msg *Message, retryLimit int) verdict {
	job, ok := r.lookup(msg.Type)
	if !ok {
		r.log.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		return handled
	}
	start := time.Now()
	err := job.Handle(ctx, msg.Payload)
	switch {
	case err == nil:
		return handled
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		r.log.Warn("message cancelled",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("elapsed", time.Since(start)))
		return handled
	}

	r.log.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))
	if msg.Attempts >= retryLimit {
		r.log.Error("max retries reached", logger.String("id", msg.ID), logger.String("type", msg.Type))
		return deadLetter
	}
	msg.Attempts++
	return retryLater
}
