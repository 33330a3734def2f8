package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"SignalDesk/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type funcHandler struct {
	topic string
	fn    func([]byte) error
}

func (h funcHandler) Topic() string { return h.topic }

func (h funcHandler) Handle(_ context.Context, b []byte) error { return h.fn(b) }

func TestProducerPublishEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "signaldesk")

	require.NoError(t, p.Publish(context.Background(), "decisions", []byte("ETHUSDT"), map[string]string{"to": "LONG_SETUP"}))
	require.NoError(t, p.PublishMessage(context.Background(), "logs", []byte(`{"n":1}`)))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "decisions", w.msgs[0].Topic)
	assert.Equal(t, []byte("ETHUSDT"), w.msgs[0].Key)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &body))
	assert.Equal(t, "LONG_SETUP", body["to"])
	assert.Nil(t, w.msgs[1].Key)

	assert.Equal(t, []kafka.Header{
		{Key: headerContentType, Value: []byte("application/json")},
		{Key: headerSource, Value: []byte("signaldesk")},
	}, w.msgs[0].Headers)
	assert.Equal(t, []kafka.Header{{Key: headerSource, Value: []byte("signaldesk")}}, w.msgs[1].Headers)
}

func TestCompressionCodec(t *testing.T) {
	c, err := compressionCodec("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, kafka.Zstd, c)
	c, err = compressionCodec("")
	require.NoError(t, err)
	assert.Equal(t, kafka.Snappy, c)
	_, err = compressionCodec("brotli")
	assert.Error(t, err)
}

func TestProducerPublishError(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("leader not available")}, "signaldesk")
	err := p.Publish(context.Background(), "decisions", nil, "x")
	assert.ErrorContains(t, err, "publish decisions")
}

func newTestConsumer(t *testing.T, h MessageHandler, dlq messageWriter) (*Consumer, *fakeReader) {
	t.Helper()
	c, err := NewConsumer(logger.Nop(),
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)
	r := &fakeReader{}
	c.RegisterHandler(h)
	c.readers[h.Topic()] = r
	c.dlq = dlq
	return c, r
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	var calls int
	h := funcHandler{topic: "alerts", fn: func([]byte) error {
		calls++
		if calls < 3 {
			return errors.New("redis busy")
		}
		return nil
	}}
	c, r := newTestConsumer(t, h, nil)

	c.process(context.Background(), delivery{topic: "alerts", msg: kafka.Message{Offset: 7}})
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int64{7}, r.committed)
}

func TestConsumerPermanentErrorGoesToDLQ(t *testing.T) {
	var calls int
	h := funcHandler{topic: "alerts", fn: func([]byte) error {
		calls++
		return PermanentError(errors.New("bad payload"))
	}}
	dlq := &fakeWriter{}
	c, r := newTestConsumer(t, h, dlq)

	c.process(context.Background(), delivery{topic: "alerts", msg: kafka.Message{Offset: 9, Value: []byte("{")}})
	assert.Equal(t, 1, calls)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, []byte("{"), dlq.msgs[0].Value)
	assert.Equal(t, []int64{9}, r.committed)
}

func TestConsumerStartStop(t *testing.T) {
	h := funcHandler{topic: "alerts", fn: func([]byte) error { return nil }}
	c, err := NewConsumer(logger.Nop(), WithConsumerBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)
	c.RegisterHandler(h)
	c.newReader = func(string) messageReader { return &fakeReader{} }

	require.NoError(t, c.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, c.Stop(ctx))
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer(nil)
	assert.Error(t, err)
}
