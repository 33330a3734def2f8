package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"SignalDesk/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

const (
	headerSource      = "source"
	headerContentType = "content-type"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes keyed messages. The hash balancer pins a key to one
// partition, which keeps decision changes for a symbol in order.
type Producer struct {
	writer  messageWriter
	source  string
	metrics *producerMetrics
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "snappy",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
		ClientID:     "signaldesk",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	comp, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  comp,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}, cfg.ClientID), nil
}

func newProducer(w messageWriter, source string) *Producer {
	return &Producer{writer: w, source: source, metrics: sharedProducerMetrics()}
}

// Publish sends value under key. Raw bytes and strings pass through; any other
// value is JSON encoded and tagged with a content-type header.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value any) error {
	msg := kafka.Message{Topic: topic, Key: key, Time: time.Now()}
	switch v := value.(type) {
	case []byte:
		msg.Value = v
	case string:
		msg.Value = []byte(v)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal value: %w", err)
		}
		msg.Value = data
		msg.Headers = append(msg.Headers, kafka.Header{Key: headerContentType, Value: []byte("application/json")})
	}
	if p.source != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: headerSource, Value: []byte(p.source)})
	}

	err := p.writer.WriteMessages(ctx, msg)
	p.metrics.observe(topic, len(msg.Value), time.Since(msg.Time), err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishMessage satisfies logger.Publisher.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func compressionCodec(name string) (kafka.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return kafka.Snappy, nil
	case "gzip":
		return kafka.Gzip, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, fmt.Errorf("unknown kafka compression %q", name)
}

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	producerMetricsOnce sync.Once
	producerMetricsInst *producerMetrics
)

// sharedProducerMetrics registers on the default registry once per process.
func sharedProducerMetrics() *producerMetrics {
	producerMetricsOnce.Do(func() {
		f := promauto.With(prometheus.DefaultRegisterer)
		producerMetricsInst = &producerMetrics{
			messages: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "signaldesk",
				Subsystem: "kafka_producer",
				Name:      "messages_total",
				Help:      "Messages published to Kafka by result",
			}, []string{"topic", "result"}),
			bytes: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "signaldesk",
				Subsystem: "kafka_producer",
				Name:      "bytes_total",
				Help:      "Payload bytes published to Kafka",
			}, []string{"topic"}),
			latency: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "signaldesk",
				Subsystem: "kafka_producer",
				Name:      "publish_seconds",
				Help:      "Publish latency",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			}, []string{"topic"}),
		}
	})
	return producerMetricsInst
}

func (m *producerMetrics) observe(topic string, size int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, result).Inc()
	m.bytes.WithLabelValues(topic).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(dur.Seconds())
}

var _ logger.Publisher = (*Producer)(nil)
