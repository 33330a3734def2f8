package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
)

// KeyedPublisher is the slice of pkg/kafka.Producer the decision publisher needs.
type KeyedPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value any) error
	Close() error
}

// KafkaDecisionPublisher writes decision changes keyed by symbol so that
// consumers see them in order per symbol.
type KafkaDecisionPublisher struct {
	producer KeyedPublisher
	topic    string
}

func NewKafkaDecisionPublisher(producer KeyedPublisher, topic string) *KafkaDecisionPublisher {
	if topic == "" {
		topic = "signaldesk.decisions"
	}
	return &KafkaDecisionPublisher{producer: producer, topic: topic}
}

func (p *KafkaDecisionPublisher) PublishChange(ctx context.Context, ch models.DecisionChange) error {
	return p.producer.Publish(ctx, p.topic, []byte(ch.Symbol), ch)
}

func (p *KafkaDecisionPublisher) Close() error { return p.producer.Close() }

// SubjectPublisher matches *nats.Conn.
type SubjectPublisher interface {
	Publish(subject string, data []byte) error
}

// NATSDecisionPublisher publishes on <prefix>.<SYMBOL>.
type NATSDecisionPublisher struct {
	conn   SubjectPublisher
	prefix string
}

func NewNATSDecisionPublisher(conn SubjectPublisher, prefix string) *NATSDecisionPublisher {
	if prefix == "" {
		prefix = "signaldesk.decisions"
	}
	return &NATSDecisionPublisher{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

func (p *NATSDecisionPublisher) Subject(symbol string) string {
	return p.prefix + "." + symbol
}

func (p *NATSDecisionPublisher) PublishChange(_ context.Context, ch models.DecisionChange) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := p.conn.Publish(p.Subject(ch.Symbol), data); err != nil {
		return fmt.Errorf("nats publish %s: %w", ch.Symbol, err)
	}
	return nil
}

// Close is a no-op; the connection is closed by its owner.
func (p *NATSDecisionPublisher) Close() error { return nil }

// FanoutPublisher delivers to every publisher and joins their errors.
type FanoutPublisher []domrepo.DecisionPublisher

func (f FanoutPublisher) PublishChange(ctx context.Context, ch models.DecisionChange) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishChange(ctx, ch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f FanoutPublisher) Close() error {
	var errs []error
	for _, p := range f {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}
