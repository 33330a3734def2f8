package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/services/normalizer"
	pkgkafka "SignalDesk/pkg/kafka"
)

// AlertIngester is the part of Ingestor a stream consumer needs.
type AlertIngester interface {
	Ingest(ctx context.Context, raw models.RawAlert) (models.WebhookResponse, error)
}

// KafkaAlertsHandler feeds alerts published on a Kafka topic into the same
// pipeline as the webhook. The topic is trusted, so no secret is checked.
type KafkaAlertsHandler struct {
	topic  string
	ingest AlertIngester
}

func NewKafkaAlertsHandler(topic string, ingest AlertIngester) *KafkaAlertsHandler {
	return &KafkaAlertsHandler{topic: topic, ingest: ingest}
}

func (h *KafkaAlertsHandler) Topic() string { return h.topic }

// Handle marks undecodable and invalid alerts as permanent so the consumer
// sends them to the DLQ instead of retrying.
func (h *KafkaAlertsHandler) Handle(ctx context.Context, b []byte) error {
	var raw models.RawAlert
	if err := json.Unmarshal(b, &raw); err != nil {
		return pkgkafka.PermanentError(fmt.Errorf("decode alert: %w", err))
	}
	_, err := h.ingest.Ingest(ctx, raw)
	var nerr *normalizer.NormalizeError
	if errors.As(err, &nerr) {
		return pkgkafka.PermanentError(err)
	}
	return err
}

var _ pkgkafka.MessageHandler = (*KafkaAlertsHandler)(nil)
