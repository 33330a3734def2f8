package service

import (
	"context"

	"SignalDesk/internal/domain/models"
)

// MarketData supplies informational market state and fallback prices.
type MarketData interface {
	GetContext(ctx context.Context, symbol string) (*models.MarketContext, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// ExplainInput is everything an explanation is generated from.
type ExplainInput struct {
	Symbol string                `json:"symbol"`
	Rules  models.LatestRules    `json:"rules"`
	Market *models.MarketContext `json:"market,omitempty"`
}

// Explainer turns a rules snapshot into a short human-readable text.
type Explainer interface {
	Explain(ctx context.Context, in ExplainInput) (string, error)
	Provider() string
}
