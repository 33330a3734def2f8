package usecase

import (
	"context"
	"encoding/json"

	"SignalDesk/pkg/queue"
)

const ExplainJobType = "explain"

type ExplainPayload struct {
	Symbol string `json:"symbol"`
}

// ExplainJob runs an explanation refresh off the request path.
type ExplainJob struct {
	tier Refresher
}

var _ queue.Job = (*ExplainJob)(nil)

func NewExplainJob(tier Refresher) *ExplainJob { return &ExplainJob{tier: tier} }

func (j *ExplainJob) Name() string { return "explain-refresh" }

func (j *ExplainJob) Type() string { return ExplainJobType }

func (j *ExplainJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[ExplainPayload](payload)
	if err != nil {
		return err
	}
	if p.Symbol == "" {
		return ErrUnknownSymbol
	}
	_, err = j.tier.Refresh(ctx, p.Symbol)
	return err
}
