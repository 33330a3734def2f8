package models

// Requests and responses of the HTTP boundary.

type LatestRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}

type PriceRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}

type EventsRequest struct {
	Symbol    string `query:"symbol" json:"symbol" validate:"required"`
	Indicator string `query:"indicator" json:"indicator"`
	TF        string `query:"tf" json:"tf"`
	Signal    string `query:"signal" json:"signal"`
	Limit     int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
	After     string `query:"after" json:"after"`
	Before    string `query:"before" json:"before"`
}

type DeleteEventRequest struct {
	Symbol  string `param:"symbol" json:"symbol" validate:"required"`
	EventID string `query:"event_id" json:"event_id" validate:"required"`
}

// WebhookStatus is the outcome of one webhook delivery.
type WebhookStatus string

const (
	WebhookAccepted    WebhookStatus = "accepted"
	WebhookDuplicate   WebhookStatus = "duplicate"
	WebhookRateLimited WebhookStatus = "rate_limited"
)

type WebhookResponse struct {
	Status     WebhookStatus `json:"status"`
	EventID    string        `json:"event_id,omitempty"`
	Symbol     string        `json:"symbol,omitempty"`
	Decision   Decision      `json:"decision,omitempty"`
	Bias       Bias          `json:"bias,omitempty"`
	Confidence int           `json:"confidence"`
	Score      float64       `json:"score"`
}

type EventsResponse struct {
	Symbol string        `json:"symbol"`
	Count  int           `json:"count"`
	Events []EventRecord `json:"events"`
}

type PriceResponse struct {
	Symbol    string                      `json:"symbol"`
	LastPrice float64                     `json:"last_price"`
	Frames    map[Timeframe]MarketSummary `json:"frames,omitempty"`
	Live      bool                        `json:"live"`
}

type SchedulerStatus struct {
	Running     bool  `json:"running"`
	RulesTicks  int64 `json:"rules_ticks"`
	AITicks     int64 `json:"ai_ticks"`
	LastRulesAt int64 `json:"last_rules_at,omitempty"`
	LastAIAt    int64 `json:"last_ai_at,omitempty"`
}

type StatusResponse struct {
	RedisOK          bool            `json:"redis_ok"`
	EventsLastMinute int64           `json:"events_last_minute"`
	UptimeSeconds    int64           `json:"uptime_seconds"`
	Watchlist        []string        `json:"watchlist"`
	Scheduler        SchedulerStatus `json:"scheduler"`
}

type DeleteEventResponse struct {
	Symbol  string `json:"symbol"`
	EventID string `json:"event_id"`
	Removed int    `json:"removed"`
}
