package models

// Bias is the directional lean of a score relative to the threshold.
type Bias string

const (
	BiasLong    Bias = "LONG"
	BiasShort   Bias = "SHORT"
	BiasNeutral Bias = "NEUTRAL"
)

// Decision is the advisory outcome of a rules evaluation.
type Decision string

const (
	DecisionLongSetup  Decision = "LONG_SETUP"
	DecisionShortSetup Decision = "SHORT_SETUP"
	DecisionWatch      Decision = "WATCH"
	DecisionNoTrade    Decision = "NO_TRADE"
)

// SignalKey identifies one (indicator, timeframe) pair.
type SignalKey struct {
	Indicator string
	TF        Timeframe
}

// SignalEntry is the latest in-window vote of a pair.
type SignalEntry struct {
	Direction float64 `json:"direction"`
	Signal    Signal  `json:"signal"`
	Strength  float64 `json:"strength"`
	TS        int64   `json:"ts"`
	EventID   string  `json:"event_id"`
}

// AggregatedSignal holds at most one entry per pair.
type AggregatedSignal map[SignalKey]SignalEntry

// TFCounts counts in-window votes per side for a timeframe.
type TFCounts struct {
	Buy  int `json:"buy"`
	Sell int `json:"sell"`
}

// UsedSignal is the wire form of an aggregated entry.
type UsedSignal struct {
	Indicator string    `json:"indicator"`
	TF        Timeframe `json:"tf"`
	Signal    Signal    `json:"signal"`
	Strength  float64   `json:"strength"`
	TS        int64     `json:"ts"`
	EventID   string    `json:"event_id"`
}

// RulesResult is the output of one deterministic evaluation.
type RulesResult struct {
	EvaluationID string   `json:"evaluation_id"`
	Symbol       string   `json:"symbol"`
	Score        float64  `json:"score"`
	Threshold    float64  `json:"threshold"`
	Bias         Bias     `json:"bias"`
	Decision     Decision `json:"decision"`
	Confidence   int      `json:"confidence"`
	Reasons      []string `json:"reasons"`
	VetoApplied  bool     `json:"veto_applied"`
	VetoReason   string   `json:"veto_reason,omitempty"`
	GeneratedAt  int64    `json:"generated_at"`
}

// LatestRules is the fast-tier snapshot of a symbol.
type LatestRules struct {
	RulesResult
	SignalsUsed []UsedSignal           `json:"signals_used"`
	Counts      map[Timeframe]TFCounts `json:"counts,omitempty"`
	Market      *MarketContext         `json:"market,omitempty"`
}

// LatestAI is the slow-tier explanation, tied to the evaluation it explains.
type LatestAI struct {
	EvaluationID string   `json:"evaluation_id"`
	Lines        []string `json:"lines"`
	GeneratedAt  int64    `json:"generated_at"`
	Provider     string   `json:"provider"`
}

// Snapshot is the combined view of both tiers.
type Snapshot struct {
	Rules        *LatestRules `json:"rules,omitempty"`
	AI           *LatestAI    `json:"ai,omitempty"`
	AISuperseded bool         `json:"ai_superseded"`
}

// Empty reports whether neither tier is present.
func (s Snapshot) Empty() bool { return s.Rules == nil && s.AI == nil }

// MarketSummary describes recent candles of one timeframe.
type MarketSummary struct {
	TF           Timeframe `json:"tf"`
	LastPrice    float64   `json:"last_price"`
	GreenCandles int       `json:"green_candles"`
	RedCandles   int       `json:"red_candles"`
	Slope        float64   `json:"slope"`
}

// MarketContext is informational market state attached to an evaluation.
type MarketContext struct {
	Symbol    string                      `json:"symbol"`
	LastPrice float64                     `json:"last_price"`
	Frames    map[Timeframe]MarketSummary `json:"frames"`
	FetchedAt int64                       `json:"fetched_at"`
}

// DecisionChange is published when a symbol's decision differs from the stored one.
type DecisionChange struct {
	Symbol       string   `json:"symbol"`
	From         Decision `json:"from"`
	To           Decision `json:"to"`
	Score        float64  `json:"score"`
	Confidence   int      `json:"confidence"`
	EvaluationID string   `json:"evaluation_id"`
	At           int64    `json:"at"`
}
