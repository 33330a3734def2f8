// Package rules scores aggregated signals into an advisory decision.
// Evaluate is pure: it never touches a store or the network.
package rules

import (
	"fmt"
	"math"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/services/aggregator"
)

type Input struct {
	Symbol       string
	Signals      models.AggregatedSignal
	Config       models.RuntimeConfig
	Market       *models.MarketContext
	Now          time.Time
	EvaluationID string
}

// ValidateConfig rejects configurations the engine cannot score with.
func ValidateConfig(cfg models.RuntimeConfig) error {
	if cfg.Threshold <= 0 || math.IsNaN(cfg.Threshold) || math.IsInf(cfg.Threshold, 0) {
		return fmt.Errorf("rules: threshold must be positive, got %v", cfg.Threshold)
	}
	return cfg.Validate()
}

// Evaluate computes score, bias, veto, decision and confidence.
func Evaluate(in Input) models.RulesResult {
	cfg := in.Config
	res := models.RulesResult{
		EvaluationID: in.EvaluationID,
		Symbol:       in.Symbol,
		Threshold:    cfg.Threshold,
		Bias:         models.BiasNeutral,
		Decision:     models.DecisionNoTrade,
		GeneratedAt:  in.Now.UnixMilli(),
	}

	keys := make([]models.SignalKey, 0, len(in.Signals))
	for k := range in.Signals {
		keys = append(keys, k)
	}
	aggregator.SortKeys(keys)

	var (
		score             float64
		vetoSum           float64
		vetoBuy, vetoSell int
	)
	reasons := make([]string, 0, len(keys)+3)
	for _, k := range keys {
		e := in.Signals[k]
		strength := 1.0
		if cfg.StrengthMode == models.StrengthEvent {
			strength = math.Max(0, math.Min(1, e.Strength))
		}
		w := cfg.TFWeight(k.TF) * cfg.IndicatorWeight(k.Indicator)
		contrib := e.Direction * w * strength
		score += contrib

		if k.TF == cfg.VetoTimeframe {
			vetoSum += contrib
			switch e.Signal {
			case models.SignalBuy:
				vetoBuy++
			case models.SignalSell:
				vetoSell++
			}
		}
		reasons = append(reasons, fmt.Sprintf("%s@%s: %s (w=%.3f, str=%.2f, contrib=%+.3f)", k.Indicator, k.TF, e.Signal, w, strength, contrib))
	}

	score = round(score)
	res.Score = score

	if len(keys) == 0 {
		res.Reasons = append(reasons, fmt.Sprintf("score=%.4f threshold=%.4f bias=%s", score, cfg.Threshold, res.Bias), "no qualifying signals")
		res.Reasons = appendMarket(res.Reasons, in.Market, cfg.VetoTimeframe)
		return res
	}

	switch {
	case score >= cfg.Threshold:
		res.Bias = models.BiasLong
	case score <= -cfg.Threshold:
		res.Bias = models.BiasShort
	}
	reasons = append(reasons, fmt.Sprintf("score=%.4f threshold=%.4f bias=%s", score, cfg.Threshold, res.Bias))

	vetoBearish := vetoSum < 0 || vetoSell > vetoBuy
	vetoBullish := vetoSum > 0 || vetoBuy > vetoSell

	switch res.Bias {
	case models.BiasLong:
		res.Decision = models.DecisionLongSetup
		if vetoBearish {
			res.VetoApplied = true
			res.VetoReason = fmt.Sprintf("%s net SELL: %s vetoed", cfg.VetoTimeframe, models.DecisionLongSetup)
		}
	case models.BiasShort:
		res.Decision = models.DecisionShortSetup
		if vetoBullish {
			res.VetoApplied = true
			res.VetoReason = fmt.Sprintf("%s net BUY: %s vetoed", cfg.VetoTimeframe, models.DecisionShortSetup)
		}
	default:
		res.Decision = models.DecisionWatch
	}
	if res.VetoApplied {
		res.Decision = models.DecisionNoTrade
		reasons = append(reasons, res.VetoReason)
	}

	res.Confidence = Confidence(score, cfg.Threshold)
	res.Reasons = appendMarket(reasons, in.Market, cfg.VetoTimeframe)
	return res
}

// Confidence maps |score| onto 0..100, saturating at twice the threshold.
func Confidence(score, threshold float64) int {
	if threshold <= 0 {
		return 0
	}
	c := math.Floor(math.Abs(score) / (2 * threshold) * 100)
	if c > 100 {
		return 100
	}
	return int(c)
}

func appendMarket(reasons []string, mc *models.MarketContext, tf models.Timeframe) []string {
	if mc == nil {
		return reasons
	}
	if s, ok := mc.Frames[tf]; ok {
		return append(reasons, fmt.Sprintf("market %s slope=%.2f", tf, s.Slope))
	}
	return reasons
}

func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
