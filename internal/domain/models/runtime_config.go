package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// StrengthMode selects how per-event strength feeds the score.
type StrengthMode string

const (
	StrengthUnit  StrengthMode = "unit"
	StrengthEvent StrengthMode = "event"
)

// MinRefreshInterval is the floor applied to both scheduler intervals.
const MinRefreshInterval = 5 * time.Second

// RuntimeConfig is the hot-swappable tuning of ingestion, aggregation and scoring.
type RuntimeConfig struct {
	WatchlistSymbols       []string              `json:"watchlist_symbols" yaml:"watchlist_symbols" default:"[\"ETHUSDT\",\"BTCUSDT\"]" validate:"dive,required"`
	RefreshRulesSeconds    int                   `json:"refresh_rules_seconds" yaml:"refresh_rules_seconds" default:"30" validate:"gt=0"`
	RefreshAISeconds       int                   `json:"refresh_ai_seconds" yaml:"refresh_ai_seconds" default:"120" validate:"gt=0"`
	EventsMaxPerSymbol     int                   `json:"events_max_per_symbol" yaml:"events_max_per_symbol" default:"1000" validate:"gt=0,lte=100000"`
	EventsTTLSeconds       int                   `json:"events_ttl_seconds" yaml:"events_ttl_seconds" default:"86400" validate:"gt=0"`
	DedupHorizonSeconds    int                   `json:"dedup_horizon_seconds" yaml:"dedup_horizon_seconds" default:"600" validate:"gt=0"`
	TFWindows              map[Timeframe]int     `json:"tf_windows" yaml:"tf_windows" default:"{\"15m\":300,\"1h\":900,\"4h\":1800}" validate:"dive,keys,oneof=15m 1h 4h,endkeys,gt=0"`
	TFWeights              map[Timeframe]float64 `json:"tf_weights" yaml:"tf_weights" default:"{\"4h\":0.30,\"1h\":0.35,\"15m\":0.35}" validate:"dive,keys,oneof=15m 1h 4h,endkeys,gte=0"`
	IndicatorWeights       map[string]float64    `json:"indicator_weights" yaml:"indicator_weights" default:"{\"AdaptiveTrendFlow\":1.0}" validate:"dive,keys,required,endkeys,gte=0"`
	DefaultIndicatorWeight float64               `json:"default_indicator_weight" yaml:"default_indicator_weight" default:"1.0" validate:"gte=0"`
	Threshold              float64               `json:"threshold" yaml:"threshold" default:"0.35" validate:"gt=0"`
	StrengthMode           StrengthMode          `json:"strength_mode" yaml:"strength_mode" default:"unit" validate:"oneof=unit event"`
	VetoTimeframe          Timeframe             `json:"veto_timeframe" yaml:"veto_timeframe" default:"4h" validate:"oneof=15m 1h 4h"`
}

var configValidator = validator.New()

// DefaultRuntimeConfig returns the built-in configuration.
func DefaultRuntimeConfig() RuntimeConfig {
	var cfg RuntimeConfig
	if err := defaults.Set(&cfg); err != nil {
		panic(fmt.Sprintf("runtime config defaults: %v", err))
	}
	return cfg
}

// DecodeRuntimeConfig overlays a JSON document on the defaults and validates it.
// Maps present in the document replace the default maps instead of merging with them.
func DecodeRuntimeConfig(data []byte) (RuntimeConfig, error) {
	var present map[string]json.RawMessage
	if err := json.Unmarshal(data, &present); err != nil {
		return RuntimeConfig{}, fmt.Errorf("decode runtime config: %w", err)
	}

	cfg := DefaultRuntimeConfig()
	if _, ok := present["tf_windows"]; ok {
		cfg.TFWindows = nil
	}
	if _, ok := present["tf_weights"]; ok {
		cfg.TFWeights = nil
	}
	if _, ok := present["indicator_weights"]; ok {
		cfg.IndicatorWeights = nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RuntimeConfig{}, fmt.Errorf("decode runtime config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RuntimeConfig{}, err
	}
	return cfg, nil
}

// Validate returns a descriptive error for the first set of invalid fields.
func (c RuntimeConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s%s", fe.Namespace(), fe.Tag(), paramSuffix(fe.Param())))
			}
			return fmt.Errorf("invalid runtime config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid runtime config: %w", err)
	}
	return nil
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

// Window returns the aggregation window of tf, or zero when tf has none.
func (c RuntimeConfig) Window(tf Timeframe) time.Duration {
	return time.Duration(c.TFWindows[tf]) * time.Second
}

// TFWeight returns the weight of tf; unknown timeframes weigh nothing.
func (c RuntimeConfig) TFWeight(tf Timeframe) float64 {
	return c.TFWeights[tf]
}

// IndicatorWeight returns the configured weight or the default one.
func (c RuntimeConfig) IndicatorWeight(indicator string) float64 {
	if w, ok := c.IndicatorWeights[indicator]; ok {
		return w
	}
	return c.DefaultIndicatorWeight
}

func (c RuntimeConfig) RulesInterval() time.Duration {
	return clampInterval(c.RefreshRulesSeconds)
}

func (c RuntimeConfig) AIInterval() time.Duration {
	return clampInterval(c.RefreshAISeconds)
}

func clampInterval(sec int) time.Duration {
	d := time.Duration(sec) * time.Second
	if d < MinRefreshInterval {
		return MinRefreshInterval
	}
	return d
}

// Clone returns a deep copy so callers can mutate maps freely.
func (c RuntimeConfig) Clone() RuntimeConfig {
	out := c
	out.WatchlistSymbols = append([]string(nil), c.WatchlistSymbols...)
	out.TFWindows = make(map[Timeframe]int, len(c.TFWindows))
	for k, v := range c.TFWindows {
		out.TFWindows[k] = v
	}
	out.TFWeights = make(map[Timeframe]float64, len(c.TFWeights))
	for k, v := range c.TFWeights {
		out.TFWeights[k] = v
	}
	out.IndicatorWeights = make(map[string]float64, len(c.IndicatorWeights))
	for k, v := range c.IndicatorWeights {
		out.IndicatorWeights[k] = v
	}
	return out
}
