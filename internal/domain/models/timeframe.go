package models

import (
	"strings"
	"time"
)

// Timeframe is the canonical chart interval an alert refers to.
type Timeframe string

const (
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
)

// Timeframes lists the canonical set, largest first.
var Timeframes = []Timeframe{TF4h, TF1h, TF15m}

var timeframeTokens = map[string]Timeframe{
	"15":  TF15m,
	"15m": TF15m,
	"60":  TF1h,
	"1h":  TF1h,
	"240": TF4h,
	"4h":  TF4h,
	"1H":  TF1h,
	"4H":  TF4h,
}

// ParseTimeframe maps a free-form interval token to its canonical label.
// Numeric tokens are minutes; only the hour tokens accept an upper-case unit.
func ParseTimeframe(s string) (Timeframe, bool) {
	tf, ok := timeframeTokens[strings.TrimSpace(s)]
	return tf, ok
}

// IsValidTimeframe returns true if tf is one of the canonical labels.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF15m, TF1h, TF4h:
		return true
	default:
		return false
	}
}

// Duration returns the candle length of the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	default:
		return 0
	}
}

func (tf Timeframe) String() string { return string(tf) }
