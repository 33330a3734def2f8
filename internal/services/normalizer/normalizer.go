// Package normalizer turns untrusted webhook alerts into canonical events.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
)

// Rejection codes.
const (
	ErrCodeSymbol    = "ERR_SYMBOL"
	ErrCodeTimeframe = "ERR_TIMEFRAME"
	ErrCodeSignal    = "ERR_SIGNAL"
	ErrCodePrice     = "ERR_PRICE"
	ErrCodeTS        = "ERR_TS"
	ErrCodeStrength  = "ERR_STRENGTH"
	ErrCodeIndicator = "ERR_INDICATOR"
)

// msEpochFloor separates second epochs from millisecond epochs.
const msEpochFloor = 100_000_000_000

var tsLayouts = []string{
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NormalizeError is the single rejection type of Normalize.
type NormalizeError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func reject(code, field, value, format string, args ...interface{}) *NormalizeError {
	return &NormalizeError{Code: code, Field: field, Value: value, Message: fmt.Sprintf(format, args...)}
}

type options struct {
	now           func() time.Time
	fallbackPrice float64
}

type Option func(*options)

// WithClock sets the time source used when an alert carries no ts.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithFallbackPrice sets the price used when an alert carries none.
func WithFallbackPrice(p float64) Option {
	return func(o *options) { o.fallbackPrice = p }
}

// Normalize validates raw and returns its canonical form.
func Normalize(raw models.RawAlert, opts ...Option) (models.NormalizedEvent, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	indicator := strings.TrimSpace(raw.Indicator)
	if indicator == "" {
		return models.NormalizedEvent{}, reject(ErrCodeIndicator, "indicator", raw.Indicator, "indicator is required")
	}

	symbol := NormalizeSymbol(raw.Symbol)
	if symbol == "" {
		return models.NormalizedEvent{}, reject(ErrCodeSymbol, "symbol", raw.Symbol, "empty symbol after normalization")
	}

	tf, ok := models.ParseTimeframe(raw.TF.String())
	if !ok {
		return models.NormalizedEvent{}, reject(ErrCodeTimeframe, "tf", raw.TF.Raw, "invalid timeframe %q", raw.TF.Raw)
	}

	signal, ok := parseSignal(raw.Signal)
	if !ok {
		return models.NormalizedEvent{}, reject(ErrCodeSignal, "signal", raw.Signal, "invalid signal %q, expected BUY or SELL", raw.Signal)
	}

	ts := o.now().Unix()
	if raw.TS.Set {
		parsed, err := parseTS(raw.TS.String())
		if err != nil {
			return models.NormalizedEvent{}, reject(ErrCodeTS, "ts", raw.TS.Raw, "cannot parse ts %q as epoch seconds", raw.TS.Raw)
		}
		ts = parsed
	}

	price := o.fallbackPrice
	if raw.Price.Set {
		parsed, err := parseFinite(raw.Price.String())
		if err != nil || parsed < 0 {
			return models.NormalizedEvent{}, reject(ErrCodePrice, "price", raw.Price.Raw, "cannot parse price %q as a number", raw.Price.Raw)
		}
		price = parsed
	}

	strength := 1.0
	if raw.Strength.Set {
		parsed, err := parseFinite(raw.Strength.String())
		if err != nil {
			return models.NormalizedEvent{}, reject(ErrCodeStrength, "strength", raw.Strength.Raw, "cannot parse strength %q as a number", raw.Strength.Raw)
		}
		strength = math.Max(0, math.Min(1, parsed))
	}

	eventID := strings.TrimSpace(raw.EventID)
	if eventID == "" {
		eventID = EventID(raw)
	}

	redacted := raw.Redacted()
	return models.NormalizedEvent{
		EventID:   eventID,
		Symbol:    symbol,
		Indicator: indicator,
		TF:        tf,
		Signal:    signal,
		Price:     price,
		TS:        ts,
		Strength:  strength,
		Raw:       &redacted,
	}, nil
}

// NormalizeSymbol strips an exchange prefix and a perpetual suffix, keeping case.
func NormalizeSymbol(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	if n := len(s); n >= 2 && strings.EqualFold(s[n-2:], ".P") {
		s = s[:n-2]
	}
	return strings.TrimSpace(s)
}

// EventID derives a deterministic id from the raw tokens of the alert.
func EventID(raw models.RawAlert) string {
	key := strings.Join([]string{
		raw.Indicator,
		raw.Symbol,
		raw.TF.String(),
		raw.Signal,
		raw.TS.String(),
		raw.Price.String(),
	}, ":")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

func parseSignal(s string) (models.Signal, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return models.SignalBuy, true
	case "SELL":
		return models.SignalSell, true
	default:
		return "", false
	}
}

func parseTS(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative ts %d", n)
		}
		if n > msEpochFloor {
			n /= 1000
		}
		return n, nil
	}
	for _, layout := range tsLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unparsable ts %q", s)
}

func parseFinite(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return f, nil
}
