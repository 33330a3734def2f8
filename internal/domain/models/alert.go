package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Signal is the directional token of an alert.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
)

// Direction returns +1 for BUY and -1 for SELL.
func (s Signal) Direction() float64 {
	switch s {
	case SignalBuy:
		return 1
	case SignalSell:
		return -1
	default:
		return 0
	}
}

// FlexValue holds a JSON scalar that may arrive either as a number or as text.
// TradingView templates send every placeholder as a string.
type FlexValue struct {
	Raw    string
	Set    bool
	Quoted bool
}

// FlexNumber builds a numeric FlexValue.
func FlexNumber(f float64) FlexValue {
	return FlexValue{Raw: strconv.FormatFloat(f, 'f', -1, 64), Set: true}
}

// FlexInt builds an integer FlexValue.
func FlexInt(n int64) FlexValue {
	return FlexValue{Raw: strconv.FormatInt(n, 10), Set: true}
}

// FlexText builds a textual FlexValue.
func FlexText(s string) FlexValue {
	return FlexValue{Raw: s, Set: true, Quoted: true}
}

func (v *FlexValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*v = FlexValue{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = FlexValue{Raw: s, Set: true, Quoted: true}
		return nil
	}
	*v = FlexValue{Raw: string(b), Set: true}
	return nil
}

func (v FlexValue) MarshalJSON() ([]byte, error) {
	if !v.Set {
		return []byte("null"), nil
	}
	if v.Quoted {
		return json.Marshal(v.Raw)
	}
	return []byte(v.Raw), nil
}

// String returns the trimmed textual form, empty when absent.
func (v FlexValue) String() string {
	if !v.Set {
		return ""
	}
	return strings.TrimSpace(v.Raw)
}

// RawAlert is the untrusted webhook payload. Nothing in it is validated.
type RawAlert struct {
	Secret    string    `json:"secret,omitempty"`
	Indicator string    `json:"indicator"`
	Symbol    string    `json:"symbol"`
	TF        FlexValue `json:"tf"`
	Signal    string    `json:"signal"`
	Price     FlexValue `json:"price"`
	TS        FlexValue `json:"ts"`
	Strength  FlexValue `json:"strength"`
	EventID   string    `json:"event_id,omitempty"`
}

// Redacted returns a copy without the shared secret.
func (a RawAlert) Redacted() RawAlert {
	a.Secret = ""
	return a
}

// NormalizedEvent is a fully resolved alert. Immutable once created.
type NormalizedEvent struct {
	EventID   string    `json:"event_id"`
	Symbol    string    `json:"symbol"`
	Indicator string    `json:"indicator"`
	TF        Timeframe `json:"tf"`
	Signal    Signal    `json:"signal"`
	Price     float64   `json:"price"`
	TS        int64     `json:"ts"`
	Strength  float64   `json:"strength"`
	Raw       *RawAlert `json:"raw,omitempty"`
}

// EventRecord is a normalized event plus arrival metadata, as kept in the log.
type EventRecord struct {
	NormalizedEvent
	ReceivedAt int64 `json:"received_at"`
	Seq        int64 `json:"seq"`
}

// Sanitized returns a copy safe to expose: the raw payload loses its secret.
func (r EventRecord) Sanitized() EventRecord {
	if r.Raw != nil {
		raw := r.Raw.Redacted()
		r.Raw = &raw
	}
	return r
}
