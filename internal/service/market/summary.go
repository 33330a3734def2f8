package market

import (
	"encoding/json"
	"fmt"

	"SignalDesk/internal/domain/models"

	"github.com/shopspring/decimal"
)

const summaryWindow = 20

type Candle struct {
	OpenTime int64           `json:"t"`
	Open     decimal.Decimal `json:"o"`
	Close    decimal.Decimal `json:"c"`
}

// Green counts a flat candle as green.
func (c Candle) Green() bool { return c.Close.GreaterThanOrEqual(c.Open) }

// parseKlines reads Binance kline rows: [openTime, open, high, low, close, ...].
func parseKlines(rows [][]interface{}) ([]Candle, error) {
	out := make([]Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("kline %d: %d fields", i, len(row))
		}
		open, err := decimalField(row[1])
		if err != nil {
			return nil, fmt.Errorf("kline %d open: %w", i, err)
		}
		closePx, err := decimalField(row[4])
		if err != nil {
			return nil, fmt.Errorf("kline %d close: %w", i, err)
		}
		var openTime int64
		if f, ok := row[0].(float64); ok {
			openTime = int64(f)
		}
		out = append(out, Candle{OpenTime: openTime, Open: open, Close: closePx})
	}
	return out, nil
}

func decimalField(v interface{}) (decimal.Decimal, error) {
	switch x := v.(type) {
	case string:
		return decimal.NewFromString(x)
	case float64:
		return decimal.NewFromFloat(x), nil
	case json.Number:
		return decimal.NewFromString(x.String())
	default:
		return decimal.Zero, fmt.Errorf("unexpected type %T", v)
	}
}

// Summarize reports the last close, the green/red split of the last 20
// candles and the close-to-close change across them.
func Summarize(tf models.Timeframe, candles []Candle) models.MarketSummary {
	s := models.MarketSummary{TF: tf}
	if len(candles) == 0 {
		return s
	}
	window := candles
	if len(window) > summaryWindow {
		window = window[len(window)-summaryWindow:]
	}
	for _, c := range window {
		if c.Green() {
			s.GreenCandles++
		}
	}
	s.RedCandles = len(window) - s.GreenCandles
	s.LastPrice = candles[len(candles)-1].Close.InexactFloat64()
	s.Slope = window[len(window)-1].Close.Sub(window[0].Close).Round(4).InexactFloat64()
	return s
}
