// Package aggregator reduces a symbol's event log to one vote per
// (indicator, timeframe) pair inside that timeframe's rolling window.
package aggregator

import (
	"fmt"
	"sort"
	"time"

	"SignalDesk/internal/domain/models"
)

// FutureSkew tolerates producer clocks running slightly ahead.
const FutureSkew = 60 * time.Second

type Result struct {
	Signals models.AggregatedSignal
	Reasons []string
	Counts  map[models.Timeframe]models.TFCounts
	Used    []models.EventRecord
}

type pick struct {
	rec models.EventRecord
	pos int
}

// Aggregate keeps, per pair, the in-window record with the greatest ts.
// Equal timestamps resolve to the record that appears later in records.
func Aggregate(symbol string, records []models.EventRecord, cfg models.RuntimeConfig, now time.Time) Result {
	nowUnix := now.Unix()
	skew := int64(FutureSkew / time.Second)

	best := make(map[models.SignalKey]pick)
	counts := make(map[models.Timeframe]models.TFCounts)

	for pos, rec := range records {
		if symbol != "" && rec.Symbol != symbol {
			continue
		}
		window := int64(cfg.Window(rec.TF) / time.Second)
		if window <= 0 {
			continue
		}
		age := nowUnix - rec.TS
		if age > window || -age > skew {
			continue
		}

		c := counts[rec.TF]
		switch rec.Signal {
		case models.SignalBuy:
			c.Buy++
		case models.SignalSell:
			c.Sell++
		default:
			continue
		}
		counts[rec.TF] = c

		key := models.SignalKey{Indicator: rec.Indicator, TF: rec.TF}
		cur, ok := best[key]
		if !ok || rec.TS > cur.rec.TS || (rec.TS == cur.rec.TS && later(rec, pos, cur)) {
			best[key] = pick{rec: rec, pos: pos}
		}
	}

	keys := make([]models.SignalKey, 0, len(best))
	for k := range best {
		keys = append(keys, k)
	}
	SortKeys(keys)

	res := Result{
		Signals: make(models.AggregatedSignal, len(best)),
		Reasons: make([]string, 0, len(keys)),
		Counts:  counts,
		Used:    make([]models.EventRecord, 0, len(keys)),
	}
	for _, k := range keys {
		rec := best[k].rec
		res.Signals[k] = models.SignalEntry{
			Direction: rec.Signal.Direction(),
			Signal:    rec.Signal,
			Strength:  rec.Strength,
			TS:        rec.TS,
			EventID:   rec.EventID,
		}
		res.Used = append(res.Used, rec)
		res.Reasons = append(res.Reasons, fmt.Sprintf("%s@%s: %s (ts=%d, age=%ds)", k.Indicator, k.TF, rec.Signal, rec.TS, nowUnix-rec.TS))
	}
	return res
}

// later reports whether rec arrived after cur. Store sequence numbers win
// when both carry one; otherwise the position in the log decides.
func later(rec models.EventRecord, pos int, cur pick) bool {
	if rec.Seq != 0 && cur.rec.Seq != 0 {
		return rec.Seq > cur.rec.Seq
	}
	return pos > cur.pos
}

// SortKeys orders pairs by timeframe, largest first, then by indicator name.
func SortKeys(keys []models.SignalKey) {
	sort.Slice(keys, func(i, j int) bool {
		di, dj := keys[i].TF.Duration(), keys[j].TF.Duration()
		if di != dj {
			return di > dj
		}
		return keys[i].Indicator < keys[j].Indicator
	})
}

// UsedSignals flattens the aggregated map in evaluation order.
func UsedSignals(signals models.AggregatedSignal) []models.UsedSignal {
	keys := make([]models.SignalKey, 0, len(signals))
	for k := range signals {
		keys = append(keys, k)
	}
	SortKeys(keys)

	out := make([]models.UsedSignal, 0, len(keys))
	for _, k := range keys {
		e := signals[k]
		out = append(out, models.UsedSignal{
			Indicator: k.Indicator,
			TF:        k.TF,
			Signal:    e.Signal,
			Strength:  e.Strength,
			TS:        e.TS,
			EventID:   e.EventID,
		})
	}
	return out
}
