package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "signaldesk"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	alerts       *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	evaluations  *prometheus.CounterVec
	locks        *prometheus.CounterVec
	explanations *prometheus.CounterVec
	storeErrors  *prometheus.CounterVec
	tickLatency  *prometheus.HistogramVec
	lastPrice    *prometheus.GaugeVec
}

// New registers the collectors on reg; nil means the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_total",
			Help: "Webhook alerts by outcome",
		}, []string{"status"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alert_rejections_total",
			Help: "Alerts rejected by the normalizer, by error code",
		}, []string{"code"}),
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "evaluations_total",
			Help: "Rules evaluations by decision",
		}, []string{"decision"}),
		locks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "explain_lock_total",
			Help: "Explanation lock attempts by outcome",
		}, []string{"outcome"}),
		explanations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "explanations_total",
			Help: "Explanations by provider and outcome",
		}, []string{"provider", "outcome"}),
		storeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_errors_total",
			Help: "Shared store failures by operation",
		}, []string{"op"}),
		tickLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "scheduler_tick_seconds",
			Help:    "Duration of one scheduler tick over the watchlist",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"tier"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_price",
			Help: "Last streamed price per symbol",
		}, []string{"symbol"}),
	}
}

func (r *Recorder) RecordAlert(status string) { r.alerts.WithLabelValues(status).Inc() }

func (r *Recorder) RecordRejection(code string) { r.rejections.WithLabelValues(code).Inc() }

func (r *Recorder) RecordEvaluation(decision string) { r.evaluations.WithLabelValues(decision).Inc() }

func (r *Recorder) RecordLock(outcome string) { r.locks.WithLabelValues(outcome).Inc() }

func (r *Recorder) RecordExplanation(provider, outcome string) {
	r.explanations.WithLabelValues(provider, outcome).Inc()
}

func (r *Recorder) RecordStoreError(op string) { r.storeErrors.WithLabelValues(op).Inc() }

func (r *Recorder) RecordTick(tier string, seconds float64) {
	r.tickLatency.WithLabelValues(tier).Observe(seconds)
}

// RecordLastPrice is only used for watchlist symbols to bound cardinality.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordAlert(string) {}

func (Nop) RecordRejection(string) {}

func (Nop) RecordEvaluation(string) {}

func (Nop) RecordLock(string) {}

func (Nop) RecordExplanation(string, string) {}

func (Nop) RecordStoreError(string) {}

func (Nop) RecordTick(string, float64) {}
