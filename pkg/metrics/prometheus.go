package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	tradesIngested *prometheus.CounterVec
	tradesRejected prometheus.Counter
	patterns       *prometheus.CounterVec
	signals        *prometheus.GaugeVec
	cashPct        *prometheus.GaugeVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New creates a recorder registered on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		tradesIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insider_trades_ingested_total",
				Help: "Total number of trades stored, by source",
			},
			[]string{"source"},
		),
		tradesRejected: f.NewCounter(
			prometheus.CounterOpts{
				Name: "insider_trades_rejected_total",
				Help: "Total number of trades rejected during ingest",
			},
		),
		patterns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insider_patterns_detected_total",
				Help: "Total number of patterns detected, by kind",
			},
			[]string{"kind"},
		),
		signals: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "insider_active_signals",
				Help: "Signals emitted by the last run, by risk tolerance",
			},
			[]string{"risk"},
		),
		cashPct: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "insider_allocation_cash_pct",
				Help: "Cash share of the last allocation, by risk tolerance",
			},
			[]string{"risk"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insider_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insider_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTradesIngested counts stored trades.
func (r *Recorder) RecordTradesIngested(source string, n int) {
	if source == "" {
		source = "unknown"
	}
	r.tradesIngested.WithLabelValues(source).Add(float64(n))
}

func (r *Recorder) RecordTradesRejected(n int) {
	r.tradesRejected.Add(float64(n))
}

func (r *Recorder) RecordPatterns(kind string, n int) {
	r.patterns.WithLabelValues(kind).Add(float64(n))
}

func (r *Recorder) RecordSignals(risk string, n int) {
	r.signals.WithLabelValues(risk).Set(float64(n))
}

func (r *Recorder) RecordCashPct(risk string, pct float64) {
	r.cashPct.WithLabelValues(risk).Set(pct)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordTradesIngested(string, int) {}
func (Nop) RecordTradesRejected(int)         {}
func (Nop) RecordPatterns(string, int)       {}
func (Nop) RecordSignals(string, int)        {}
func (Nop) RecordCashPct(string, float64)    {}
func (Nop) RecordError(string)               {}
func (Nop) RecordLatency(string, float64)    {}
