package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	DeliveriesSent    *prometheus.CounterVec
	DeliveriesFailed  *prometheus.CounterVec
	SendLatency       *prometheus.HistogramVec
	DeliveriesPending *prometheus.GaugeVec
	TicksTotal        prometheus.Counter
	RateLimited       *prometheus.CounterVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DeliveriesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deliveries_sent_total",
			Help: "Total number of successfully published deliveries.",
		}, []string{"channel"}),

		DeliveriesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deliveries_failed_total",
			Help: "Total number of failed send attempts, including retried ones.",
		}, []string{"channel"}),

		SendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "delivery_send_seconds",
			Help:    "Adapter send latency from pop to external ack.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),

		DeliveriesPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "deliveries_pending",
			Help: "Current eligible queue depth per channel.",
		}, []string{"channel"}),

		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_ticks_total",
			Help: "Total number of scheduler ticks executed.",
		}),

		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deliveries_rate_limited_total",
			Help: "Ticks that skipped a channel because pacing blocked it.",
		}, []string{"channel"}),
	}

	reg.MustRegister(
		m.DeliveriesSent,
		m.DeliveriesFailed,
		m.SendLatency,
		m.DeliveriesPending,
		m.TicksTotal,
		m.RateLimited,
	)

	return m
}
