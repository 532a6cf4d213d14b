package delivery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/bookshelf/internal/store"
)

// Metrics holds the worker's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	claims     *prometheus.CounterVec
	outcomes   *prometheus.CounterVec
	cycle      prometheus.Histogram
	queueDepth *prometheus.GaugeVec
}

// NewMetrics creates the worker collectors and registers them with reg.
// It panics if a collector with the same name is already registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookshelf_delivery_claims_total",
			Help: "Claim attempts on due queue items, by result (won or lost).",
		}, []string{"result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookshelf_delivery_outcomes_total",
			Help: "Processed queue items, by outcome (completed, retried or failed).",
		}, []string{"outcome"}),
		cycle: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bookshelf_delivery_cycle_seconds",
			Help:    "Duration of one delivery poll cycle in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bookshelf_delivery_queue_items",
			Help: "Queue items by status, sampled after each cycle.",
		}, []string{"status"}),
	}

	reg.MustRegister(m.claims, m.outcomes, m.cycle, m.queueDepth)
	return m
}

func (m *Metrics) recordClaim(won bool) {
	if m == nil {
		return
	}
	if won {
		m.claims.WithLabelValues("won").Inc()
		return
	}
	m.claims.WithLabelValues("lost").Inc()
}

func (m *Metrics) recordOutcome(r itemResult) {
	if m == nil {
		return
	}
	switch r {
	case resultCompleted:
		m.outcomes.WithLabelValues("completed").Inc()
	case resultRetried:
		m.outcomes.WithLabelValues("retried").Inc()
	case resultFailed:
		m.outcomes.WithLabelValues("failed").Inc()
	}
}

func (m *Metrics) observeCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycle.Observe(d.Seconds())
}

func (m *Metrics) setQueueDepth(counts map[store.Status]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.queueDepth.WithLabelValues(string(status)).Set(float64(n))
	}
}
