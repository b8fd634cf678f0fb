// Package metrics exposes Prometheus instruments for the worksheet service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "foodcost"

// Metrics groups the collectors registered by the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	derivedItems   *prometheus.CounterVec
	summaryWrites  *prometheus.CounterVec
	storeFailures  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	subscribers    prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		derivedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "derived_line_items_total",
			Help:      "Line items passed through the calculation engine.",
		}, []string{"profile"}),
		summaryWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_writes_total",
			Help:      "Daily summaries recomputed and committed, by operation.",
		}, []string{"operation"}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_failures_total",
			Help:      "Store operations that returned an error, by operation.",
		}, []string{"operation"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "day_subscribers",
			Help:      "Open live subscriptions to worksheet days.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.derivedItems, m.summaryWrites, m.storeFailures, m.requestLatency, m.subscribers)
	}
	return m
}

// ItemsDerived counts n derivations under profile.
func (m *Metrics) ItemsDerived(profile string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.derivedItems.WithLabelValues(profile).Add(float64(n))
}

// SummaryWritten counts a committed summary for operation.
func (m *Metrics) SummaryWritten(operation string) {
	if m == nil {
		return
	}
	m.summaryWrites.WithLabelValues(operation).Inc()
}

// StoreFailed counts a failed store call for operation.
func (m *Metrics) StoreFailed(operation string) {
	if m == nil {
		return
	}
	m.storeFailures.WithLabelValues(operation).Inc()
}

// ObserveRequest records the latency of one HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}

// SubscriberAdded increments the open subscription gauge and returns the
// matching decrement.
func (m *Metrics) SubscriberAdded() func() {
	if m == nil {
		return func() {}
	}
	m.subscribers.Inc()
	return m.subscribers.Dec
}
