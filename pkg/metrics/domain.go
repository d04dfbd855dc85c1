package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DomainMetrics instruments the signal registry, the subscription engine,
// and actuation routing using a promauto-backed collector pattern,
// collapsed into a single struct: the broker core has one domain (VSS
// signals), not several independent subsystems that would warrant
// splitting collector construction out.
type DomainMetrics struct {
	registeredEntries    prometheus.Gauge
	activeSubscriptions  *prometheus.GaugeVec
	updateLatency        prometheus.Histogram
	actuationLatency     prometheus.Histogram
	actuationOutcomes    *prometheus.CounterVec
	droppedChangeFrames  prometheus.Counter
}

// NewDomainMetrics constructs a DomainMetrics registered against the
// process-wide registry. Returns nil if InitRegistry has not been called,
// so every call site in facade/subscription can unconditionally call
// through a nil-safe method without an extra enabled check.
func NewDomainMetrics() *DomainMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	factory := promauto.With(reg)

	return &DomainMetrics{
		registeredEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "databroker",
			Subsystem: "registry",
			Name:      "registered_entries",
			Help:      "Number of signal entries currently registered.",
		}),
		activeSubscriptions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "databroker",
			Subsystem: "subscription",
			Name:      "active",
			Help:      "Number of active subscriptions by kind (change, query, actuation).",
		}, []string{"kind"}),
		updateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "databroker",
			Subsystem: "facade",
			Name:      "update_entries_seconds",
			Help:      "Latency of UpdateEntries batches including the notification round.",
			Buckets:   prometheus.DefBuckets,
		}),
		actuationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "databroker",
			Subsystem: "facade",
			Name:      "actuate_seconds",
			Help:      "Latency of Actuate calls including provider transmission.",
			Buckets:   prometheus.DefBuckets,
		}),
		actuationOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "databroker",
			Subsystem: "facade",
			Name:      "actuate_outcomes_total",
			Help:      "Count of Actuate calls by outcome (ok, error code).",
		}, []string{"outcome"}),
		droppedChangeFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "databroker",
			Subsystem: "subscription",
			Name:      "change_frames_dropped_total",
			Help:      "Count of change-subscription frames dropped because a consumer lagged.",
		}),
	}
}

// SetRegisteredEntries records the current entry count. Safe to call on a
// nil receiver (metrics disabled).
func (m *DomainMetrics) SetRegisteredEntries(n int) {
	if m == nil {
		return
	}
	m.registeredEntries.Set(float64(n))
}

// SetActiveSubscriptions records the current subscription count for kind
// ("change", "query", "actuation"). Safe to call on a nil receiver.
func (m *DomainMetrics) SetActiveSubscriptions(kind string, n int) {
	if m == nil {
		return
	}
	m.activeSubscriptions.WithLabelValues(kind).Set(float64(n))
}

// ObserveUpdateLatency records how long a single UpdateEntries batch took.
func (m *DomainMetrics) ObserveUpdateLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.updateLatency.Observe(d.Seconds())
}

// ObserveActuateLatency records how long a single Actuate call took.
func (m *DomainMetrics) ObserveActuateLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.actuationLatency.Observe(d.Seconds())
}

// IncActuateOutcome increments the actuation outcome counter for outcome
// (e.g. "ok", "wrong_type", "provider_not_available").
func (m *DomainMetrics) IncActuateOutcome(outcome string) {
	if m == nil {
		return
	}
	m.actuationOutcomes.WithLabelValues(outcome).Inc()
}

// IncDroppedChangeFrame records one lossy-dropped change-subscription
// frame (spec.md §4.6 "newest wins" backpressure).
func (m *DomainMetrics) IncDroppedChangeFrame() {
	if m == nil {
		return
	}
	m.droppedChangeFrames.Inc()
}
