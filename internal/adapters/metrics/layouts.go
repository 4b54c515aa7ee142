package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"quotelayout/internal/domain"
)

// LayoutMetrics records layout resolution, caching and rendering. It
// satisfies the selector's Observer, the cache's CacheRecorder and the quote
// service's RenderRecorder.
type LayoutMetrics struct {
	Resolutions      *prometheus.CounterVec
	Failures         *prometheus.CounterVec
	DegradedLookups  *prometheus.CounterVec
	CacheRequests    *prometheus.CounterVec
	RenderDuration   prometheus.Histogram
	BreakerState     *prometheus.GaugeVec
	BreakerTransfers *prometheus.CounterVec
}

// NewLayoutMetrics creates and registers layout metrics on the given registry.
func NewLayoutMetrics(reg prometheus.Registerer) *LayoutMetrics {
	m := &LayoutMetrics{
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Layouts resolved, by source.",
		}, []string{"source"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolution_failures_total",
			Help:      "Resolutions that found no layout, by reason.",
		}, []string{"reason"}),
		DegradedLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_lookups_total",
			Help:      "Optional lookups that failed and were treated as absent, by step.",
		}, []string{"step"}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Layout cache lookups, by layer and result.",
		}, []string{"layer", "result"}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering a layout.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"component"}),
		BreakerTransfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Circuit breaker state transitions by component and new state.",
		}, []string{"component", "state"}),
	}

	reg.MustRegister(m.Resolutions, m.Failures, m.DegradedLookups, m.CacheRequests, m.RenderDuration, m.BreakerState, m.BreakerTransfers)
	return m
}

func (m *LayoutMetrics) Resolved(source domain.LayoutSource) {
	m.Resolutions.WithLabelValues(string(source)).Inc()
}

func (m *LayoutMetrics) Failed(reason string) {
	m.Failures.WithLabelValues(reason).Inc()
}

func (m *LayoutMetrics) Degraded(step string) {
	m.DegradedLookups.WithLabelValues(step).Inc()
}

func (m *LayoutMetrics) CacheRequest(layer, result string) {
	m.CacheRequests.WithLabelValues(layer, result).Inc()
}

func (m *LayoutMetrics) ObserveRender(d time.Duration) {
	m.RenderDuration.Observe(d.Seconds())
}

// BreakerStateChanged has the shape of the resilient package's state hook.
func (m *LayoutMetrics) BreakerStateChanged(name string, _, to gobreaker.State) {
	m.BreakerTransfers.WithLabelValues(name, to.String()).Inc()
	m.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
