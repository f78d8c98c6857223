package host

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/product-engine/generic"
)

// Metrics counts hook invocations and their outcomes on a dedicated
// registry so several runners (tests) never collide.
type Metrics struct {
	Registry *prometheus.Registry

	hookInvocations *prometheus.CounterVec
	hookRejections  *prometheus.CounterVec
	hookErrors      *prometheus.CounterVec
	hookDuration    *prometheus.HistogramVec
	postings        *prometheus.CounterVec
	scheduledEvents *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		hookInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "product_engine",
			Name:      "hook_invocations_total",
			Help:      "Hook invocations by product and hook.",
		}, []string{"product", "hook"}),
		hookRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "product_engine",
			Name:      "hook_rejections_total",
			Help:      "Rejection directives by product, hook and reason.",
		}, []string{"product", "hook", "reason"}),
		hookErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "product_engine",
			Name:      "hook_errors_total",
			Help:      "Hook invocations that failed with an error.",
		}, []string{"product", "hook"}),
		hookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "product_engine",
			Name:      "hook_duration_seconds",
			Help:      "Time spent inside product hooks.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}, []string{"product", "hook"}),
		postings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "product_engine",
			Name:      "postings_committed_total",
			Help:      "Posting legs committed by product.",
		}, []string{"product"}),
		scheduledEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "product_engine",
			Name:      "scheduled_events_total",
			Help:      "Scheduled events run by product, event and outcome.",
		}, []string{"product", "event", "outcome"}),
	}
	m.Registry.MustRegister(
		m.hookInvocations,
		m.hookRejections,
		m.hookErrors,
		m.hookDuration,
		m.postings,
		m.scheduledEvents,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeHook(product generic.ProductID, key generic.HookKey, took time.Duration, d *generic.Directives, err error) {
	labels := prometheus.Labels{"product": string(product), "hook": string(key.Hook)}
	m.hookInvocations.With(labels).Inc()
	m.hookDuration.With(labels).Observe(took.Seconds())
	if err != nil {
		m.hookErrors.With(labels).Inc()
		return
	}
	if d != nil && d.Rejection != nil {
		m.hookRejections.WithLabelValues(string(product), string(key.Hook), string(d.Rejection.Reason)).Inc()
	}
}

func (m *Metrics) addPostings(product generic.ProductID, n int) {
	m.postings.WithLabelValues(string(product)).Add(float64(n))
}

func (m *Metrics) observeEvent(product generic.ProductID, event generic.EventType, outcome string) {
	m.scheduledEvents.WithLabelValues(string(product), string(event), outcome).Inc()
}
