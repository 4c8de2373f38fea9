package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Decision kinds recorded by RecordDecision.
const (
	KindRoute   = "route"
	KindFeature = "feature"
	KindGate    = "gate"
)

// Metrics wraps Prometheus metrics for the access gateway.
type Metrics struct {
	registry     *prometheus.Registry
	decisions    *prometheus.CounterVec
	sessionCache *prometheus.CounterVec
	identityLoad *prometheus.HistogramVec
}

// NewMetrics creates a metrics registry and registers access metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "access_decisions_total",
		Help: "Total number of access decisions by kind and result.",
	}, []string{"kind", "result"})

	sessionCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_cache_total",
		Help: "Session lookups by cache layer outcome.",
	}, []string{"result"})

	identityLoad := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "identity_load_seconds",
		Help:    "Latency of identity loads by source.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	registry.MustRegister(decisions, sessionCache, identityLoad)

	return &Metrics{
		registry:     registry,
		decisions:    decisions,
		sessionCache: sessionCache,
		identityLoad: identityLoad,
	}
}

// Handler exposes the metrics registry via HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDecision counts an allowed or denied decision.
func (m *Metrics) RecordDecision(kind string, allowed bool) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.decisions.WithLabelValues(kind, result).Inc()
}

// RecordSessionCache counts a session lookup outcome: hit, snapshot or miss.
func (m *Metrics) RecordSessionCache(result string) {
	if m == nil {
		return
	}
	m.sessionCache.WithLabelValues(result).Inc()
}

// ObserveIdentityLoad records how long loading an identity from source took.
func (m *Metrics) ObserveIdentityLoad(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.identityLoad.WithLabelValues(source).Observe(d.Seconds())
}
