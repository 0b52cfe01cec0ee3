package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "enterprise_access"

// Metrics exposes Prometheus collectors for redemption activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer       prometheus.Gatherer
	evaluations    *prometheus.CounterVec
	reasons        *prometheus.CounterVec
	redemptions    *prometheus.CounterVec
	upstreamErrors *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns the metrics registered with the global Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNew(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	})
	return shared
}

// MustNew registers the collectors with reg. Registration errors panic, like promauto.
func MustNew(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: gatherer,
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redemption",
			Name:      "evaluations_total",
			Help:      "Content keys evaluated for redeemability, by outcome.",
		}, []string{"outcome"}),
		reasons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redemption",
			Name:      "reasons_total",
			Help:      "Reasons returned for non-redeemable content, by reason code.",
		}, []string{"reason"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redemption",
			Name:      "redemptions_total",
			Help:      "Redemption attempts, by status and idempotency key kind.",
		}, []string{"status", "key"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Failed calls to upstream services.",
		}, []string{"service"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.evaluations, m.reasons, m.redemptions, m.upstreamErrors, m.httpDuration)
	return m
}

// Handler serves the gathered metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveEvaluation(outcome string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveReason(code string) {
	if m == nil {
		return
	}
	m.reasons.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveRedemption(status, keyKind string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(status, keyKind).Inc()
}

func (m *Metrics) ObserveUpstreamError(service string) {
	if m == nil {
		return
	}
	m.upstreamErrors.WithLabelValues(service).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, http.StatusText(status)).Observe(elapsed.Seconds())
}
