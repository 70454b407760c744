package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vulnverified/nophish/internal/engine"
)

const metricsNamespace = "nophish"

// Metrics holds the analysis Prometheus metrics on a private registry.
type Metrics struct {
	AnalysesTotal     *prometheus.CounterVec
	AnalysisDuration  prometheus.Histogram
	CollectorFailures *prometheus.CounterVec
	TruncatedTotal    prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics registers the metrics on a fresh registry together with the Go
// and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		AnalysesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "analyses_total",
			Help:      "Analyses run, by terminal state",
		}, []string{"state"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of one analysis",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		CollectorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "collector_failures_total",
			Help:      "Evidence collectors that returned degraded output",
		}, []string{"collector"}),
		TruncatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "evidence_truncated_total",
			Help:      "Analyses whose evidence exceeded the token ceiling",
		}),
		registry: reg,
	}
}

// Observe records a finished report.
func (m *Metrics) Observe(report *engine.Report) {
	if report == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(string(report.State)).Inc()
	m.AnalysisDuration.Observe(report.DurationSecs)
	if report.Truncated {
		m.TruncatedTotal.Inc()
	}

	ev := report.Evidence
	if len(ev.DNS) == 0 {
		m.CollectorFailures.WithLabelValues("dns").Inc()
	}
	if ev.TLS.Certificate == nil {
		m.CollectorFailures.WithLabelValues("tls").Inc()
	}
	if ev.WHOIS.ErrorMessage != "" {
		m.CollectorFailures.WithLabelValues("whois").Inc()
	}
	if ev.Page == nil {
		m.CollectorFailures.WithLabelValues("page").Inc()
	}
}

// Handler returns the /metrics handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
