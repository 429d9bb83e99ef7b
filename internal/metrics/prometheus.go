// Package metrics exposes the detector's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"botnet-detector/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Inference metrics
	Classifications  *prometheus.CounterVec
	EncoderFallbacks *prometheus.CounterVec
	ClassifyDuration prometheus.Histogram

	// Bundle metrics
	BundleReloads *prometheus.CounterVec
	BundleInfo    *prometheus.GaugeVec

	// Alert metrics
	AlertCounter *prometheus.CounterVec
}

// CreateCustomRegistry returns a registry with the Go, process and build
// info collectors.
func CreateCustomRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(versioncollector.NewCollector("botnet_detector"))

	return registry
}

// NewPrometheusMetrics registers the detector metrics on a fresh custom
// registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := CreateCustomRegistry()
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		registry: registry,
		Classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botnet_classifications_total",
			Help: "Classification requests by outcome status and result",
		}, []string{"status", "result"}),
		EncoderFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botnet_encoder_fallback_total",
			Help: "Categorical values encoded with the sentinel code because they were unseen in training",
		}, []string{"feature"}),
		ClassifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "botnet_classify_duration_seconds",
			Help:    "Time spent classifying one record",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
		BundleReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botnet_bundle_reloads_total",
			Help: "Artifact bundle reload attempts by outcome",
		}, []string{"outcome"}),
		BundleInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "botnet_bundle_info",
			Help: "The artifact bundle in service (value is always 1)",
		}, []string{"run_id", "algorithm"}),
		AlertCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botnet_alerts_total",
			Help: "Alerts emitted for attack verdicts",
		}, []string{"severity"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordVerdict counts one classification and its sentinel fallbacks.
func (m *PrometheusMetrics) RecordVerdict(v model.Verdict, elapsed time.Duration) {
	m.Classifications.WithLabelValues(string(v.Status), v.Result).Inc()
	for _, f := range v.Fallbacks {
		m.EncoderFallbacks.WithLabelValues(f).Inc()
	}
	m.ClassifyDuration.Observe(elapsed.Seconds())
}

// RecordReload counts a reload attempt and, on success, publishes the new
// bundle identity.
func (m *PrometheusMetrics) RecordReload(runID, algorithm string, err error) {
	if err != nil {
		m.BundleReloads.WithLabelValues("failure").Inc()
		return
	}
	m.BundleReloads.WithLabelValues("success").Inc()
	m.BundleInfo.Reset()
	m.BundleInfo.WithLabelValues(runID, algorithm).Set(1)
}
