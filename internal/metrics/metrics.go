package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RelayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airelay_relay_requests_total",
			Help: "Total number of relay requests processed",
		},
		[]string{"endpoint_id", "provider_type", "model", "status"},
	)

	RelayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "airelay_relay_duration_seconds",
			Help:    "Relay request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"endpoint_id", "provider_type", "model"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airelay_upstream_errors_total",
			Help: "Total number of upstream provider errors",
		},
		[]string{"provider_type", "error_type"},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "airelay_active_streams",
			Help: "Number of relay streams currently open",
		},
	)

	CatalogSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airelay_catalog_syncs_total",
			Help: "Total number of model catalog sync runs",
		},
		[]string{"endpoint_id", "status"},
	)

	CatalogModelsFound = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "airelay_catalog_models_found",
			Help: "Models reported by the provider during the last sync",
		},
		[]string{"endpoint_id"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airelay_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint_id"},
	)
)

func RecordRelay(endpointID, providerType, model, status string, durationSec float64) {
	RelayRequestsTotal.WithLabelValues(endpointID, providerType, model, status).Inc()
	RelayDuration.WithLabelValues(endpointID, providerType, model).Observe(durationSec)
}

func RecordUpstreamError(providerType, errorType string) {
	UpstreamErrors.WithLabelValues(providerType, errorType).Inc()
}

func RecordCatalogSync(endpointID, status string, modelsFound int) {
	CatalogSyncsTotal.WithLabelValues(endpointID, status).Inc()
	if status == "ok" {
		CatalogModelsFound.WithLabelValues(endpointID).Set(float64(modelsFound))
	}
}

func RecordRateLimitHit(endpointID string) {
	RateLimitHits.WithLabelValues(endpointID).Inc()
}

func IncrementActiveStreams() {
	ActiveStreams.Inc()
}

func DecrementActiveStreams() {
	ActiveStreams.Dec()
}
