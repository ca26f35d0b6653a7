package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictgate_predictions_total",
			Help: "Total number of prediction requests by terminal outcome",
		},
		[]string{"agent", "outcome"},
	)

	predictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "predictgate_prediction_duration_seconds",
			Help:    "End-to-end generation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"agent"},
	)

	activeGenerations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "predictgate_active_generations",
			Help: "Number of generations currently in flight",
		},
	)

	// Provider metrics
	providerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictgate_provider_calls_total",
			Help: "Total number of upstream model provider calls",
		},
		[]string{"provider", "status"},
	)

	providerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "predictgate_provider_call_duration_seconds",
			Help:    "Upstream model provider call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	providerTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictgate_provider_tokens_total",
			Help: "Total tokens consumed by upstream provider calls",
		},
		[]string{"provider", "direction"},
	)

	// Quota metrics
	quotaRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "predictgate_quota_rejections_total",
			Help: "Total number of submissions rejected at quota admission",
		},
	)

	// Event bus metrics
	busEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictgate_bus_events_published_total",
			Help: "Total number of events published per topic",
		},
		[]string{"topic"},
	)

	busEventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictgate_bus_events_dropped_total",
			Help: "Total number of events dropped for slow subscribers per topic",
		},
		[]string{"topic"},
	)

	initOnce sync.Once
)

// InitMetrics registers all Prometheus metrics
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			predictionsTotal,
			predictionDuration,
			activeGenerations,
			providerCallsTotal,
			providerCallDuration,
			providerTokensTotal,
			quotaRejectionsTotal,
			busEventsPublished,
			busEventsDropped,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordPrediction records a terminal pipeline outcome
// ("completed", "failed", "rejected_quota", "rejected_validation")
func RecordPrediction(agent, outcome string) {
	predictionsTotal.WithLabelValues(agent, outcome).Inc()
}

// RecordPredictionDuration records the generation duration for an agent
func RecordPredictionDuration(agent string, duration time.Duration) {
	predictionDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// GenerationStarted increments the in-flight generation gauge
func GenerationStarted() {
	activeGenerations.Inc()
}

// GenerationFinished decrements the in-flight generation gauge
func GenerationFinished() {
	activeGenerations.Dec()
}

// RecordProviderCall records a provider call outcome and duration
func RecordProviderCall(provider, status string, duration time.Duration) {
	providerCallsTotal.WithLabelValues(provider, status).Inc()
	providerCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordProviderTokens records token usage for a provider call
func RecordProviderTokens(provider string, inputTokens, outputTokens int64) {
	providerTokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	providerTokensTotal.WithLabelValues(provider, "output").Add(float64(outputTokens))
}

// RecordQuotaRejection records a submission rejected at admission
func RecordQuotaRejection() {
	quotaRejectionsTotal.Inc()
}

// RecordBusPublish records an event published to a topic
func RecordBusPublish(topic string) {
	busEventsPublished.WithLabelValues(topic).Inc()
}

// RecordBusDrop records an event dropped for a slow subscriber
func RecordBusDrop(topic string) {
	busEventsDropped.WithLabelValues(topic).Inc()
}
