package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "mcpbridge_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "bridge"},
		},
		[]string{"date", "sha", "version"},
	)

	bridgeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpbridge_requests_total",
			Help: "Number of forwarded MCP messages",
		},
		[]string{"transport", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcpbridge_request_duration_seconds",
			Help:    "Duration of one forwarded MCP message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	llmRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpbridge_llm_requests_total",
			Help: "Number of forwarded LLM chat requests",
		},
		[]string{"outcome"},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, bridgeRequests, requestDuration, llmRequests)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// RecordBridgeRequest increments the forwarded message counter.
func RecordBridgeRequest(transport string, success bool) {
	bridgeRequests.WithLabelValues(transport, outcome(success)).Inc()
}

// ObserveRequestDuration records the duration of one forwarded message.
func ObserveRequestDuration(transport string, d time.Duration) {
	requestDuration.WithLabelValues(transport).Observe(d.Seconds())
}

// RecordLLMRequest increments the LLM chat request counter.
func RecordLLMRequest(success bool) {
	llmRequests.WithLabelValues(outcome(success)).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
