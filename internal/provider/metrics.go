package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instrumentation for outbound provider calls.
type Metrics struct {
	Latency *prometheus.HistogramVec
	Calls   *prometheus.CounterVec
	Retries *prometheus.CounterVec
}

// NewMetrics registers the provider metrics under the given namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "consultd"
	}
	return &Metrics{
		Latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "request_duration_seconds",
				Help:      "Duration of chat-completion calls to provider backends.",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"model", "status"},
		),
		Calls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "requests_total",
				Help:      "Total chat-completion requests by model and outcome.",
			},
			[]string{"model", "status"},
		),
		Retries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "retries_total",
				Help:      "Total retry attempts made against provider backends.",
			},
			[]string{"model"},
		),
	}
}
