package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "checkout"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// GatewayMetrics counts outbound calls to the payment gateways.
type GatewayMetrics struct {
	Calls     *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_calls_total",
		Help:      "Outbound gateway calls by gateway, operation and outcome.",
	}, []string{"gateway", "op", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_call_duration_ms",
		Help:      "Outbound gateway call latency in milliseconds.",
		Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
	}, []string{"gateway", "op"})

	reg.MustRegister(calls, latency)
	return &GatewayMetrics{Calls: calls, LatencyMS: latency}
}

// Observe is safe on a nil receiver so clients can run without metrics.
func (m *GatewayMetrics) Observe(gateway, op, outcome string, ms float64) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(gateway, op, outcome).Inc()
	m.LatencyMS.WithLabelValues(gateway, op).Observe(ms)
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
