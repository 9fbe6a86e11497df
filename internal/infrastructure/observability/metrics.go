package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// Metrics holds all application metrics
type Metrics struct {
	// Checkout metrics
	ChargesTotal    *prometheus.CounterVec
	ChargeDuration  *prometheus.HistogramVec
	ReversalsTotal  *prometheus.CounterVec
	RefundsTotal    *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec
	GatewayRetries  *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec

	// Worker metrics
	WorkerMessagesProcessed  *prometheus.CounterVec
	WorkerProcessingDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		ChargesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "charges_total",
				Help:      "Total number of charge attempts by outcome",
			},
			[]string{"outcome"},
		),
		ChargeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "charge_duration_seconds",
				Help:      "End-to-end charge duration including reversal, in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		ReversalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reversals_total",
				Help:      "Total number of reversal attempts by outcome",
			},
			[]string{"outcome"},
		),
		RefundsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refunds_total",
				Help:      "Total number of refund attempts by outcome",
			},
			[]string{"outcome"},
		),
		GatewayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_request_duration_seconds",
				Help:      "Gateway call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		GatewayRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_retries_total",
				Help:      "Total number of retried gateway calls",
			},
			[]string{"operation"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		WorkerMessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_messages_processed_total",
				Help:      "Total number of worker messages processed",
			},
			[]string{"stream", "status"},
		),
		WorkerProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_processing_duration_seconds",
				Help:      "Worker message processing duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stream"},
		),
	}

	reg.MustRegister(
		m.ChargesTotal,
		m.ChargeDuration,
		m.ReversalsTotal,
		m.RefundsTotal,
		m.GatewayDuration,
		m.GatewayRetries,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.WorkerMessagesProcessed,
		m.WorkerProcessingDuration,
	)

	return m
}

// RecordBreakerState is shaped to plug into gateway.BreakerSettings.OnStateChange.
func (m *Metrics) RecordBreakerState(operation string, _, to gobreaker.State) {
	m.CircuitBreakerState.WithLabelValues("gateway_" + operation).Set(breakerStateValue(to))
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
