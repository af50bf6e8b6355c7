package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ragline/ragline/internal/core/domain"
)

// MeterMetrics is the cost and latency accounting view the metering worker
// exports. Counters are the atomic aggregation point for attempt records
// arriving from concurrent answer pipelines.
type MeterMetrics struct {
	registry *prometheus.Registry

	attemptsTotal  *prometheus.CounterVec
	attemptLatency *prometheus.HistogramVec
	costTotal      *prometheus.CounterVec
	tokensTotal    *prometheus.CounterVec
	recordLag      *prometheus.HistogramVec
}

func NewMeterMetrics(service string) *MeterMetrics {
	registry := prometheus.NewRegistry()

	attemptsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Subsystem: "meter",
			Name:      "attempts_total",
			Help:      "Total generation attempts by provider, model and outcome.",
		},
		[]string{"service", "provider", "model", "outcome"},
	)
	attemptLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragline",
			Subsystem: "meter",
			Name:      "attempt_latency_seconds",
			Help:      "Provider call latency in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "provider", "outcome"},
	)
	costTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Subsystem: "meter",
			Name:      "cost_total",
			Help:      "Accumulated generation spend by tenant and provider.",
		},
		[]string{"service", "tenant", "provider"},
	)
	tokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Subsystem: "meter",
			Name:      "tokens_total",
			Help:      "Token usage by direction and model.",
		},
		[]string{"service", "direction", "model"},
	)
	recordLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragline",
			Subsystem: "meter",
			Name:      "record_lag_seconds",
			Help:      "Delay between attempt creation and its accounting here.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"service"},
	)

	registry.MustRegister(attemptsTotal, attemptLatency, costTotal, tokensTotal, recordLag)

	return &MeterMetrics{
		registry:       registry,
		attemptsTotal:  attemptsTotal,
		attemptLatency: attemptLatency,
		costTotal:      costTotal,
		tokensTotal:    tokensTotal,
		recordLag:      recordLag,
	}
}

func (m *MeterMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MeterMetrics) ObserveAttempt(service string, record domain.AttemptRecord) {
	outcome := string(record.Outcome)
	if outcome == "" {
		outcome = "unknown"
	}

	m.attemptsTotal.WithLabelValues(service, record.Provider, record.Model, outcome).Inc()
	m.attemptLatency.WithLabelValues(service, record.Provider, outcome).Observe(float64(record.LatencyMS) / 1000.0)

	if record.Cost > 0 {
		m.costTotal.WithLabelValues(service, record.TenantID, record.Provider).Add(record.Cost)
	}
	if record.PromptTokens > 0 {
		m.tokensTotal.WithLabelValues(service, "in", record.Model).Add(float64(record.PromptTokens))
	}
	if record.OutputTokens > 0 {
		m.tokensTotal.WithLabelValues(service, "out", record.Model).Add(float64(record.OutputTokens))
	}
	if !record.CreatedAt.IsZero() {
		if lag := time.Since(record.CreatedAt); lag >= 0 {
			m.recordLag.WithLabelValues(service).Observe(lag.Seconds())
		}
	}
}
