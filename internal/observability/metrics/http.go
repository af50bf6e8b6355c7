package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	answersTotal         *prometheus.CounterVec
	answerDegradedTotal  *prometheus.CounterVec
	answerTruncatedTotal *prometheus.CounterVec
	answerDuration       *prometheus.HistogramVec
	answerCitations      *prometheus.HistogramVec
	answerCost           *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragline",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragline",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	answersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Subsystem: "answer",
			Name:      "requests_total",
			Help:      "Total answer requests by outcome.",
		},
		[]string{"service", "outcome"},
	)
	answerDegradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Subsystem: "answer",
			Name:      "degraded_total",
			Help:      "Total answers produced on a reduced-quality path.",
		},
		[]string{"service"},
	)
	answerTruncatedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Subsystem: "answer",
			Name:      "context_truncated_total",
			Help:      "Total answers whose prompt lost passage text to the token budget.",
		},
		[]string{"service"},
	)
	answerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragline",
			Subsystem: "answer",
			Name:      "duration_seconds",
			Help:      "End-to-end answer pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	answerCitations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragline",
			Subsystem: "answer",
			Name:      "citations",
			Help:      "Distribution of citations bound per successful answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service"},
	)
	answerCost := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragline",
			Subsystem: "answer",
			Name:      "cost_total",
			Help:      "Accumulated generation spend by provider.",
		},
		[]string{"service", "provider"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		answersTotal,
		answerDegradedTotal,
		answerTruncatedTotal,
		answerDuration,
		answerCitations,
		answerCost,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		answersTotal:         answersTotal,
		answerDegradedTotal:  answerDegradedTotal,
		answerTruncatedTotal: answerTruncatedTotal,
		answerDuration:       answerDuration,
		answerCitations:      answerCitations,
		answerCost:           answerCost,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &metricsRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// RecordAnswer accounts one completed answer request. Outcome is "ok" for a
// returned result and the error kind's short name otherwise.
func (m *HTTPServerMetrics) RecordAnswer(service, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.answersTotal.WithLabelValues(service, outcome).Inc()
	m.answerDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordAnswerQuality(service, provider string, citations int, cost float64, degraded, truncated bool) {
	m.answerCitations.WithLabelValues(service).Observe(float64(citations))
	if provider != "" && cost > 0 {
		m.answerCost.WithLabelValues(service, provider).Add(cost)
	}
	if degraded {
		m.answerDegradedTotal.WithLabelValues(service).Inc()
	}
	if truncated {
		m.answerTruncatedTotal.WithLabelValues(service).Inc()
	}
}

type metricsRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *metricsRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *metricsRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *metricsRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *metricsRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
