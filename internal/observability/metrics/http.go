package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pha"

type HTTPServerMetrics struct {
	service  string
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	chatIntentsTotal    *prometheus.CounterVec
	analysesSubmitted   *prometheus.CounterVec
	wsConnections       prometheus.Gauge
	wsEventsTotal       *prometheus.CounterVec
	wsDroppedClients    prometheus.Counter
	rateLimitedRequests *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: constLabels,
		},
	)
	chatIntentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "intents_total",
			Help:      "Answered chat messages by detected intent.",
		},
		[]string{"service", "intent"},
	)
	analysesSubmitted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "submitted_total",
			Help:      "Analysis submissions by outcome.",
		},
		[]string{"service", "status"},
	)
	wsConnections := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "ws",
			Name:        "connections",
			Help:        "Open websocket connections.",
			ConstLabels: constLabels,
		},
	)
	wsEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "events_total",
			Help:      "Websocket events received by name.",
		},
		[]string{"service", "event"},
	)
	wsDroppedClients := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "ws",
			Name:        "dropped_clients_total",
			Help:        "Websocket clients dropped because their send buffer was full.",
			ConstLabels: constLabels,
		},
	)
	rateLimitedRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rejected_requests_total",
			Help:      "Requests rejected by traffic control by reason.",
		},
		[]string{"service", "reason"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		chatIntentsTotal,
		analysesSubmitted,
		wsConnections,
		wsEventsTotal,
		wsDroppedClients,
		rateLimitedRequests,
	)

	return &HTTPServerMetrics{
		service:             service,
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		chatIntentsTotal:    chatIntentsTotal,
		analysesSubmitted:   analysesSubmitted,
		wsConnections:       wsConnections,
		wsEventsTotal:       wsEventsTotal,
		wsDroppedClients:    wsDroppedClients,
		rateLimitedRequests: rateLimitedRequests,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware labels requests by chi route pattern when routed, else by a
// normalized path.
func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		path := routePattern(r)
		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath collapses id segments to keep label cardinality bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/analysis/"):
		return "/api/analysis/{id}"
	case strings.HasPrefix(path, "/api/chat/"):
		return "/api/chat/{chatId}"
	case strings.HasPrefix(path, "/uploads/"):
		return "/uploads/*"
	default:
		return path
	}
}

// ObserveIntent counts one answered chat message.
func (m *HTTPServerMetrics) ObserveIntent(intent string) {
	if intent == "" {
		intent = "unknown"
	}
	m.chatIntentsTotal.WithLabelValues(m.service, intent).Inc()
}

func (m *HTTPServerMetrics) RecordSubmission(err error) {
	status := "accepted"
	if err != nil {
		status = "error"
	}
	m.analysesSubmitted.WithLabelValues(m.service, status).Inc()
}

func (m *HTTPServerMetrics) ConnectionOpened() {
	m.wsConnections.Inc()
}

func (m *HTTPServerMetrics) ConnectionClosed() {
	m.wsConnections.Dec()
}

func (m *HTTPServerMetrics) ObserveEvent(event string) {
	m.wsEventsTotal.WithLabelValues(m.service, event).Inc()
}

func (m *HTTPServerMetrics) ClientDropped() {
	m.wsDroppedClients.Inc()
}

func (m *HTTPServerMetrics) RecordRejected(reason string) {
	m.rateLimitedRequests.WithLabelValues(m.service, reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

// Hijack is required for websocket upgrades behind the middleware.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
