package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API and the webhook
// delivery worker.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	webhooksSentTotal    *prometheus.CounterVec
	webhooksFailedTotal  *prometheus.CounterVec
	webhookSendDuration  *prometheus.HistogramVec
	workerInflight       prometheus.Gauge
	retryScheduledTotal  *prometheus.CounterVec
	historyRecordedTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bifrost",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bifrost",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		webhooksSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bifrost",
				Name:      "webhooks_sent_total",
				Help:      "Total number of webhook deliveries that ended in success.",
			},
			[]string{"event"},
		),
		webhooksFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bifrost",
				Name:      "webhooks_failed_total",
				Help:      "Total number of webhook logs that ended in failed state.",
			},
			[]string{"event", "reason"},
		),
		webhookSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bifrost",
				Name:      "webhook_send_duration_seconds",
				Help:      "Outbound webhook attempt duration in seconds grouped by event.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"event"},
		),
		workerInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bifrost",
				Name:      "webhook_worker_inflight",
				Help:      "Current number of in-flight webhook delivery attempts.",
			},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bifrost",
				Name:      "webhook_retry_scheduled_total",
				Help:      "Total number of webhook deliveries scheduled for retry.",
			},
			[]string{"event"},
		),
		historyRecordedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bifrost",
				Name:      "history_entries_recorded_total",
				Help:      "Total number of history entries appended grouped by target kind.",
			},
			[]string{"target"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.webhooksSentTotal,
		m.webhooksFailedTotal,
		m.webhookSendDuration,
		m.workerInflight,
		m.retryScheduledTotal,
		m.historyRecordedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncWebhookSent(event string) {
	if m == nil {
		return
	}
	m.webhooksSentTotal.WithLabelValues(normalizeLabel(event)).Inc()
}

func (m *Metrics) IncWebhookFailed(event string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := normalizeLabel(reason)
	m.webhooksFailedTotal.WithLabelValues(normalizeLabel(event), reasonLabel).Inc()
}

func (m *Metrics) ObserveWebhookSendDuration(event string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.webhookSendDuration.WithLabelValues(normalizeLabel(event)).Observe(seconds)
}

func (m *Metrics) IncWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Inc()
}

func (m *Metrics) DecWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Dec()
}

func (m *Metrics) IncRetryScheduled(event string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeLabel(event)).Inc()
}

func (m *Metrics) IncHistoryRecorded(target string) {
	if m == nil {
		return
	}
	m.historyRecordedTotal.WithLabelValues(normalizeLabel(target)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
