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

// Metrics stores Prometheus collectors for the delivery engine and the HTTP
// surface. A nil receiver is a no-op so callers never have to guard.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	deliveredTotal        *prometheus.CounterVec
	deliveryFailedTotal   *prometheus.CounterVec
	deliveryDuration      *prometheus.HistogramVec
	retryScheduledTotal   *prometheus.CounterVec
	queueDepth            *prometheus.GaugeVec
	analyticsEventsTotal  *prometheus.CounterVec
	analyticsFlushesTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notifyd",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notifyd",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notifyd",
				Name:      "notifications_delivered_total",
				Help:      "Total number of notifications presented successfully by channel.",
			},
			[]string{"channel"},
		),
		deliveryFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notifyd",
				Name:      "notifications_failed_total",
				Help:      "Total number of delivery failures by channel and reason.",
			},
			[]string{"channel", "reason"},
		),
		deliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notifyd",
				Name:      "notification_delivery_duration_seconds",
				Help:      "Delivery duration in seconds grouped by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notifyd",
				Name:      "retry_scheduled_total",
				Help:      "Total number of deliveries kept in the queue for another sweep.",
			},
			[]string{"channel"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "notifyd",
				Name:      "queue_depth",
				Help:      "Current queue depth by state (pending or failed).",
			},
			[]string{"state"},
		),
		analyticsEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notifyd",
				Name:      "analytics_events_total",
				Help:      "Total number of lifecycle events recorded by event name.",
			},
			[]string{"event"},
		),
		analyticsFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notifyd",
				Name:      "analytics_flushes_total",
				Help:      "Total number of analytics batch flushes by outcome.",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliveredTotal,
		m.deliveryFailedTotal,
		m.deliveryDuration,
		m.retryScheduledTotal,
		m.queueDepth,
		m.analyticsEventsTotal,
		m.analyticsFlushesTotal,
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

func (m *Metrics) IncDelivered(channel string) {
	if m == nil {
		return
	}
	m.deliveredTotal.WithLabelValues(normalizeChannel(channel)).Inc()
}

func (m *Metrics) IncDeliveryFailed(channel string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.deliveryFailedTotal.WithLabelValues(normalizeChannel(channel), reasonLabel).Inc()
}

func (m *Metrics) ObserveDeliveryDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.deliveryDuration.WithLabelValues(normalizeChannel(channel)).Observe(seconds)
}

func (m *Metrics) IncRetryScheduled(channel string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeChannel(channel)).Inc()
}

func (m *Metrics) SetQueueDepth(pending, failed int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues("pending").Set(float64(pending))
	m.queueDepth.WithLabelValues("failed").Set(float64(failed))
}

func (m *Metrics) IncAnalyticsEvent(event string) {
	if m == nil {
		return
	}
	label := strings.TrimSpace(strings.ToLower(event))
	if label == "" {
		label = "unknown"
	}
	m.analyticsEventsTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) IncAnalyticsFlush(outcome string) {
	if m == nil {
		return
	}
	label := strings.TrimSpace(strings.ToLower(outcome))
	if label == "" {
		label = "unknown"
	}
	m.analyticsFlushesTotal.WithLabelValues(label).Inc()
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

func normalizeChannel(channel string) string {
	normalized := strings.ToLower(strings.TrimSpace(channel))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
