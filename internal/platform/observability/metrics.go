package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the Prometheus registry exposed on /metrics.
type Metrics struct {
	registry        *prometheus.Registry
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ordersCreated   *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	sweptUploads    prometheus.Counter
}

// NewMetrics registers HTTP and domain collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders created, by kind",
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Customer notifications dispatched, by channel and outcome",
		}, []string{"channel", "outcome"}),
		sweptUploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uploads_swept_total",
			Help: "Stale temporary uploads deleted by the sweeper",
		}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTotal,
		m.requestDuration,
		m.ordersCreated,
		m.notifications,
		m.sweptUploads,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency keyed by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := newResponseRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r)
		route := routePattern(r)
		m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.Status())).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// OrderCreated counts a created order.
func (m *Metrics) OrderCreated(kind string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(kind).Inc()
}

// NotificationDispatched counts a dispatch attempt.
func (m *Metrics) NotificationDispatched(channel string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.notifications.WithLabelValues(channel, outcome).Inc()
}

// UploadsSwept adds n to the swept uploads counter.
func (m *Metrics) UploadsSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptUploads.Add(float64(n))
}
