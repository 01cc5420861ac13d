package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its own registry so tests can build as many as they like.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	socketConnections  *prometheus.GaugeVec
	socketEvents       *prometheus.CounterVec
	messagesSent       prometheus.Counter
	notifications      *prometheus.CounterVec
	pushDeliveries     *prometheus.CounterVec
	backgroundFailures *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		socketConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Open websocket connections per namespace.",
		}, []string{"namespace"}),
		socketEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_events_total",
			Help: "Client events handled per namespace, event and outcome.",
		}, []string{"namespace", "event", "outcome"}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Chat messages persisted.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "In-app notifications persisted per module.",
		}, []string{"module"}),
		pushDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "push_deliveries_total",
			Help: "Push delivery attempts per result.",
		}, []string{"result"}),
		backgroundFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "background_task_failures_total",
			Help: "Best-effort tasks that failed.",
		}, []string{"task"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.socketConnections,
		m.socketEvents,
		m.messagesSent,
		m.notifications,
		m.pushDeliveries,
		m.backgroundFailures,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) SocketConnected(namespace string) {
	if m == nil {
		return
	}
	m.socketConnections.WithLabelValues(namespace).Inc()
}

func (m *Metrics) SocketDisconnected(namespace string) {
	if m == nil {
		return
	}
	m.socketConnections.WithLabelValues(namespace).Dec()
}

func (m *Metrics) SocketEvent(namespace, event string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.socketEvents.WithLabelValues(namespace, event, outcome).Inc()
}

func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

func (m *Metrics) NotificationCreated(module string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(module).Inc()
}

func (m *Metrics) PushDelivered(success, failure int) {
	if m == nil {
		return
	}
	m.pushDeliveries.WithLabelValues("success").Add(float64(success))
	m.pushDeliveries.WithLabelValues("failure").Add(float64(failure))
}

// BackgroundFailure matches background.FailureFunc.
func (m *Metrics) BackgroundFailure(name string, _ error) {
	if m == nil {
		return
	}
	m.backgroundFailures.WithLabelValues(name).Inc()
}
