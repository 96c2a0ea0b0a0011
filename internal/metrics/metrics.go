package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec

	checkouts            *prometheus.CounterVec
	notificationFailures prometheus.Counter
	deliveries           *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewServerMetrics registers the collectors on a fresh registry. Every
// storefront series carries service as a constant label.
func NewServerMetrics(service string) *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		ConstLabels: prometheus.Labels{"service": service},
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		ConstLabels: prometheus.Labels{"service": service},
		Name:        "http_request_duration_ms",
		Help:        "HTTP request latency in milliseconds.",
		Buckets:     []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		ConstLabels: prometheus.Labels{"service": service},
		Name:        "checkouts_total",
		Help:        "Checkout attempts by outcome.",
	}, []string{"outcome"})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		ConstLabels: prometheus.Labels{"service": service},
		Name:        "notification_failures_total",
		Help:        "Order confirmations that could not be dispatched after commit.",
	})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		ConstLabels: prometheus.Labels{"service": service},
		Name:        "confirmation_deliveries_total",
		Help:        "Confirmation emails handed to the mail server, by result.",
	}, []string{"result"})

	reg.MustRegister(requests, latency, checkouts, failures, deliveries)
	return &ServerMetrics{
		Requests:             requests,
		LatencyMS:            latency,
		checkouts:            checkouts,
		notificationFailures: failures,
		deliveries:           deliveries,
		gatherer:             reg,
	}
}

func (m *ServerMetrics) CheckoutCompleted(outcome string) {
	m.checkouts.WithLabelValues(outcome).Inc()
}

func (m *ServerMetrics) NotificationFailed() {
	m.notificationFailures.Inc()
}

func (m *ServerMetrics) DeliveryCompleted(err error) {
	if err != nil {
		m.deliveries.WithLabelValues("error").Inc()
		return
	}
	m.deliveries.WithLabelValues("sent").Inc()
}

func (m *ServerMetrics) ObserveRequest(handler string, status int, elapsed time.Duration) {
	m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(float64(elapsed.Milliseconds()))
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
