package middlewares

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records Prometheus metrics for every request that passes through it.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

// NewMetrics registers the client metrics with reg under namespace.
// A nil reg means prometheus.DefaultRegisterer. When the same metrics are already registered with reg,
// the registered collectors are shared, so several clients can report under one namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "swiftchain"
	}

	// requestsTotal counts total requests by method, host, and status code ("error" on failure).
	requestsTotal, err := register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_requests_total",
			Help:      "Total number of outgoing HTTP requests",
		},
		[]string{"method", "host", "status"},
	))
	if err != nil {
		return nil, err
	}

	requestDuration, err := register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "client_request_duration_seconds",
			Help:      "Outgoing HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "host"},
	))
	if err != nil {
		return nil, err
	}

	inFlight, err := register(reg, prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "client_requests_in_flight",
			Help:      "Outgoing HTTP requests currently in flight",
		},
	))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
		inFlight:        inFlight,
	}, nil
}

// register registers c with reg, or returns the collector already registered under the same descriptor.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}

	var zero T
	return zero, fmt.Errorf("middlewares: registering metrics: %w", err)
}

// Handle implements Middleware.
func (m *Metrics) Handle(req *http.Request, t Transport, next Next) (*http.Response, error) {
	m.inFlight.Inc()
	defer m.inFlight.Dec()

	start := time.Now()
	resp, err := next.Run(req, t)
	duration := time.Since(start).Seconds()

	status := "error"
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}

	m.requestsTotal.WithLabelValues(req.Method, req.URL.Host, status).Inc()
	m.requestDuration.WithLabelValues(req.Method, req.URL.Host).Observe(duration)

	return resp, err
}
