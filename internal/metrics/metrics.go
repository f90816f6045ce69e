package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nkiryanov/authservice/internal/apperrors"
)

const namespace = "authservice"

// Auth operations
const (
	OpRegister = "register"
	OpLogin    = "login"
	OpRefresh  = "refresh"
	OpLogout   = "logout"
	OpVerify   = "verify"
)

type Metrics struct {
	AuthOperationsTotal *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// Create and register metrics in registry
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_operations_total",
				Help:      "Total number of auth operations by result",
			},
			[]string{"operation", "result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"handler", "method", "code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"handler", "method"},
		),
	}

	reg.MustRegister(m.AuthOperationsTotal, m.HTTPRequestsTotal, m.HTTPRequestDuration)

	return m
}

// Count auth operation outcome. Result is the error category, never the error text
func (m *Metrics) ObserveAuth(operation string, err error) {
	m.AuthOperationsTotal.WithLabelValues(operation, apperrors.Code(err)).Inc()
}

// Wrap handler to count requests and measure duration under 'name' label
func (m *Metrics) Instrument(name string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"handler": name}

	return promhttp.InstrumentHandlerDuration(
		m.HTTPRequestDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(m.HTTPRequestsTotal.MustCurryWith(labels), h),
	)
}

// Expose metrics gathered by gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
