// Package observability provides Prometheus metrics for the SolidFire
// block device driver.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// namespace is the Prometheus metric namespace prefix for all driver metrics.
	namespace = "solidfire_block"
)

// Metrics holds all Prometheus metrics for the driver.
type Metrics struct {
	registry *prometheus.Registry

	// Volume lifecycle metrics
	volumeOpsTotal    *prometheus.CounterVec
	volumeOpsDuration *prometheus.HistogramVec

	// iSCSI session metrics
	loginsTotal    *prometheus.CounterVec
	loginDuration  prometheus.Histogram
	sessionsActive prometheus.Gauge

	// Cluster API metrics
	clusterCallsTotal *prometheus.CounterVec

	// Bootstrap metrics
	initiatorsRegisteredTotal prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
// Uses a custom registry to avoid panics on driver restart (not DefaultRegistry).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		volumeOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "volume_operations_total",
				Help:      "Total number of volume operations by type and status",
			},
			[]string{"operation", "status"},
		),

		volumeOpsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "volume_operation_duration_seconds",
				Help:      "Duration of volume operations in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),

		loginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "iscsi_logins_total",
				Help:      "Total number of iSCSI login attempts by status",
			},
			[]string{"status"},
		),

		loginDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iscsi_login_duration_seconds",
			Help:      "Duration of iSCSI login establishment in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "iscsi_sessions_active",
			Help:      "Number of iSCSI sessions established by this driver instance",
		}),

		clusterCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cluster_calls_total",
				Help:      "Total number of cluster API calls by method and status",
			},
			[]string{"method", "status"},
		),

		initiatorsRegisteredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "initiators_registered_total",
			Help:      "Total number of initiators added to the access group during bootstrap",
		}),
	}

	// Register all metrics with the custom registry
	reg.MustRegister(
		m.volumeOpsTotal,
		m.volumeOpsDuration,
		m.loginsTotal,
		m.loginDuration,
		m.sessionsActive,
		m.clusterCallsTotal,
		m.initiatorsRegisteredTotal,
	)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
// Use promhttp.HandlerFor with the custom registry for proper isolation.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordVolumeOp records a volume operation with timing.
// operation should be one of: create, destroy, resize, list, attach, detach.
func (m *Metrics) RecordVolumeOp(operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.volumeOpsTotal.WithLabelValues(operation, status).Inc()
	m.volumeOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordLogin records an iSCSI login attempt.
// On success (err == nil), also records the duration and increments active sessions.
func (m *Metrics) RecordLogin(err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.loginsTotal.WithLabelValues(status).Inc()
	if err == nil {
		m.loginDuration.Observe(duration.Seconds())
		m.sessionsActive.Inc()
	}
}

// RecordLogout records an iSCSI logout. Decrements the active sessions gauge.
func (m *Metrics) RecordLogout() {
	m.sessionsActive.Dec()
}

// RecordClusterCall records one cluster API call.
func (m *Metrics) RecordClusterCall(method string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.clusterCallsTotal.WithLabelValues(method, status).Inc()
}

// RecordInitiatorRegistered records one initiator added to the access group.
func (m *Metrics) RecordInitiatorRegistered() {
	m.initiatorsRegisteredTotal.Inc()
}
