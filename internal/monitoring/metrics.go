package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the resilience and security monitoring layer
var (
	ErrorReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depositdigest_error_reports_total",
			Help: "Classified failures by category and severity",
		},
		[]string{"category", "severity"},
	)

	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depositdigest_retry_attempts_total",
			Help: "Operation attempts made by the retry executor",
		},
		[]string{"component", "action", "outcome"},
	)

	FailedLoginsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "depositdigest_failed_logins_total",
			Help: "Failed login attempts recorded by the security monitor",
		},
	)

	LockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "depositdigest_lockouts_total",
			Help: "Identifiers that reached the failed-login threshold",
		},
	)

	SuspiciousActivityTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depositdigest_suspicious_activity_total",
			Help: "Pattern detections by pattern name",
		},
		[]string{"pattern"},
	)

	SecurityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depositdigest_security_events_total",
			Help: "Security events appended to the audit stream",
		},
		[]string{"event_type", "severity"},
	)

	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depositdigest_alerts_created_total",
			Help: "Alerts created by type and severity",
		},
		[]string{"type", "severity"},
	)

	AlertsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "depositdigest_alerts_active",
			Help: "Alerts not yet resolved",
		},
	)

	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depositdigest_escalations_total",
			Help: "Critical alert escalations by result",
		},
		[]string{"result"},
	)

	SystemHealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "depositdigest_system_health_status",
			Help: "Aggregate health (0=healthy, 1=degraded, 2=unhealthy)",
		},
	)

	HealthProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "depositdigest_health_probe_duration_seconds",
			Help:    "Health probe duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"probe", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depositdigest_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "depositdigest_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// HealthStatusToFloat converts a system status to the gauge encoding
func HealthStatusToFloat(status string) float64 {
	switch status {
	case "healthy":
		return 0
	case "degraded":
		return 1
	case "unhealthy":
		return 2
	default:
		return -1
	}
}

// RecordErrorReport counts one classified failure
func RecordErrorReport(category, severity string) {
	ErrorReportsTotal.WithLabelValues(category, severity).Inc()
}

// RecordRetryAttempt counts one attempt ("success", "failure")
func RecordRetryAttempt(component, action, outcome string) {
	RetryAttemptsTotal.WithLabelValues(component, action, outcome).Inc()
}

// RecordSecurityEvent counts one appended security event
func RecordSecurityEvent(eventType, severity string) {
	SecurityEventsTotal.WithLabelValues(eventType, severity).Inc()
}

// RecordAlertCreated counts a new alert
func RecordAlertCreated(alertType, severity string) {
	AlertsCreatedTotal.WithLabelValues(alertType, severity).Inc()
}

// RecordEscalation counts an escalation attempt ("success", "failure")
func RecordEscalation(result string) {
	EscalationsTotal.WithLabelValues(result).Inc()
}

// RecordHealthProbe observes one probe run
func RecordHealthProbe(probe, status string, duration time.Duration) {
	HealthProbeDuration.WithLabelValues(probe, status).Observe(duration.Seconds())
}

// RecordAPIRequest increments the API request counter and records duration
func RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
