package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardian_nodes_total",
			Help: "Total number of configured nodes by type and health state",
		},
		[]string{"node_type", "state"},
	)

	MonitoringIntervalSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_monitoring_interval_seconds",
			Help: "Current live monitoring interval in seconds",
		},
	)

	MonitoringChecksRunTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_monitoring_checks_run_total",
			Help: "Cumulative number of probe cycles run across all nodes",
		},
	)

	RecoverySuccessesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_recovery_successes_total",
			Help: "Cumulative number of recovery runs that reached Succeeded",
		},
	)

	RecoveryExhaustionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_recovery_exhaustions_total",
			Help: "Cumulative number of recovery runs that reached Exhausted",
		},
	)

	IntegratorActiveRecoveries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_integrator_active_recoveries",
			Help: "Number of recovery runs currently in flight",
		},
	)

	IntegratorQueuedRecoveries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_integrator_queued_recoveries",
			Help: "Number of nodes queued awaiting a concurrency slot",
		},
	)

	IntegratorNodesInCooldown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_integrator_nodes_in_cooldown",
			Help: "Number of nodes currently suppressing new recovery runs",
		},
	)

	IntegratorFlapsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardian_integrator_flaps_total",
			Help: "Total number of Healthy-Unhealthy-Healthy flaps observed, by node",
		},
		[]string{"node_id"},
	)

	NotificationQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardian_notification_queue_depth",
			Help: "Notification dispatcher queue depth, by queue",
		},
		[]string{"queue"},
	)

	NotificationsDeliveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "guardian_notifications_delivered_total",
			Help: "Total number of notification messages successfully delivered",
		},
	)

	NotificationsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "guardian_notifications_dropped_total",
			Help: "Total number of notification messages dropped after exhausting retries",
		},
	)

	DegradedMode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_degraded_mode",
			Help: "Whether the supervisor is currently in degraded mode (1) or not (0)",
		},
	)

	SupervisorErrorCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_supervisor_error_count",
			Help: "Current unhandled-exception counter value",
		},
	)

	ResourceUsagePercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardian_resource_usage_percent",
			Help: "Sampled host resource usage percentage, by resource",
		},
		[]string{"resource"},
	)
)

func init() {
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(MonitoringIntervalSeconds)
	prometheus.MustRegister(MonitoringChecksRunTotal)
	prometheus.MustRegister(RecoverySuccessesTotal)
	prometheus.MustRegister(RecoveryExhaustionsTotal)
	prometheus.MustRegister(IntegratorActiveRecoveries)
	prometheus.MustRegister(IntegratorQueuedRecoveries)
	prometheus.MustRegister(IntegratorNodesInCooldown)
	prometheus.MustRegister(IntegratorFlapsTotal)
	prometheus.MustRegister(NotificationQueueDepth)
	prometheus.MustRegister(NotificationsDeliveredTotal)
	prometheus.MustRegister(NotificationsDroppedTotal)
	prometheus.MustRegister(DegradedMode)
	prometheus.MustRegister(SupervisorErrorCount)
	prometheus.MustRegister(ResourceUsagePercent)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation's duration for a histogram observation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time against a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time against a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
