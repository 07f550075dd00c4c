/*
Package metrics provides Prometheus metrics collection and exposition for
the Kafka/ZooKeeper self-healing supervisor.

The package defines and registers every guardian metric using the
Prometheus client library, giving operators visibility into node health,
recovery outcomes, integrator back-pressure, notification delivery, and
host resource usage. Metrics are exposed via an HTTP endpoint for
scraping by Prometheus servers; the package also backs the /healthz,
/readyz, /livez, and /status endpoints served alongside /metrics.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Categories               │          │
	│  │                                              │          │
	│  │  Monitoring: node counts, checks run        │          │
	│  │  Recovery: successes, exhaustions           │          │
	│  │  Integrator: active/queued/cooldown/flaps   │          │
	│  │  Notification: queue depth, delivered/dropped│          │
	│  │  Supervisor: degraded mode, error count     │          │
	│  │  Resources: memory/disk/cpu percent used    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │  Collector (collector.go)                   │          │
	│  │  - 15s ticker samples component statistics  │          │
	│  │  - Started/stopped by the supervisor         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │   /metrics /healthz /readyz /livez /status  │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

Monitoring:

guardian_nodes_total{node_type, state}:
  - Type: Gauge
  - Description: Total configured nodes by type (kafka_broker/zookeeper)
    and health state (healthy/unhealthy/unknown)
  - Example: guardian_nodes_total{node_type="kafka_broker",state="healthy"} 3

guardian_monitoring_interval_seconds:
  - Type: Gauge
  - Description: Current live monitoring interval, adjusted by degraded
    mode and CPU-pressure throttling

guardian_monitoring_checks_run_total:
  - Type: Gauge
  - Description: Cumulative probe cycles run across all nodes

Recovery:

guardian_recovery_successes_total:
  - Type: Gauge
  - Description: Cumulative recovery runs that reached Succeeded

guardian_recovery_exhaustions_total:
  - Type: Gauge
  - Description: Cumulative recovery runs that reached Exhausted

Integrator:

guardian_integrator_active_recoveries:
  - Type: Gauge
  - Description: Recovery runs currently in flight, bounded by the
    integrator's concurrency cap

guardian_integrator_queued_recoveries:
  - Type: Gauge
  - Description: Nodes queued awaiting a concurrency slot

guardian_integrator_nodes_in_cooldown:
  - Type: Gauge
  - Description: Nodes currently suppressing new recovery runs

guardian_integrator_flaps_total{node_id}:
  - Type: Gauge
  - Description: Healthy-Unhealthy-Healthy flaps observed, by node

Notification:

guardian_notification_queue_depth{queue}:
  - Type: Gauge
  - Description: Dispatcher queue depth, by queue ("primary"/"retry")

guardian_notifications_delivered_total:
  - Type: Counter
  - Description: Notification messages successfully delivered
  - Registered only: nothing in this repository increments it, so it
    stays at 0

guardian_notifications_dropped_total:
  - Type: Counter
  - Description: Notification messages dropped after exhausting retries
  - Registered only: nothing in this repository increments it, so it
    stays at 0

Supervisor:

guardian_degraded_mode:
  - Type: Gauge
  - Description: Whether the supervisor is in degraded mode (1) or not (0)

guardian_supervisor_error_count:
  - Type: Gauge
  - Description: Current unhandled-error counter value

guardian_resource_usage_percent{resource}:
  - Type: Gauge
  - Description: Sampled host resource usage percentage, by resource
    ("memory"/"disk"/"cpu")

# Usage

Updating gauges directly:

	import "github.com/kafka-guardian/guardian/pkg/metrics"

	metrics.NodesTotal.WithLabelValues("kafka_broker", "healthy").Set(3)
	metrics.DegradedMode.Set(1)

Timing an operation:

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(someHistogramVec, "label")

In practice, the supervisor constructs a Collector (see collector.go)
that samples monitoring.Service, integrator.Integrator, and
notify.Dispatcher statistics on a 15s cadence and writes them into the
monitoring, recovery, integrator, and notification queue-depth gauges
above. The supervisor sets the degraded-mode, error-count, and
resource-usage gauges itself when those values change or are sampled.

# Integration Points

This package integrates with:

  - pkg/supervisor: starts/stops the Collector, serves /status
  - pkg/monitoring: sampled for node counts and checks-run
  - pkg/integrator: sampled for concurrency and flap counts
  - pkg/notify: sampled for queue depth
  - Prometheus: scrapes /metrics

# Design Patterns

Package Init Registration:
  - All metrics registered in init()
  - MustRegister panics on duplicate registration

Label Discipline:
  - WithLabelValues for cardinality-bounded labels (node type, state,
    queue name, resource name)
  - node_id labels the flap counter only, since the node set is fixed
    at config-load time and bounded by cluster size
*/
package metrics
