package metrics

import (
	"time"

	"github.com/kafka-guardian/guardian/pkg/integrator"
	"github.com/kafka-guardian/guardian/pkg/monitoring"
	"github.com/kafka-guardian/guardian/pkg/notify"
	"github.com/kafka-guardian/guardian/pkg/types"
)

// Collector periodically samples component statistics into the
// package's Prometheus gauges and counters.
type Collector struct {
	cluster *types.ClusterConfig
	mon     *monitoring.Service
	integ   *integrator.Integrator
	disp    *notify.Dispatcher

	stopCh chan struct{}
}

// NewCollector creates a metrics collector wired to the supervisor's
// already-constructed components.
func NewCollector(cluster *types.ClusterConfig, mon *monitoring.Service, integ *integrator.Integrator, disp *notify.Dispatcher) *Collector {
	return &Collector{
		cluster: cluster,
		mon:     mon,
		integ:   integ,
		disp:    disp,
		stopCh:  make(chan struct{}),
	}
}

// Start begins periodic collection at a 15s cadence.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts periodic collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.mon != nil {
		c.collectMonitoring()
	}
	if c.integ != nil {
		c.collectIntegrator()
	}
	if c.disp != nil {
		c.collectNotify()
	}
}

func (c *Collector) collectMonitoring() {
	stats := c.mon.GetStatistics()
	MonitoringIntervalSeconds.Set(c.mon.CurrentInterval().Seconds())
	MonitoringChecksRunTotal.Set(float64(stats.TotalChecksRun))

	counts := make(map[string]map[string]int)
	for _, node := range c.cluster.Nodes {
		status, ok := stats.PerNode[node.NodeID]
		state := string(types.HealthUnknown)
		if ok {
			state = string(status.State)
		}
		nodeType := string(node.NodeType)
		if counts[nodeType] == nil {
			counts[nodeType] = make(map[string]int)
		}
		counts[nodeType][state]++
	}
	for nodeType, states := range counts {
		for state, n := range states {
			NodesTotal.WithLabelValues(nodeType, state).Set(float64(n))
		}
	}
}

func (c *Collector) collectIntegrator() {
	stats := c.integ.GetStatistics()
	IntegratorActiveRecoveries.Set(float64(stats.ActiveRecoveries))
	IntegratorQueuedRecoveries.Set(float64(stats.Queued))
	IntegratorNodesInCooldown.Set(float64(stats.NodesInCooldown))
	RecoverySuccessesTotal.Set(float64(stats.TotalSuccesses))
	RecoveryExhaustionsTotal.Set(float64(stats.TotalExhaustions))
	for nodeID, flaps := range stats.FlapsByNode {
		IntegratorFlapsTotal.WithLabelValues(nodeID).Set(float64(flaps))
	}
}

func (c *Collector) collectNotify() {
	stats := c.disp.GetStatistics()
	NotificationQueueDepth.WithLabelValues("primary").Set(float64(stats.PrimaryQueueDepth))
	NotificationQueueDepth.WithLabelValues("retry").Set(float64(stats.RetryQueueDepth))
}
