package monitoring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kafka-guardian/guardian/pkg/probe"
	"github.com/kafka-guardian/guardian/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCluster(nodeID string, methods []string) *types.ClusterConfig {
	return &types.ClusterConfig{
		ClusterName:               "test",
		MonitoringIntervalSeconds: 3600,
		DefaultRetryPolicy:        types.DefaultRetryPolicy(),
		Nodes: []*types.NodeConfig{
			{
				NodeID:            nodeID,
				NodeType:          types.NodeTypeKafkaBroker,
				Host:              "localhost",
				Port:              9092,
				MonitoringMethods: methods,
			},
		},
	}
}

func TestRunCycleTransitionsUnknownToUnhealthyFiresCallback(t *testing.T) {
	cluster := testCluster("broker-1", []string{"fail"})
	registry := probe.NewRegistry()
	registry.Register("fail", probe.CheckerFunc(func(ctx context.Context, node *types.NodeConfig, timeout time.Duration) probe.Outcome {
		return probe.Unhealthy("simulated failure")
	}))

	svc := NewService(cluster, registry)

	var mu sync.Mutex
	var events []types.FailureEvent
	svc.RegisterUnhealthyCallback(func(e types.FailureEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	svc.runCycle(context.Background(), cluster.Nodes[0])

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, "broker-1", events[0].NodeID)
	assert.Equal(t, "fail", events[0].ProbeName)

	status, ok := svc.Status("broker-1")
	require.True(t, ok)
	assert.Equal(t, types.HealthUnhealthy, status.State)
	assert.Equal(t, 1, status.ConsecutiveFailures)
}

func TestRunCycleDoesNotRefireCallbackOnRepeatedSameState(t *testing.T) {
	cluster := testCluster("broker-1", []string{"fail"})
	registry := probe.NewRegistry()
	registry.Register("fail", probe.CheckerFunc(func(ctx context.Context, node *types.NodeConfig, timeout time.Duration) probe.Outcome {
		return probe.Unhealthy("simulated failure")
	}))

	svc := NewService(cluster, registry)

	var calls int
	svc.RegisterUnhealthyCallback(func(e types.FailureEvent) {
		calls++
	})

	svc.runCycle(context.Background(), cluster.Nodes[0])
	svc.runCycle(context.Background(), cluster.Nodes[0])
	svc.runCycle(context.Background(), cluster.Nodes[0])

	assert.Equal(t, 1, calls)

	status, _ := svc.Status("broker-1")
	assert.Equal(t, 3, status.ConsecutiveFailures)
}

func TestRunCycleFiresHealthyCallbackOnRecovery(t *testing.T) {
	cluster := testCluster("broker-1", []string{"flip"})
	registry := probe.NewRegistry()

	healthy := false
	registry.Register("flip", probe.CheckerFunc(func(ctx context.Context, node *types.NodeConfig, timeout time.Duration) probe.Outcome {
		if healthy {
			return probe.Healthy()
		}
		return probe.Unhealthy("not yet")
	}))

	svc := NewService(cluster, registry)

	var unhealthyCalls, healthyCalls int
	svc.RegisterUnhealthyCallback(func(e types.FailureEvent) { unhealthyCalls++ })
	svc.RegisterHealthyCallback(func(nodeID string, at time.Time) { healthyCalls++ })

	svc.runCycle(context.Background(), cluster.Nodes[0])
	assert.Equal(t, 1, unhealthyCalls)

	healthy = true
	svc.runCycle(context.Background(), cluster.Nodes[0])
	assert.Equal(t, 1, healthyCalls)

	status, _ := svc.Status("broker-1")
	assert.Equal(t, types.HealthHealthy, status.State)
	assert.Equal(t, 0, status.ConsecutiveFailures)
}

func TestEvaluateNodeShortCircuitsOnFirstFailingMethod(t *testing.T) {
	cluster := testCluster("broker-1", []string{"ok", "fail", "never"})
	registry := probe.NewRegistry()

	var neverCalled bool
	registry.Register("ok", probe.CheckerFunc(func(ctx context.Context, node *types.NodeConfig, timeout time.Duration) probe.Outcome {
		return probe.Healthy()
	}))
	registry.Register("fail", probe.CheckerFunc(func(ctx context.Context, node *types.NodeConfig, timeout time.Duration) probe.Outcome {
		return probe.Unhealthy("boom")
	}))
	registry.Register("never", probe.CheckerFunc(func(ctx context.Context, node *types.NodeConfig, timeout time.Duration) probe.Outcome {
		neverCalled = true
		return probe.Healthy()
	}))

	svc := NewService(cluster, registry)
	healthy, reason, probeName := svc.evaluateNode(context.Background(), cluster.Nodes[0])

	assert.False(t, healthy)
	assert.Equal(t, "boom", reason)
	assert.Equal(t, "fail", probeName)
	assert.False(t, neverCalled)
}

func TestEvaluateNodeUnregisteredMethodIsUnhealthyConfiguration(t *testing.T) {
	cluster := testCluster("broker-1", []string{"does-not-exist"})
	registry := probe.NewRegistry()

	svc := NewService(cluster, registry)
	healthy, reason, probeName := svc.evaluateNode(context.Background(), cluster.Nodes[0])

	assert.False(t, healthy)
	assert.Equal(t, "does-not-exist", probeName)
	assert.Contains(t, reason, "not registered")
}

func TestCheckAllNodesOnceRunsNodesConcurrently(t *testing.T) {
	cluster := &types.ClusterConfig{
		ClusterName:               "test",
		MonitoringIntervalSeconds: 3600,
		DefaultRetryPolicy:        types.DefaultRetryPolicy(),
		Nodes: []*types.NodeConfig{
			{NodeID: "n1", NodeType: types.NodeTypeKafkaBroker, MonitoringMethods: []string{"slow"}},
			{NodeID: "n2", NodeType: types.NodeTypeKafkaBroker, MonitoringMethods: []string{"slow"}},
			{NodeID: "n3", NodeType: types.NodeTypeZooKeeper, MonitoringMethods: []string{"slow"}},
		},
	}
	registry := probe.NewRegistry()
	registry.Register("slow", probe.CheckerFunc(func(ctx context.Context, node *types.NodeConfig, timeout time.Duration) probe.Outcome {
		time.Sleep(50 * time.Millisecond)
		return probe.Healthy()
	}))

	svc := NewService(cluster, registry)

	start := time.Now()
	statuses := svc.CheckAllNodesOnce(context.Background())
	elapsed := time.Since(start)

	require.Len(t, statuses, 3)
	assert.Less(t, elapsed, 150*time.Millisecond, "nodes should be probed concurrently, not sequentially")
}

func TestStartStopIsIdempotentAndDrains(t *testing.T) {
	cluster := testCluster("broker-1", []string{"ok"})
	registry := probe.NewRegistry()
	registry.Register("ok", probe.CheckerFunc(func(ctx context.Context, node *types.NodeConfig, timeout time.Duration) probe.Outcome {
		return probe.Healthy()
	}))

	svc := NewService(cluster, registry)
	svc.Start()
	svc.Start()
	assert.True(t, svc.IsActive())

	svc.Stop()
	svc.Stop()
	assert.False(t, svc.IsActive())
}
