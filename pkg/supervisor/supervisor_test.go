package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kafka-guardian/guardian/pkg/action"
	"github.com/kafka-guardian/guardian/pkg/config"
	"github.com/kafka-guardian/guardian/pkg/probe"
	"github.com/kafka-guardian/guardian/pkg/types"
)

func testLoaded(t *testing.T) *config.Loaded {
	t.Helper()
	return &config.Loaded{
		Cluster: &types.ClusterConfig{
			ClusterName:               "test-cluster",
			MonitoringIntervalSeconds: 3600,
			DefaultRetryPolicy:        types.DefaultRetryPolicy(),
			Nodes: []*types.NodeConfig{
				{
					NodeID:            "broker-1",
					NodeType:          types.NodeTypeKafkaBroker,
					Host:              "localhost",
					Port:              9092,
					MonitoringMethods: []string{"tcp"},
					RecoveryActions:   []string{"restart"},
				},
			},
		},
		Logging: types.LoggingConfig{LogDir: t.TempDir()},
	}
}

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	loaded := testLoaded(t)
	probes := probe.NewRegistry()
	actions := action.NewRegistry()
	actions.Register("restart", action.NewShellAction("true"))

	s, err := New(loaded, probes, actions)
	require.NoError(t, err)
	return s
}

func TestNewWiresComponentsFromLoadedConfig(t *testing.T) {
	s := newTestSupervisor(t)
	assert.Equal(t, "test-cluster", s.cluster.ClusterName)
	assert.False(t, s.monitoring.IsActive())
}

func TestStartActivatesMonitoringAndSetsRunning(t *testing.T) {
	s := newTestSupervisor(t)
	s.Start()
	defer s.Stop()

	assert.True(t, s.monitoring.IsActive())
	assert.True(t, s.running.Load())
}

func TestStopIsIdempotentAndDeactivatesComponents(t *testing.T) {
	s := newTestSupervisor(t)
	s.Start()

	s.Stop()
	assert.False(t, s.monitoring.IsActive())
	assert.False(t, s.running.Load())

	// A second Stop call must not panic or block.
	s.Stop()
}

func TestSelfHealthCheckRestartsInactiveMonitoring(t *testing.T) {
	s := newTestSupervisor(t)
	s.stopInternal = make(chan struct{})
	defer close(s.stopInternal)

	require.False(t, s.monitoring.IsActive())
	s.selfHealthCheck()
	assert.True(t, s.monitoring.IsActive())
	s.monitoring.Stop()
}

func TestDegradedModeEntersOnSustainedErrorsAndExitsWhenClear(t *testing.T) {
	s := newTestSupervisor(t)
	s.stopInternal = make(chan struct{})
	defer close(s.stopInternal)
	s.monitoring.Start()
	defer s.monitoring.Stop()

	s.reportError("test", assertError{})
	s.reportError("test", assertError{})
	s.reportError("test", assertError{})
	s.reportError("test", assertError{})

	s.evaluateDegradedMode()
	assert.True(t, s.degraded.Load())
	assert.Equal(t, s.baseInterval*2, s.monitoring.CurrentInterval())

	// Clearing the error window (simulated by resetting the counter
	// directly, the same state exitDegradedMode itself restores) lets
	// the next evaluation exit degraded mode.
	s.errCount.Store(0)
	s.evaluateDegradedMode()
	assert.False(t, s.degraded.Load())
	assert.Equal(t, s.baseInterval, s.monitoring.CurrentInterval())
}

func TestReportErrorTriggersShutdownAfterThreshold(t *testing.T) {
	s := newTestSupervisor(t)

	for i := 0; i < shutdownErrorThreshold; i++ {
		s.reportError("test", assertError{})
		select {
		case <-s.shutdownCh:
			t.Fatalf("shutdown triggered early at error %d", i+1)
		default:
		}
	}

	s.reportError("test", assertError{})
	select {
	case <-s.shutdownCh:
	case <-time.After(time.Second):
		t.Fatal("expected shutdown channel to close after exceeding the error threshold")
	}
}

func TestStatusReflectsRunningAndClusterName(t *testing.T) {
	s := newTestSupervisor(t)
	s.Start()
	defer s.Stop()

	status := s.Status()
	assert.True(t, status.Running)
	assert.Equal(t, "test-cluster", status.ClusterName)
	assert.Contains(t, status.RegisteredActions, "restart")
}

type assertError struct{}

func (assertError) Error() string { return "simulated failure" }
