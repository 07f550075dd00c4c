// Package monitoring runs the per-node probe schedule and exposes
// health-state transitions to the rest of the supervisor.
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kafka-guardian/guardian/pkg/log"
	"github.com/kafka-guardian/guardian/pkg/probe"
	"github.com/kafka-guardian/guardian/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// defaultProbeTimeout bounds a single monitoring-method invocation.
const defaultProbeTimeout = 10 * time.Second

// defaultDrainDeadline is how long Stop waits for in-flight probes.
const defaultDrainDeadline = 5 * time.Second

// UnhealthyCallback fires on Healthy->Unhealthy and Unknown->Unhealthy.
type UnhealthyCallback func(event types.FailureEvent)

// HealthyCallback fires on Unhealthy->Healthy.
type HealthyCallback func(nodeID string, recoveredAt time.Time)

// Statistics summarizes monitoring state across all nodes.
type Statistics struct {
	Active         bool
	TotalNodes     int
	HealthyNodes   int
	UnhealthyNodes int
	UnknownNodes   int
	TotalChecksRun int64
	PerNode        map[string]types.NodeStatus
}

// Service runs one logical probe loop per configured node.
type Service struct {
	cluster  *types.ClusterConfig
	registry *probe.Registry
	logger   zerolog.Logger

	intervalSeconds atomic.Int64
	drainDeadline   time.Duration

	mu       sync.RWMutex
	statuses map[string]*types.NodeStatus

	configErrLogged sync.Map // nodeID -> bool

	cbMu               sync.RWMutex
	unhealthyCallbacks []UnhealthyCallback
	healthyCallbacks   []HealthyCallback

	running   atomic.Bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
	checksRun atomic.Int64
}

// NewService creates a monitoring service for the given frozen cluster
// config and probe registry. The registry's probes may still receive
// AddProbe registrations after construction.
func NewService(cluster *types.ClusterConfig, registry *probe.Registry) *Service {
	s := &Service{
		cluster:       cluster,
		registry:      registry,
		logger:        log.WithComponent("monitoring"),
		drainDeadline: defaultDrainDeadline,
		statuses:      make(map[string]*types.NodeStatus),
	}
	s.intervalSeconds.Store(int64(cluster.MonitoringIntervalSeconds))
	for _, n := range cluster.Nodes {
		s.statuses[n.NodeID] = &types.NodeStatus{NodeID: n.NodeID, State: types.HealthUnknown}
	}
	return s
}

// RegisterUnhealthyCallback subscribes to Unhealthy transitions.
func (s *Service) RegisterUnhealthyCallback(cb UnhealthyCallback) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.unhealthyCallbacks = append(s.unhealthyCallbacks, cb)
}

// RegisterHealthyCallback subscribes to Healthy transitions.
func (s *Service) RegisterHealthyCallback(cb HealthyCallback) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.healthyCallbacks = append(s.healthyCallbacks, cb)
}

// AddProbe registers an additional probe capability at runtime.
func (s *Service) AddProbe(name string, checker probe.Checker) {
	s.registry.Register(name, checker)
}

// CurrentInterval returns the live monitoring interval, which may
// differ from cluster.MonitoringIntervalSeconds under degraded mode
// or CPU back-pressure.
func (s *Service) CurrentInterval() time.Duration {
	return time.Duration(s.intervalSeconds.Load()) * time.Second
}

// SetInterval adjusts the live monitoring interval. ClusterConfig
// itself is never mutated; this cell is the only mutable knob.
func (s *Service) SetInterval(d time.Duration) {
	s.intervalSeconds.Store(int64(d / time.Second))
}

// Start is idempotent: calling it while already running is a no-op.
func (s *Service) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.stopCh = make(chan struct{})
	for _, node := range s.cluster.Nodes {
		s.wg.Add(1)
		go s.nodeLoop(node)
	}
	s.logger.Info().Int("nodes", len(s.cluster.Nodes)).Msg("monitoring started")
}

// Stop is idempotent and waits up to the drain deadline for in-flight
// probe cycles to finish before returning.
func (s *Service) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.drainDeadline):
		s.logger.Warn().Msg("monitoring drain deadline exceeded, discarding in-flight probes")
	}
}

// IsActive reports whether the probe loops are running.
func (s *Service) IsActive() bool {
	return s.running.Load()
}

func (s *Service) nodeLoop(node *types.NodeConfig) {
	defer s.wg.Done()

	s.runCycle(context.Background(), node)

	for {
		interval := s.CurrentInterval()
		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
			s.runCycle(context.Background(), node)
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

// CheckAllNodesOnce synchronously runs one probe cycle per node in
// parallel and returns the resulting statuses. Used by tests and by
// the supervisor's single-shot diagnostics.
func (s *Service) CheckAllNodesOnce(ctx context.Context) []types.NodeStatus {
	g, gctx := errgroup.WithContext(ctx)
	for _, node := range s.cluster.Nodes {
		node := node
		g.Go(func() error {
			s.runCycle(gctx, node)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.NodeStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, *st)
	}
	return out
}

// CheckNodeOnce runs a single immediate probe cycle for one node and
// returns its resulting status. Used by the recovery engine to verify
// an action's effect without waiting for the next scheduled tick.
func (s *Service) CheckNodeOnce(ctx context.Context, nodeID string) (types.NodeStatus, bool) {
	node := s.cluster.NodeByID(nodeID)
	if node == nil {
		return types.NodeStatus{}, false
	}
	s.runCycle(ctx, node)
	return s.Status(nodeID)
}

// runCycle performs one ordered walk of node.MonitoringMethods,
// short-circuiting at the first unhealthy/timed-out/unregistered
// method, and fires transition callbacks as needed.
func (s *Service) runCycle(ctx context.Context, node *types.NodeConfig) {
	s.checksRun.Add(1)
	outcome, reason, probeName := s.evaluateNode(ctx, node)
	now := time.Now()

	s.mu.Lock()
	status, ok := s.statuses[node.NodeID]
	if !ok {
		status = &types.NodeStatus{NodeID: node.NodeID, State: types.HealthUnknown}
		s.statuses[node.NodeID] = status
	}
	previous := status.State
	status.LastCheckAt = now

	var newState types.HealthState
	if outcome {
		newState = types.HealthHealthy
		status.ConsecutiveFailures = 0
	} else {
		newState = types.HealthUnhealthy
		status.ConsecutiveFailures++
		status.LastReason = reason
	}

	transitioned := newState != previous
	if transitioned {
		status.LastTransitionAt = now
	}
	status.State = newState
	s.mu.Unlock()

	if !transitioned {
		return
	}

	switch {
	case newState == types.HealthUnhealthy && (previous == types.HealthHealthy || previous == types.HealthUnknown):
		event := types.FailureEvent{
			NodeID:     node.NodeID,
			DetectedAt: now,
			ProbeName:  probeName,
			Diagnostic: reason,
		}
		s.fireUnhealthy(event)
	case newState == types.HealthHealthy && previous == types.HealthUnhealthy:
		s.fireHealthy(node.NodeID, now)
	}
}

// evaluateNode walks the node's configured methods in order. It
// returns (healthy, reason, probeName-that-decided-the-outcome).
func (s *Service) evaluateNode(ctx context.Context, node *types.NodeConfig) (bool, string, string) {
	if len(node.MonitoringMethods) == 0 {
		return false, "no monitoring methods configured", ""
	}

	for _, methodName := range node.MonitoringMethods {
		checker, ok := s.registry.Lookup(methodName)
		if !ok {
			s.logConfigErrorOnce(node.NodeID, methodName)
			return false, fmt.Sprintf("monitoring method %q is not registered", methodName), methodName
		}

		outcome := s.runProbe(ctx, checker, node, methodName)
		if !outcome.Healthy {
			return false, outcome.Reason, methodName
		}
	}
	return true, "", ""
}

// runProbe isolates a probe's panic or timeout as Unhealthy(reason);
// it never propagates an exception into the monitoring loop.
func (s *Service) runProbe(ctx context.Context, checker probe.Checker, node *types.NodeConfig, methodName string) (outcome probe.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			probeErr := &types.ProbeError{NodeID: node.NodeID, ProbeName: methodName, Err: fmt.Errorf("panic: %v", r)}
			s.logger.Error().Err(probeErr).Msg("probe panicked")
			outcome = probe.Unhealthy(probeErr.Error())
		}
	}()
	return checker.Check(ctx, node, defaultProbeTimeout)
}

func (s *Service) logConfigErrorOnce(nodeID, methodName string) {
	key := nodeID + "/" + methodName
	if _, loaded := s.configErrLogged.LoadOrStore(key, true); !loaded {
		s.logger.Error().
			Str("node_id", nodeID).
			Str("method", methodName).
			Msg("monitoring method is not registered; node is permanently unhealthy(configuration)")
	}
}

func (s *Service) fireUnhealthy(event types.FailureEvent) {
	s.cbMu.RLock()
	callbacks := append([]UnhealthyCallback(nil), s.unhealthyCallbacks...)
	s.cbMu.RUnlock()

	for _, cb := range callbacks {
		s.invokeIsolated(func() { cb(event) })
	}
}

func (s *Service) fireHealthy(nodeID string, at time.Time) {
	s.cbMu.RLock()
	callbacks := append([]HealthyCallback(nil), s.healthyCallbacks...)
	s.cbMu.RUnlock()

	for _, cb := range callbacks {
		s.invokeIsolated(func() { cb(nodeID, at) })
	}
}

func (s *Service) invokeIsolated(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("monitoring callback panicked")
		}
	}()
	fn()
}

// Status returns a snapshot of one node's current status.
func (s *Service) Status(nodeID string) (types.NodeStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[nodeID]
	if !ok {
		return types.NodeStatus{}, false
	}
	return *st, true
}

// GetStatistics returns per-node status and aggregate counts.
func (s *Service) GetStatistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Statistics{
		Active:     s.IsActive(),
		TotalNodes: len(s.statuses),
		PerNode:    make(map[string]types.NodeStatus, len(s.statuses)),
	}
	for id, st := range s.statuses {
		stats.PerNode[id] = *st
		switch st.State {
		case types.HealthHealthy:
			stats.HealthyNodes++
		case types.HealthUnhealthy:
			stats.UnhealthyNodes++
		default:
			stats.UnknownNodes++
		}
	}
	stats.TotalChecksRun = s.checksRun.Load()
	return stats
}
