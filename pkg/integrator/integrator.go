// Package integrator bridges monitoring's health transitions to the
// recovery engine, enforcing per-node exclusivity, a global
// concurrency cap, post-outcome cooldown, and flap deduplication.
package integrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kafka-guardian/guardian/pkg/log"
	"github.com/kafka-guardian/guardian/pkg/recovery"
	"github.com/kafka-guardian/guardian/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultMaxConcurrentRecoveries is the global cap absent config/degraded overrides.
const DefaultMaxConcurrentRecoveries = 5

// DefaultCooldown suppresses further recovery runs on a node for this
// long after any terminal outcome.
const DefaultCooldown = 60 * time.Second

// EscalationHandler receives the node and its full attempt history
// when recovery is exhausted.
type EscalationHandler func(nodeID string, history []types.RecoveryResult)

// RecoveryHandler receives the completed event when recovery succeeds.
type RecoveryHandler func(event types.RecoveryEvent)

// Statistics summarizes the integrator's current load and lifetime counters.
type Statistics struct {
	ActiveRecoveries  int
	NodesInCooldown   int
	Queued            int
	FlapsByNode       map[string]int
	TotalSuccesses    int64
	TotalExhaustions  int64
	DroppedInCooldown int64
}

// Integrator owns the scheduling policy between monitoring and the
// recovery engine.
type Integrator struct {
	cluster *types.ClusterConfig
	engine  *recovery.Engine
	logger  zerolog.Logger

	monitoringInterval func() time.Duration

	capMu sync.Mutex
	sem   *semaphore.Weighted
	cap   int64

	mu             sync.Mutex
	active         map[string]bool
	queued         map[string]bool
	queue          []string
	pending        map[string]types.FailureEvent
	cooldownUntil  map[string]time.Time
	unhealthySince map[string]time.Time
	flapsByNode    map[string]int

	droppedInCooldown atomic.Int64
	totalSuccesses    atomic.Int64
	totalExhaustions  atomic.Int64

	cbMu               sync.RWMutex
	escalationHandlers []EscalationHandler
	recoveryHandlers   []RecoveryHandler
}

// New creates an Integrator wired to the given cluster, recovery
// engine, and a function returning the current monitoring interval
// (used for the flap-dedup window, which is 2x that interval).
func New(cluster *types.ClusterConfig, engine *recovery.Engine, monitoringInterval func() time.Duration) *Integrator {
	i := &Integrator{
		cluster:            cluster,
		engine:             engine,
		logger:             log.WithComponent("integrator"),
		monitoringInterval: monitoringInterval,
		sem:                semaphore.NewWeighted(DefaultMaxConcurrentRecoveries),
		cap:                DefaultMaxConcurrentRecoveries,
		active:             make(map[string]bool),
		queued:             make(map[string]bool),
		pending:            make(map[string]types.FailureEvent),
		cooldownUntil:      make(map[string]time.Time),
		unhealthySince:     make(map[string]time.Time),
		flapsByNode:        make(map[string]int),
	}

	engine.RegisterSucceededCallback(func(event types.RecoveryEvent) {
		i.totalSuccesses.Add(1)
		i.forwardRecovery(event)
	})
	engine.RegisterExhaustedCallback(func(nodeID string, history []types.RecoveryResult) {
		i.totalExhaustions.Add(1)
		i.forwardEscalation(nodeID, history)
	})

	return i
}

// RegisterEscalationHandler subscribes an externally-owned handler
// (e.g. the notification dispatcher) to exhausted recovery outcomes.
func (i *Integrator) RegisterEscalationHandler(h EscalationHandler) {
	i.cbMu.Lock()
	defer i.cbMu.Unlock()
	i.escalationHandlers = append(i.escalationHandlers, h)
}

// RegisterRecoveryHandler subscribes an externally-owned handler to
// successful recovery outcomes.
func (i *Integrator) RegisterRecoveryHandler(h RecoveryHandler) {
	i.cbMu.Lock()
	defer i.cbMu.Unlock()
	i.recoveryHandlers = append(i.recoveryHandlers, h)
}

// SetMaxConcurrency resizes the global concurrency cap. In-flight
// recoveries holding a permit from the previous semaphore run to
// completion unaffected; new acquisitions use the new cap.
func (i *Integrator) SetMaxConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	i.capMu.Lock()
	i.sem = semaphore.NewWeighted(int64(n))
	i.cap = int64(n)
	i.capMu.Unlock()
	i.drainQueue()
}

// OnUnhealthy is registered as monitoring's UnhealthyCallback.
func (i *Integrator) OnUnhealthy(event types.FailureEvent) {
	nodeID := event.NodeID

	i.mu.Lock()
	if _, wasUnhealthy := i.unhealthySince[nodeID]; !wasUnhealthy {
		i.unhealthySince[nodeID] = event.DetectedAt
	}

	if i.active[nodeID] {
		i.mu.Unlock()
		return
	}
	if until, ok := i.cooldownUntil[nodeID]; ok && event.DetectedAt.Before(until) {
		i.mu.Unlock()
		i.droppedInCooldown.Add(1)
		return
	}
	if i.queued[nodeID] {
		i.mu.Unlock()
		return
	}
	i.queued[nodeID] = true
	i.queue = append(i.queue, nodeID)
	i.pending[nodeID] = event
	i.mu.Unlock()

	i.drainQueue()
}

// OnHealthy is registered as monitoring's HealthyCallback. It tracks
// flap occurrences; it does not itself start or stop recovery runs.
func (i *Integrator) OnHealthy(nodeID string, recoveredAt time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()

	since, ok := i.unhealthySince[nodeID]
	if ok {
		window := 2 * i.monitoringInterval()
		if recoveredAt.Sub(since) <= window {
			i.flapsByNode[nodeID]++
		}
		delete(i.unhealthySince, nodeID)
	}
}

// drainQueue starts as many queued recoveries as the current cap allows.
func (i *Integrator) drainQueue() {
	for {
		i.capMu.Lock()
		sem := i.sem
		i.capMu.Unlock()

		if !sem.TryAcquire(1) {
			return
		}

		i.mu.Lock()
		if len(i.queue) == 0 {
			i.mu.Unlock()
			sem.Release(1)
			return
		}
		nodeID := i.queue[0]
		i.queue = i.queue[1:]
		delete(i.queued, nodeID)
		failure := i.pending[nodeID]
		delete(i.pending, nodeID)
		i.active[nodeID] = true
		i.mu.Unlock()

		go i.runRecovery(nodeID, failure, sem)
	}
}

func (i *Integrator) runRecovery(nodeID string, failure types.FailureEvent, sem *semaphore.Weighted) {
	defer func() {
		i.mu.Lock()
		delete(i.active, nodeID)
		i.cooldownUntil[nodeID] = time.Now().Add(DefaultCooldown)
		i.mu.Unlock()
		sem.Release(1)
		i.drainQueue()
	}()

	node := i.cluster.NodeByID(nodeID)
	if node == nil {
		return
	}
	if node.RetryPolicy == nil {
		withDefault := *node
		policy := i.cluster.DefaultRetryPolicy
		withDefault.RetryPolicy = &policy
		node = &withDefault
	}
	i.engine.ExecuteRecovery(context.Background(), node, failure)
}

func (i *Integrator) forwardEscalation(nodeID string, history []types.RecoveryResult) {
	i.cbMu.RLock()
	handlers := append([]EscalationHandler(nil), i.escalationHandlers...)
	i.cbMu.RUnlock()
	for _, h := range handlers {
		i.invokeIsolated(func() { h(nodeID, history) })
	}
}

func (i *Integrator) forwardRecovery(event types.RecoveryEvent) {
	i.cbMu.RLock()
	handlers := append([]RecoveryHandler(nil), i.recoveryHandlers...)
	i.cbMu.RUnlock()
	for _, h := range handlers {
		i.invokeIsolated(func() { h(event) })
	}
}

func (i *Integrator) invokeIsolated(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error().Interface("panic", r).Msg("integrator handler panicked")
		}
	}()
	fn()
}

// GetStatistics returns a point-in-time snapshot of load and counters.
func (i *Integrator) GetStatistics() Statistics {
	now := time.Now()
	i.mu.Lock()
	defer i.mu.Unlock()

	nodesInCooldown := 0
	for _, until := range i.cooldownUntil {
		if now.Before(until) {
			nodesInCooldown++
		}
	}

	flaps := make(map[string]int, len(i.flapsByNode))
	for k, v := range i.flapsByNode {
		flaps[k] = v
	}

	return Statistics{
		ActiveRecoveries:  len(i.active),
		NodesInCooldown:   nodesInCooldown,
		Queued:            len(i.queue),
		FlapsByNode:       flaps,
		TotalSuccesses:    i.totalSuccesses.Load(),
		TotalExhaustions:  i.totalExhaustions.Load(),
		DroppedInCooldown: i.droppedInCooldown.Load(),
	}
}
