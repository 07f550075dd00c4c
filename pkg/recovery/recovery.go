// Package recovery walks an unhealthy node's ordered recovery actions
// under its retry policy and reports a terminal outcome.
package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kafka-guardian/guardian/pkg/action"
	"github.com/kafka-guardian/guardian/pkg/log"
	"github.com/kafka-guardian/guardian/pkg/types"
	"github.com/rs/zerolog"
)

// defaultActionTimeout bounds a single action attempt.
const defaultActionTimeout = 30 * time.Second

// defaultHistoryLimit is H_recent: the bounded per-node history length.
const defaultHistoryLimit = 20

// OutcomeKind classifies a terminal ExecuteRecovery result.
type OutcomeKind int

const (
	// Succeeded means a single attempt reported exit 0 and a
	// subsequent health check reported Healthy.
	Succeeded OutcomeKind = iota
	// Exhausted means every configured action ran out of attempts.
	Exhausted
	// AlreadyInProgress means a recovery run for this node was already
	// active; this call did not start a new one.
	AlreadyInProgress
)

// Outcome is the terminal result of one ExecuteRecovery call.
type Outcome struct {
	Kind    OutcomeKind
	Node    string
	Result  types.RecoveryResult   // valid when Kind == Succeeded
	History []types.RecoveryResult // valid when Kind == Exhausted
}

// Verifier performs the post-action health check. The monitoring
// service satisfies this by running one immediate probe cycle.
type Verifier interface {
	CheckNodeOnce(ctx context.Context, nodeID string) (types.NodeStatus, bool)
}

// SucceededCallback fires with the completed RecoveryEvent.
type SucceededCallback func(event types.RecoveryEvent)

// ExhaustedCallback fires with the node ID and its full attempt history.
type ExhaustedCallback func(nodeID string, history []types.RecoveryResult)

// Engine executes bounded-retry recovery runs, one at a time per node.
type Engine struct {
	registry *action.Registry
	verifier Verifier
	logger   zerolog.Logger

	actionTimeout time.Duration
	historyLimit  int

	mu         sync.Mutex
	inProgress map[string]bool
	history    map[string][]types.RecoveryResult

	cbMu               sync.RWMutex
	succeededCallbacks []SucceededCallback
	exhaustedCallbacks []ExhaustedCallback
}

// NewEngine creates a recovery engine bound to the given action
// registry and post-action health verifier.
func NewEngine(registry *action.Registry, verifier Verifier) *Engine {
	return &Engine{
		registry:      registry,
		verifier:      verifier,
		logger:        log.WithComponent("recovery"),
		actionTimeout: defaultActionTimeout,
		historyLimit:  defaultHistoryLimit,
		inProgress:    make(map[string]bool),
		history:       make(map[string][]types.RecoveryResult),
	}
}

// RegisterSucceededCallback subscribes to successful recovery outcomes.
func (e *Engine) RegisterSucceededCallback(cb SucceededCallback) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.succeededCallbacks = append(e.succeededCallbacks, cb)
}

// RegisterExhaustedCallback subscribes to exhausted recovery outcomes.
func (e *Engine) RegisterExhaustedCallback(cb ExhaustedCallback) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.exhaustedCallbacks = append(e.exhaustedCallbacks, cb)
}

// TrimHistory caps a node's stored history to n entries, keeping the
// most recent. Used by the supervisor's resource sampler under memory
// pressure.
func (e *Engine) TrimHistory(nodeID string, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.history[nodeID]
	if len(h) > n {
		e.history[nodeID] = append([]types.RecoveryResult(nil), h[len(h)-n:]...)
	}
}

// History returns a copy of a node's recorded attempts.
func (e *Engine) History(nodeID string) []types.RecoveryResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.RecoveryResult(nil), e.history[nodeID]...)
}

// ExecuteRecovery walks node.RecoveryActions in order under policy,
// returning a terminal Outcome. At most one call per node_id proceeds
// at a time; a concurrent second call returns AlreadyInProgress.
func (e *Engine) ExecuteRecovery(ctx context.Context, node *types.NodeConfig, failure types.FailureEvent) Outcome {
	if !e.tryAcquire(node.NodeID) {
		return Outcome{Kind: AlreadyInProgress, Node: node.NodeID}
	}
	defer e.release(node.NodeID)

	policy := node.EffectiveRetryPolicy(types.DefaultRetryPolicy())

	var allResults []types.RecoveryResult
	anyKnownAction := false

	for _, actionName := range node.RecoveryActions {
		executor, ok := e.registry.Lookup(actionName)
		if !ok {
			e.logger.Warn().Str("node_id", node.NodeID).Str("action", actionName).
				Msg("recovery action is not registered; skipping")
			continue
		}
		anyKnownAction = true

		result, ok := e.runActionWithRetries(ctx, node, actionName, executor, policy)
		allResults = append(allResults, result...)
		if ok {
			final := result[len(result)-1]
			e.recordResults(node.NodeID, result)
			event := types.RecoveryEvent{
				NodeID:      node.NodeID,
				Failure:     failure,
				Result:      final,
				CompletedAt: time.Now(),
			}
			e.fireSucceeded(event)
			return Outcome{Kind: Succeeded, Node: node.NodeID, Result: final}
		}
		e.recordResults(node.NodeID, result)
	}

	if !anyKnownAction {
		e.fireExhausted(node.NodeID, nil)
		return Outcome{Kind: Exhausted, Node: node.NodeID, History: nil}
	}

	e.fireExhausted(node.NodeID, allResults)
	return Outcome{Kind: Exhausted, Node: node.NodeID, History: allResults}
}

// runActionWithRetries attempts one action up to policy.MaxAttempts
// times, sleeping the computed backoff delay between attempts. It
// returns the per-attempt results and whether the action ultimately
// succeeded.
func (e *Engine) runActionWithRetries(ctx context.Context, node *types.NodeConfig, actionName string, executor action.Executor, policy types.RetryPolicy) ([]types.RecoveryResult, bool) {
	var results []types.RecoveryResult

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := policy.DelayForAttempt(attempt)
			if !e.sleepCancellable(ctx, delay) {
				// context cancelled mid-backoff: stop retrying this action.
				return results, false
			}
		}

		started := time.Now()
		execResult := executor.Execute(ctx, node, e.actionTimeout)

		success := execResult.ExitCode == 0 && e.verifyHealthy(ctx, node.NodeID)

		results = append(results, types.RecoveryResult{
			NodeID:          node.NodeID,
			ActionName:      actionName,
			CommandExecuted: execResult.CommandExecuted,
			ExitCode:        execResult.ExitCode,
			Stdout:          execResult.Stdout,
			Stderr:          execResult.Stderr,
			StartedAt:       started,
			Duration:        execResult.Duration,
			Success:         success,
		})

		if success {
			return results, true
		}

		actionErr := &types.ActionError{
			NodeID:     node.NodeID,
			ActionName: actionName,
			Err:        fmt.Errorf("exit code %d", execResult.ExitCode),
		}
		e.logger.Warn().Err(actionErr).Int("attempt", attempt).Msg("recovery action attempt failed")
	}
	return results, false
}

func (e *Engine) verifyHealthy(ctx context.Context, nodeID string) bool {
	status, ok := e.verifier.CheckNodeOnce(ctx, nodeID)
	if !ok {
		return false
	}
	return status.State == types.HealthHealthy
}

// sleepCancellable waits for d or ctx cancellation, whichever comes
// first. It returns false if ctx was cancelled before d elapsed.
func (e *Engine) sleepCancellable(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) tryAcquire(nodeID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inProgress[nodeID] {
		return false
	}
	e.inProgress[nodeID] = true
	return true
}

func (e *Engine) release(nodeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inProgress, nodeID)
}

func (e *Engine) recordResults(nodeID string, results []types.RecoveryResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := append(e.history[nodeID], results...)
	if len(h) > e.historyLimit {
		h = h[len(h)-e.historyLimit:]
	}
	e.history[nodeID] = h
}

func (e *Engine) fireSucceeded(event types.RecoveryEvent) {
	e.cbMu.RLock()
	callbacks := append([]SucceededCallback(nil), e.succeededCallbacks...)
	e.cbMu.RUnlock()
	for _, cb := range callbacks {
		e.invokeIsolated(func() { cb(event) })
	}
}

func (e *Engine) fireExhausted(nodeID string, history []types.RecoveryResult) {
	e.cbMu.RLock()
	callbacks := append([]ExhaustedCallback(nil), e.exhaustedCallbacks...)
	e.cbMu.RUnlock()
	for _, cb := range callbacks {
		e.invokeIsolated(func() { cb(nodeID, history) })
	}
}

func (e *Engine) invokeIsolated(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("recovery callback panicked")
		}
	}()
	fn()
}
