// Package probe holds the typed registry of health-check capabilities
// the monitoring service dispatches against a node. Capabilities are
// registered by name at wiring time; unknown names are rejected by the
// config loader rather than discovered dynamically at first use.
package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kafka-guardian/guardian/pkg/types"
)

// Outcome is the result of a single probe invocation.
type Outcome struct {
	Healthy bool
	Reason  string
}

// Healthy is a convenience constructor for a successful outcome.
func Healthy() Outcome { return Outcome{Healthy: true} }

// Unhealthy is a convenience constructor for a failed outcome.
func Unhealthy(reason string) Outcome { return Outcome{Healthy: false, Reason: reason} }

// Checker is the capability interface the monitoring service consumes.
// Check must never block beyond timeout; implementations are expected
// to honor ctx cancellation promptly.
type Checker interface {
	Check(ctx context.Context, node *types.NodeConfig, timeout time.Duration) Outcome
}

// CheckerFunc adapts a plain function to the Checker interface.
type CheckerFunc func(ctx context.Context, node *types.NodeConfig, timeout time.Duration) Outcome

func (f CheckerFunc) Check(ctx context.Context, node *types.NodeConfig, timeout time.Duration) Outcome {
	return f(ctx, node, timeout)
}

// Registry holds named probe capabilities. It is read-mostly: checks
// happen concurrently across nodes, registration happens at startup
// (and occasionally, for ad-hoc capability additions) under a write lock.
type Registry struct {
	mu     sync.RWMutex
	probes map[string]Checker
}

// NewRegistry creates a registry pre-populated with the built-in
// TCP, JMX, and ZooKeeper four-letter-word probes.
func NewRegistry() *Registry {
	r := &Registry{probes: make(map[string]Checker)}
	r.Register("tcp", NewTCPProbe())
	r.Register("jmx", NewJMXProbe())
	r.Register("zk_ruok", NewZKFourLetterProbe("ruok", "imok"))
	return r
}

// Register adds or replaces a named probe capability.
func (r *Registry) Register(name string, checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[name] = checker
}

// Lookup returns the named checker, or false if it isn't registered.
func (r *Registry) Lookup(name string) (Checker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.probes[name]
	return c, ok
}

// Names returns the set of currently registered probe names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.probes))
	for name := range r.probes {
		names = append(names, name)
	}
	return names
}

// Validate checks that every name in methods is registered, returning
// an error naming the first unknown method.
func (r *Registry) Validate(methods []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range methods {
		if _, ok := r.probes[m]; !ok {
			return fmt.Errorf("unknown monitoring method %q", m)
		}
	}
	return nil
}
