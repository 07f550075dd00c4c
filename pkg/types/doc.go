/*
Package types defines the core data structures shared across the
supervisor: cluster topology (NodeConfig, ClusterConfig), the retry
policy used by the recovery engine, the per-node health state machine
(NodeStatus), and the append-only records (RecoveryResult,
FailureEvent, RecoveryEvent) other components consume.

ClusterConfig is frozen once by the config loader and never mutated
afterward; components that need to adapt at runtime (monitoring
interval, concurrency caps) keep that state in their own atomic cells
rather than writing back into this package's types.
*/
package types
