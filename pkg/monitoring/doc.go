/*
Package monitoring runs one probe loop per cluster node and tracks
each node's health state. Within a node's cycle, monitoring methods
run in their configured order and the cycle stops at the first one
that fails; distinct nodes are probed concurrently, via
golang.org/x/sync/errgroup in CheckAllNodesOnce and independently in
their own per-node ticking goroutines.

Unhealthy/Healthy transitions fire registered callbacks exactly once
per transition, never on repeated same-state cycles, so the recovery
engine and the notification dispatcher only ever see edges.
*/
package monitoring
