/*
Package integrator sits between monitoring and the recovery engine. It
enforces that at most one recovery run is active per node, bounds
total concurrent runs with a resizable semaphore, queues excess
Unhealthy callbacks in arrival order (each node at most once), drops
callbacks that arrive during a node's post-outcome cooldown, and
counts Healthy/Unhealthy/Healthy flaps that complete within twice the
monitoring interval.
*/
package integrator
