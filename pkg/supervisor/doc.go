// Package supervisor wires monitoring, recovery, the integrator, and
// notification into one long-lived process: it owns startup and
// shutdown ordering, a periodic self-health check, host resource
// sampling, and degraded-mode back-pressure.
package supervisor
