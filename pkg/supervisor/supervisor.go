package supervisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kafka-guardian/guardian/pkg/action"
	"github.com/kafka-guardian/guardian/pkg/config"
	"github.com/kafka-guardian/guardian/pkg/integrator"
	"github.com/kafka-guardian/guardian/pkg/log"
	"github.com/kafka-guardian/guardian/pkg/metrics"
	"github.com/kafka-guardian/guardian/pkg/monitoring"
	"github.com/kafka-guardian/guardian/pkg/notify"
	"github.com/kafka-guardian/guardian/pkg/probe"
	"github.com/kafka-guardian/guardian/pkg/recovery"
	"github.com/kafka-guardian/guardian/pkg/types"
)

const (
	selfHealthInterval     = 30 * time.Second
	resourceSampleInterval = 60 * time.Second

	// degradedErrorThreshold/degradedErrorWindow mirror the original
	// implementation's "more than 3 errors in 5 minutes" degraded-mode
	// trigger.
	degradedErrorThreshold = 3
	degradedErrorWindow    = 5 * time.Minute

	// shutdownErrorThreshold is the unhandled-error count past which the
	// supervisor gives up and shuts itself down.
	shutdownErrorThreshold = 5

	// queueDepth/integrator thresholds the self-health loop warns on.
	deliveryQueueWarnDepth = 100
	retryQueueWarnDepth    = 50
	activeRecoveriesWarn   = 10
	nodesInCooldownWarn    = 5
	recoveryAttemptsWarn   = 3

	// cpuRestoreAfter is how long a CPU-triggered throttle holds before
	// the supervisor restores the normal interval and concurrency cap.
	cpuRestoreAfter = 5 * time.Minute

	maxMonitoringInterval  = 300 * time.Second
	minDegradedInterval    = 60 * time.Second
	degradedMaxConcurrency = 2
	cpuThrottleConcurrency = 1
	normalMaxConcurrency   = integrator.DefaultMaxConcurrentRecoveries

	logRetentionUnderMemoryPressure = 7 * 24 * time.Hour
	logRetentionUnderDiskPressure   = 3 * 24 * time.Hour
	memoryPressureHistoryLimit      = 10
)

// Status is the aggregate snapshot returned by Status() and served at
// the /status endpoint.
type Status struct {
	Running           bool                  `json:"running"`
	ClusterName       string                `json:"cluster_name"`
	StartedAt         time.Time             `json:"started_at"`
	UptimeSeconds     float64               `json:"uptime_seconds"`
	DegradedMode      bool                  `json:"degraded_mode"`
	ErrorCount        int32                 `json:"error_count"`
	LastErrorAt       *time.Time            `json:"last_error_at,omitempty"`
	Monitoring        monitoring.Statistics `json:"monitoring"`
	Integrator        integrator.Statistics `json:"integrator"`
	Notification      notify.Statistics     `json:"notification"`
	Resources         ResourceSnapshot      `json:"resources"`
	RegisteredProbes  []string              `json:"registered_probes"`
	RegisteredActions []string              `json:"registered_actions"`
}

// Supervisor owns the lifecycle of every other component and the
// periodic checks that keep the cluster's supervision itself healthy.
type Supervisor struct {
	logger zerolog.Logger

	cluster    *types.ClusterConfig
	loggingCfg types.LoggingConfig
	probes     *probe.Registry
	actions    *action.Registry

	monitoring       *monitoring.Service
	engine           *recovery.Engine
	dispatcher       *notify.Dispatcher
	integrator       *integrator.Integrator
	sampler          *resourceSampler
	metricsCollector *metrics.Collector

	baseInterval time.Duration

	startedAt time.Time
	running   atomic.Bool
	degraded  atomic.Bool

	errCount    atomic.Int32
	errMu       sync.Mutex
	lastErrorAt time.Time

	cpuThrottled atomic.Bool

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	stopInternal chan struct{}
	wg           sync.WaitGroup
}

// New wires monitoring, recovery, notification, and the integrator
// together from a loaded configuration. It does not start any
// background loop; call Start for that.
func New(loaded *config.Loaded, probes *probe.Registry, actions *action.Registry) (*Supervisor, error) {
	monitor := monitoring.NewService(loaded.Cluster, probes)
	engine := recovery.NewEngine(actions, monitor)
	dispatcher := notify.New()
	integ := integrator.New(loaded.Cluster, engine, monitor.CurrentInterval)

	dispatcher.RegisterNotifier(notify.NewLogNotifier())
	if loaded.Notification.SMTPHost != "" {
		dispatcher.RegisterNotifier(notify.NewSMTPNotifier(loaded.Notification))
	}

	diskPath := loaded.Logging.LogDir
	if diskPath == "" {
		diskPath = "."
	}
	sampler, err := newResourceSampler(diskPath)
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}

	s := &Supervisor{
		logger:           log.WithComponent("supervisor"),
		cluster:          loaded.Cluster,
		loggingCfg:       loaded.Logging,
		probes:           probes,
		actions:          actions,
		monitoring:       monitor,
		engine:           engine,
		dispatcher:       dispatcher,
		integrator:       integ,
		sampler:          sampler,
		metricsCollector: metrics.NewCollector(loaded.Cluster, monitor, integ, dispatcher),
		baseInterval:     time.Duration(loaded.Cluster.MonitoringIntervalSeconds) * time.Second,
		shutdownCh:       make(chan struct{}),
	}

	monitor.RegisterUnhealthyCallback(integ.OnUnhealthy)
	monitor.RegisterHealthyCallback(integ.OnHealthy)

	integ.RegisterEscalationHandler(func(nodeID string, history []types.RecoveryResult) {
		dispatcher.SendFailureAlert(nodeID,
			fmt.Sprintf("recovery exhausted for %s", nodeID),
			fmt.Sprintf("node %s exhausted all configured recovery actions after %d attempts", nodeID, len(history)))
	})
	integ.RegisterRecoveryHandler(func(event types.RecoveryEvent) {
		dispatcher.SendRecoveryConfirmation(event.NodeID,
			fmt.Sprintf("recovered %s", event.NodeID),
			fmt.Sprintf("node %s recovered via action %q", event.NodeID, event.Result.ActionName))
	})

	return s, nil
}

// Start brings every component online in dependency order and spawns
// the self-health and resource-sampling background tasks.
func (s *Supervisor) Start() {
	s.startedAt = time.Now()
	s.running.Store(true)
	s.stopInternal = make(chan struct{})

	s.dispatcher.Start()
	metrics.UpdateComponent("notification", true, "dispatcher started")

	s.monitoring.Start()
	metrics.UpdateComponent("monitoring", true, "probe loops started")
	metrics.UpdateComponent("recovery", true, "engine ready")
	metrics.UpdateComponent("integrator", true, "scheduling ready")

	s.metricsCollector.Start()

	s.wg.Add(2)
	go s.runLoop("self-health", selfHealthInterval, s.selfHealthCheck)
	go s.runLoop("resource-sampler", resourceSampleInterval, s.sampleResources)

	s.logStartupSummary()
}

// Run blocks until ctx is cancelled or an internal shutdown is
// triggered (via Shutdown or the unhandled-error threshold), then
// stops every component in reverse order.
func (s *Supervisor) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-s.shutdownCh:
	}
	s.Stop()
	return nil
}

// Shutdown requests a graceful stop from outside Run's select, e.g.
// from a signal handler.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Stop shuts every component down in reverse startup order. Each stage
// is independently bounded: monitoring and the dispatcher already
// enforce their own drain deadlines, and the background tasks here are
// given the same five seconds to notice stopInternal and exit.
func (s *Supervisor) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	close(s.stopInternal)
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn().Msg("background task drain deadline exceeded")
	}

	s.metricsCollector.Stop()

	s.monitoring.Stop()
	metrics.UpdateComponent("monitoring", false, "stopped")

	s.dispatcher.Stop()
	metrics.UpdateComponent("notification", false, "stopped")

	s.logger.Info().Msg("supervisor shutdown complete")
}

func (s *Supervisor) logStartupSummary() {
	brokers := len(s.cluster.KafkaBrokers())
	zookeepers := len(s.cluster.ZooKeeperNodes())
	s.logger.Info().
		Str("cluster_name", s.cluster.ClusterName).
		Int("kafka_brokers", brokers).
		Int("zookeeper_nodes", zookeepers).
		Dur("monitoring_interval", s.baseInterval).
		Strs("registered_probes", s.probes.Names()).
		Strs("registered_actions", s.actions.Names()).
		Msg("supervisor started")
}

// runLoop ticks fn every interval, isolating panics the same way the
// monitoring and recovery packages isolate callback panics, until
// stopInternal closes.
func (s *Supervisor) runLoop(name string, interval time.Duration, fn func()) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopInternal:
			return
		case <-ticker.C:
			s.runIsolated(name, fn)
		}
	}
}

func (s *Supervisor) runIsolated(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.reportError(name, fmt.Errorf("panic: %v", r))
		}
	}()
	fn()
}

// reportError increments the unhandled-error counter, logs at
// critical severity, and triggers shutdown once the counter exceeds
// shutdownErrorThreshold. This is the Go-idiomatic stand-in for the
// original's process-wide exception hook: components isolate their own
// panics internally and only reach here through runIsolated when a
// supervisor-owned background task itself fails.
func (s *Supervisor) reportError(source string, err error) {
	count := s.errCount.Add(1)
	s.errMu.Lock()
	s.lastErrorAt = time.Now()
	s.errMu.Unlock()
	metrics.SupervisorErrorCount.Set(float64(count))

	internalErr := &types.InternalError{Source: source, Err: err}
	s.logger.WithLevel(zerolog.FatalLevel).Err(internalErr).Str("source", source).Int32("error_count", count).
		Msg("unhandled error in supervisor background task")

	if count > shutdownErrorThreshold {
		s.logger.WithLevel(zerolog.FatalLevel).Int32("error_count", count).
			Msg("unhandled error threshold exceeded, shutting down")
		s.Shutdown()
	}
}

// selfHealthCheck mirrors the original implementation's system-health
// pass: it restarts monitoring if it stopped unexpectedly, warns on
// queue and concurrency back-pressure, and evaluates degraded mode.
func (s *Supervisor) selfHealthCheck() {
	if !s.monitoring.IsActive() {
		s.logger.Warn().Msg("monitoring service is not active; restarting")
		s.monitoring.Start()
	}

	notifyStats := s.dispatcher.GetStatistics()
	if notifyStats.PrimaryQueueDepth > deliveryQueueWarnDepth {
		s.logger.Warn().Int("depth", notifyStats.PrimaryQueueDepth).
			Msg("notification delivery queue depth is high")
	}
	if notifyStats.RetryQueueDepth > retryQueueWarnDepth {
		s.logger.Warn().Int("depth", notifyStats.RetryQueueDepth).
			Msg("notification retry queue depth is high")
	}

	integStats := s.integrator.GetStatistics()
	if integStats.ActiveRecoveries > activeRecoveriesWarn {
		s.logger.Warn().Int("active", integStats.ActiveRecoveries).
			Msg("integrator active recoveries count is high")
	}
	if integStats.NodesInCooldown > nodesInCooldownWarn {
		s.logger.Warn().Int("nodes", integStats.NodesInCooldown).
			Msg("integrator nodes-in-cooldown count is high")
	}

	for _, node := range s.cluster.Nodes {
		if len(s.engine.History(node.NodeID)) >= recoveryAttemptsWarn {
			s.logger.Warn().Str("node_id", node.NodeID).
				Msg("node has accumulated repeated recovery attempts")
		}
	}

	s.evaluateDegradedMode()
}

// evaluateDegradedMode enters degraded mode when recent unhandled
// errors exceed degradedErrorThreshold within degradedErrorWindow, or
// monitoring is unexpectedly inactive; it exits once neither condition
// holds, restoring the cluster's configured defaults.
func (s *Supervisor) evaluateDegradedMode() {
	s.errMu.Lock()
	errsRecent := s.errCount.Load() > degradedErrorThreshold && time.Since(s.lastErrorAt) < degradedErrorWindow
	s.errMu.Unlock()

	shouldDegrade := errsRecent || !s.monitoring.IsActive()

	switch {
	case shouldDegrade && s.degraded.CompareAndSwap(false, true):
		s.enterDegradedMode()
	case !shouldDegrade && s.degraded.CompareAndSwap(true, false):
		s.exitDegradedMode()
	}
}

func (s *Supervisor) enterDegradedMode() {
	interval := s.monitoring.CurrentInterval() * 2
	if interval < minDegradedInterval {
		interval = minDegradedInterval
	}
	s.monitoring.SetInterval(interval)
	s.integrator.SetMaxConcurrency(degradedMaxConcurrency)
	metrics.DegradedMode.Set(1)
	s.logger.Warn().Dur("interval", interval).Msg("entering degraded mode")
}

func (s *Supervisor) exitDegradedMode() {
	s.monitoring.SetInterval(s.baseInterval)
	s.integrator.SetMaxConcurrency(normalMaxConcurrency)
	s.errCount.Store(0)
	s.errMu.Lock()
	s.lastErrorAt = time.Time{}
	s.errMu.Unlock()
	metrics.DegradedMode.Set(0)
	metrics.SupervisorErrorCount.Set(0)
	s.logger.Info().Msg("exiting degraded mode")
}

// sampleResources reads host resource usage and reacts to sustained
// pressure the same way the original implementation's resource
// handlers did: trimming retained history under memory pressure,
// pruning logs under disk pressure, and throttling monitoring/recovery
// concurrency under CPU pressure.
func (s *Supervisor) sampleResources() {
	snap, err := s.sampler.sample()
	if err != nil {
		s.logger.Error().Err(err).Msg("resource sampling failed")
		return
	}

	metrics.ResourceUsagePercent.WithLabelValues("memory").Set(snap.Memory.PercentUsed)
	metrics.ResourceUsagePercent.WithLabelValues("disk").Set(snap.Disk.PercentUsed)
	metrics.ResourceUsagePercent.WithLabelValues("cpu").Set(snap.CPU.PercentUsed)

	if snap.Memory.Status == resourceCritical {
		s.handleHighMemory(snap.Memory.PercentUsed)
	}
	if snap.Disk.Status == resourceCritical {
		s.handleHighDisk(snap.Disk.PercentUsed)
	}
	if snap.CPU.Status == resourceCritical {
		s.handleHighCPU(snap.CPU.PercentUsed)
	}
}

func (s *Supervisor) handleHighMemory(percent float64) {
	s.logger.Warn().Float64("percent", percent).Msg("high memory usage, trimming retained history")
	for _, node := range s.cluster.Nodes {
		s.engine.TrimHistory(node.NodeID, memoryPressureHistoryLimit)
	}
	log.PruneOlderThan(s.loggingCfg.LogDir, logRetentionUnderMemoryPressure)
}

func (s *Supervisor) handleHighDisk(percent float64) {
	s.logger.Warn().Float64("percent", percent).Msg("high disk usage, pruning logs")
	log.PruneOlderThan(s.loggingCfg.LogDir, logRetentionUnderDiskPressure)
	log.RemoveTempFiles(s.loggingCfg.LogDir)
}

func (s *Supervisor) handleHighCPU(percent float64) {
	if !s.cpuThrottled.CompareAndSwap(false, true) {
		return
	}

	interval := s.monitoring.CurrentInterval() * 2
	if interval > maxMonitoringInterval {
		interval = maxMonitoringInterval
	}
	s.monitoring.SetInterval(interval)
	s.integrator.SetMaxConcurrency(cpuThrottleConcurrency)
	s.logger.Warn().Float64("percent", percent).Dur("interval", interval).
		Msg("high cpu usage, throttling monitoring interval and recovery concurrency")

	s.wg.Add(1)
	go s.restoreAfterCPUThrottle()
}

// restoreAfterCPUThrottle undoes handleHighCPU's throttle after
// cpuRestoreAfter, unless the supervisor is shutting down or has since
// entered degraded mode (which owns the interval/concurrency knobs).
func (s *Supervisor) restoreAfterCPUThrottle() {
	defer s.wg.Done()
	timer := time.NewTimer(cpuRestoreAfter)
	defer timer.Stop()

	select {
	case <-s.stopInternal:
		return
	case <-timer.C:
	}

	s.cpuThrottled.Store(false)
	if s.degraded.Load() {
		return
	}
	s.monitoring.SetInterval(s.baseInterval)
	s.integrator.SetMaxConcurrency(normalMaxConcurrency)
	s.logger.Info().Msg("cpu throttle window elapsed, restoring normal interval and concurrency")
}

// Status returns a point-in-time snapshot for the /status endpoint.
func (s *Supervisor) Status() Status {
	s.errMu.Lock()
	lastErr := s.lastErrorAt
	s.errMu.Unlock()

	var lastErrPtr *time.Time
	if !lastErr.IsZero() {
		lastErrPtr = &lastErr
	}

	resources, err := s.sampler.sample()
	if err != nil {
		s.logger.Error().Err(err).Msg("status resource sampling failed")
	}

	return Status{
		Running:           s.running.Load(),
		ClusterName:       s.cluster.ClusterName,
		StartedAt:         s.startedAt,
		UptimeSeconds:     time.Since(s.startedAt).Seconds(),
		DegradedMode:      s.degraded.Load(),
		ErrorCount:        s.errCount.Load(),
		LastErrorAt:       lastErrPtr,
		Monitoring:        s.monitoring.GetStatistics(),
		Integrator:        s.integrator.GetStatistics(),
		Notification:      s.dispatcher.GetStatistics(),
		Resources:         resources,
		RegisteredProbes:  s.probes.Names(),
		RegisteredActions: s.actions.Names(),
	}
}
