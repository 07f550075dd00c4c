// Command guardian is the entry point for the Kafka/ZooKeeper
// self-healing supervisor.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kafka-guardian/guardian/pkg/action"
	"github.com/kafka-guardian/guardian/pkg/config"
	"github.com/kafka-guardian/guardian/pkg/log"
	"github.com/kafka-guardian/guardian/pkg/metrics"
	"github.com/kafka-guardian/guardian/pkg/probe"
	"github.com/kafka-guardian/guardian/pkg/supervisor"
	"github.com/kafka-guardian/guardian/pkg/types"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "guardian",
	Short:   "guardian — a self-healing supervisor for Kafka/ZooKeeper clusters",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("guardian version %s\nCommit: %s\n", Version, Commit))
	rootCmd.Flags().String("config", "", "Path to the configuration file (yaml/yml/json/ini); searches the working directory if omitted")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the Prometheus/health/status HTTP server")
}

func run(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	probes := probe.NewRegistry()
	actions := registerBuiltinActions(action.NewRegistry())

	loaded, err := config.Load(configPath, probes, actions)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if err := log.Init(loaded.Logging); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}

	sup, err := supervisor.New(loaded, probes, actions)
	if err != nil {
		return fmt.Errorf("wiring supervisor: %w", err)
	}

	sup.Start()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", metrics.HealthzHandler())
	mux.HandleFunc("/readyz", metrics.ReadyzHandler())
	mux.HandleFunc("/livez", metrics.LivezHandler())
	mux.HandleFunc("/status", metrics.StatusHandler(func() any { return sup.Status() }))

	httpServer := &http.Server{Addr: metricsAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
	log.Logger.Info().Str("addr", metricsAddr).Msg("metrics/health/status endpoints listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sigCh:
			log.Logger.Info().Msg("shutdown signal received")
		case err := <-errCh:
			log.Logger.Error().Err(err).Msg("metrics server failed")
		}
		cancel()
	}()

	_ = sup.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	return nil
}

// registerBuiltinActions registers the fixed set of recovery-action
// capabilities a cluster's recovery_actions lists may reference. The
// configuration schema names actions by string rather than defining
// them inline (see spec.md §6), so the binary owns this set the same
// way probe.NewRegistry owns the built-in monitoring methods.
func registerBuiltinActions(actions *action.Registry) *action.Registry {
	actions.Register("restart", action.ExecutorFunc(restartServiceForNode))
	actions.Register("restart_kafka", action.NewSystemctlAction("restart", "kafka"))
	actions.Register("restart_zookeeper", action.NewSystemctlAction("restart", "zookeeper"))
	actions.Register("reinstall", action.NewShellAction("apt-get install --reinstall -y kafka zookeeper"))
	return actions
}

// restartServiceForNode picks the systemd unit to restart based on the
// node's configured type, so a single "restart" name works uniformly
// across a mixed kafka_broker/zookeeper cluster.
func restartServiceForNode(ctx context.Context, node *types.NodeConfig, timeout time.Duration) action.Result {
	unit := "kafka"
	if node.NodeType == types.NodeTypeZooKeeper {
		unit = "zookeeper"
	}
	return action.NewSystemctlAction("restart", unit).Execute(ctx, node, timeout)
}
