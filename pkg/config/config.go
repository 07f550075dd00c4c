package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/kafka-guardian/guardian/pkg/action"
	"github.com/kafka-guardian/guardian/pkg/probe"
	"github.com/kafka-guardian/guardian/pkg/types"
)

// candidateFiles is the working-directory discovery order used when
// no explicit --config path is given.
var candidateFiles = []string{"config.yaml", "config.yml", "config.json", "config.ini"}

// fileConfig mirrors the on-disk schema; viper unmarshals directly
// into it before the loader validates and freezes the result.
type fileConfig struct {
	Cluster      clusterSection      `mapstructure:"cluster"`
	Notification notificationSection `mapstructure:"notification"`
	Logging      loggingSection      `mapstructure:"logging"`
}

type clusterSection struct {
	ClusterName               string        `mapstructure:"cluster_name"`
	MonitoringIntervalSeconds int           `mapstructure:"monitoring_interval_seconds"`
	DefaultRetryPolicy        retryPolicy   `mapstructure:"default_retry_policy"`
	Nodes                     []nodeSection `mapstructure:"nodes"`
}

type retryPolicy struct {
	MaxAttempts       int     `mapstructure:"max_attempts"`
	InitialDelay      int     `mapstructure:"initial_delay_seconds"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	MaxDelay          int     `mapstructure:"max_delay_seconds"`
}

type nodeSection struct {
	NodeID            string       `mapstructure:"node_id"`
	NodeType          string       `mapstructure:"node_type"`
	Host              string       `mapstructure:"host"`
	Port              int          `mapstructure:"port"`
	JMXPort           int          `mapstructure:"jmx_port"`
	MonitoringMethods []string     `mapstructure:"monitoring_methods"`
	RecoveryActions   []string     `mapstructure:"recovery_actions"`
	RetryPolicy       *retryPolicy `mapstructure:"retry_policy"`
}

type notificationSection struct {
	SMTPHost      string   `mapstructure:"smtp_host"`
	SMTPPort      int      `mapstructure:"smtp_port"`
	SMTPUsername  string   `mapstructure:"smtp_username"`
	SMTPPassword  string   `mapstructure:"smtp_password"`
	SenderEmail   string   `mapstructure:"sender_email"`
	Recipients    []string `mapstructure:"recipients"`
	SubjectPrefix string   `mapstructure:"subject_prefix"`
}

type loggingSection struct {
	LogDir           string `mapstructure:"log_dir"`
	LogLevel         string `mapstructure:"log_level"`
	MaxFileSizeMB    int    `mapstructure:"max_file_size_mb"`
	BackupCount      int    `mapstructure:"backup_count"`
	CompressBackups  bool   `mapstructure:"compress_backups"`
	ConsoleLogging   bool   `mapstructure:"console_logging"`
	StructuredFormat bool   `mapstructure:"structured_format"`
}

// Loaded is the frozen result of a successful Load call.
type Loaded struct {
	ConfigFile   string
	Cluster      *types.ClusterConfig
	Notification types.NotificationConfig
	Logging      types.LoggingConfig
}

// Load discovers the configuration file (explicitPath, or the
// candidateFiles search order in the working directory), parses it
// with viper, and validates monitoring methods / recovery actions
// against the supplied registries. Any failure is a *types.ConfigurationError.
func Load(explicitPath string, probes *probe.Registry, actions *action.Registry) (*Loaded, error) {
	path, err := resolvePath(explicitPath)
	if err != nil {
		return nil, &types.ConfigurationError{Reason: "no configuration file found", Err: err}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.log_level", "info")
	v.SetDefault("logging.max_file_size_mb", 100)
	v.SetDefault("logging.backup_count", 5)
	v.SetDefault("logging.compress_backups", true)
	v.SetDefault("logging.console_logging", true)
	v.SetDefault("logging.structured_format", false)
	if err := v.ReadInConfig(); err != nil {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("reading %s", path), Err: err}
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, &types.ConfigurationError{Reason: fmt.Sprintf("parsing %s", path), Err: err}
	}

	cluster, err := toClusterConfig(fc.Cluster)
	if err != nil {
		return nil, &types.ConfigurationError{Reason: "validating cluster config", Err: err}
	}

	for _, node := range cluster.Nodes {
		if err := probes.Validate(node.MonitoringMethods); err != nil {
			return nil, &types.ConfigurationError{Reason: fmt.Sprintf("node %q", node.NodeID), Err: err}
		}
		if err := actions.Validate(node.RecoveryActions); err != nil {
			return nil, &types.ConfigurationError{Reason: fmt.Sprintf("node %q", node.NodeID), Err: err}
		}
	}

	return &Loaded{
		ConfigFile:   path,
		Cluster:      cluster,
		Notification: toNotificationConfig(fc.Notification),
		Logging:      toLoggingConfig(fc.Logging),
	}, nil
}

// resolvePath honors an explicit --config path, or searches
// candidateFiles in the working directory in order.
func resolvePath(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", err
		}
		return explicitPath, nil
	}
	for _, candidate := range candidateFiles {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("none of %v exist in the working directory", candidateFiles)
}

func toClusterConfig(c clusterSection) (*types.ClusterConfig, error) {
	if c.ClusterName == "" {
		return nil, fmt.Errorf("cluster.cluster_name is required")
	}
	if c.MonitoringIntervalSeconds <= 0 {
		return nil, fmt.Errorf("cluster.monitoring_interval_seconds must be > 0")
	}
	if len(c.Nodes) == 0 {
		return nil, fmt.Errorf("cluster.nodes must not be empty")
	}

	defaultPolicy, err := toRetryPolicy(c.DefaultRetryPolicy, types.DefaultRetryPolicy())
	if err != nil {
		return nil, fmt.Errorf("cluster.default_retry_policy: %w", err)
	}

	seen := make(map[string]bool, len(c.Nodes))
	nodes := make([]*types.NodeConfig, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.NodeID == "" {
			return nil, fmt.Errorf("node_id is required")
		}
		if seen[n.NodeID] {
			return nil, fmt.Errorf("duplicate node_id %q", n.NodeID)
		}
		seen[n.NodeID] = true

		nodeType, err := toNodeType(n.NodeType)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.NodeID, err)
		}

		node := &types.NodeConfig{
			NodeID:            n.NodeID,
			NodeType:          nodeType,
			Host:              n.Host,
			Port:              n.Port,
			JMXPort:           n.JMXPort,
			MonitoringMethods: n.MonitoringMethods,
			RecoveryActions:   n.RecoveryActions,
		}
		if n.RetryPolicy != nil {
			policy, err := toRetryPolicy(*n.RetryPolicy, defaultPolicy)
			if err != nil {
				return nil, fmt.Errorf("node %q retry_policy: %w", n.NodeID, err)
			}
			node.RetryPolicy = &policy
		}
		nodes = append(nodes, node)
	}

	return &types.ClusterConfig{
		ClusterName:               c.ClusterName,
		MonitoringIntervalSeconds: c.MonitoringIntervalSeconds,
		DefaultRetryPolicy:        defaultPolicy,
		Nodes:                     nodes,
	}, nil
}

// toRetryPolicy fills unset fields from fallback, then validates the
// merged policy against spec.md's §3 invariants.
func toRetryPolicy(p retryPolicy, fallback types.RetryPolicy) (types.RetryPolicy, error) {
	merged := fallback
	if p.MaxAttempts > 0 {
		merged.MaxAttempts = p.MaxAttempts
	}
	if p.InitialDelay > 0 {
		merged.InitialDelay = time.Duration(p.InitialDelay) * time.Second
	}
	if p.BackoffMultiplier > 0 {
		merged.BackoffMultiplier = p.BackoffMultiplier
	}
	if p.MaxDelay > 0 {
		merged.MaxDelay = time.Duration(p.MaxDelay) * time.Second
	}

	if merged.MaxAttempts < 1 {
		return merged, fmt.Errorf("max_attempts must be >= 1")
	}
	if merged.BackoffMultiplier < 1.0 {
		return merged, fmt.Errorf("backoff_multiplier must be >= 1.0")
	}
	if merged.MaxDelay < merged.InitialDelay {
		return merged, fmt.Errorf("max_delay_seconds must be >= initial_delay_seconds")
	}
	return merged, nil
}

func toNodeType(s string) (types.NodeType, error) {
	switch s {
	case string(types.NodeTypeKafkaBroker):
		return types.NodeTypeKafkaBroker, nil
	case string(types.NodeTypeZooKeeper):
		return types.NodeTypeZooKeeper, nil
	default:
		return "", fmt.Errorf("unknown node_type %q", s)
	}
}

func toNotificationConfig(n notificationSection) types.NotificationConfig {
	return types.NotificationConfig{
		SMTPHost:      n.SMTPHost,
		SMTPPort:      n.SMTPPort,
		SMTPUsername:  n.SMTPUsername,
		SMTPPassword:  n.SMTPPassword,
		SenderEmail:   n.SenderEmail,
		Recipients:    n.Recipients,
		SubjectPrefix: n.SubjectPrefix,
	}
}

// toLoggingConfig converts the parsed section; field defaults are
// applied by viper.SetDefault before unmarshalling, so every value
// here is already the file's value or the default.
func toLoggingConfig(l loggingSection) types.LoggingConfig {
	return types.LoggingConfig{
		LogDir:           l.LogDir,
		LogLevel:         l.LogLevel,
		MaxFileSizeMB:    l.MaxFileSizeMB,
		BackupCount:      l.BackupCount,
		CompressBackups:  l.CompressBackups,
		ConsoleLogging:   l.ConsoleLogging,
		StructuredFormat: l.StructuredFormat,
	}
}
