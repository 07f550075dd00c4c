package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kafka-guardian/guardian/pkg/types"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the global logger instance, initialized by Init.
var Logger zerolog.Logger

var mu sync.Mutex
var rotator *lumberjack.Logger

// Init configures the global logger from a LoggingConfig. It is safe
// to call once at startup; components obtain child loggers via
// WithComponent rather than reaching into this package afterward.
func Init(cfg types.LoggingConfig) error {
	mu.Lock()
	defer mu.Unlock()

	level := parseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)

	var writers []io.Writer

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return err
		}
		rotator = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "guardian.log"),
			MaxSize:    maxOrDefault(cfg.MaxFileSizeMB, 100),
			MaxBackups: cfg.BackupCount,
			Compress:   cfg.CompressBackups,
		}
		writers = append(writers, rotator)
	}

	if cfg.ConsoleLogging || cfg.LogDir == "" {
		if cfg.StructuredFormat {
			writers = append(writers, os.Stdout)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: time.RFC3339,
			})
		}
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = os.Stdout
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}

func maxOrDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "critical", "fatal":
		return zerolog.FatalLevel
	case "info", "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

// PruneOlderThan removes every regular file in the configured log
// directory whose modification time is older than the given duration. It is invoked by the
// supervisor's resource sampler under memory/disk pressure.
func PruneOlderThan(logDir string, age time.Duration) {
	if logDir == "" {
		return
	}
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-age)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(logDir, entry.Name()))
		}
	}
}

// RemoveTempFiles deletes *.tmp files from the log directory, used
// when the supervisor reacts to high disk usage.
func RemoveTempFiles(logDir string) {
	if logDir == "" {
		return
	}
	matches, err := filepath.Glob(filepath.Join(logDir, "*.tmp"))
	if err != nil {
		return
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
}

// WithComponent creates a child logger tagged with a component field.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithNodeID creates a child logger tagged with a node_id field.
func WithNodeID(logger zerolog.Logger, nodeID string) zerolog.Logger {
	return logger.With().Str("node_id", nodeID).Logger()
}
