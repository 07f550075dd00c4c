/*
Package log provides structured logging for the supervisor, built on
zerolog with lumberjack-backed rotation.

Init configures the global Logger from a types.LoggingConfig: a
rotating file sink under LogDir (max size, backup count and
compression per config; no age-based removal) and, when
ConsoleLogging is set or LogDir is empty, a parallel stdout writer
that is human-readable unless StructuredFormat selects raw JSON.
Components obtain tagged child loggers via WithComponent rather than
writing to Logger directly, so every log line carries its origin.
*/
package log
