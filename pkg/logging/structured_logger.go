package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds configuration for the structured logger
type Config struct {
	Level       LogLevel `json:"level" yaml:"level"`
	Format      string   `json:"format" yaml:"format"` // "json" or "text"
	ServiceName string   `json:"service_name" yaml:"service_name"`
	Environment string   `json:"environment" yaml:"environment"`
	Component   string   `json:"component" yaml:"component"`
	AddSource   bool     `json:"add_source" yaml:"add_source"`
}

// StructuredLogger provides structured logging for the promotion gate
type StructuredLogger struct {
	*slog.Logger
	serviceName string
	environment string
	component   string
}

// NewStructuredLogger creates a new structured logger instance
func NewStructuredLogger(config Config) *StructuredLogger {
	return newStructuredLogger(config, os.Stdout)
}

func newStructuredLogger(config Config, out io.Writer) *StructuredLogger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	switch strings.ToLower(config.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	return &StructuredLogger{
		Logger:      slog.New(handler),
		serviceName: config.ServiceName,
		environment: config.Environment,
		component:   config.Component,
	}
}

// WithComponent creates a logger with a specific component context
func (sl *StructuredLogger) WithComponent(component string) *StructuredLogger {
	return &StructuredLogger{
		Logger:      sl.Logger,
		serviceName: sl.serviceName,
		environment: sl.environment,
		component:   component,
	}
}

// Component returns the component this logger is scoped to
func (sl *StructuredLogger) Component() string {
	return sl.component
}

// InfoWithContext logs an info message with full service context
func (sl *StructuredLogger) InfoWithContext(msg string, args ...any) {
	sl.Logger.Info(msg, sl.withServiceContext(args...)...)
}

// WarnWithContext logs a warning message with full service context
func (sl *StructuredLogger) WarnWithContext(msg string, args ...any) {
	sl.Logger.Warn(msg, sl.withServiceContext(args...)...)
}

// ErrorWithContext logs an error message with full service context
func (sl *StructuredLogger) ErrorWithContext(msg string, err error, args ...any) {
	attrs := sl.withServiceContext(args...)
	if err != nil {
		attrs = append(attrs, "error", err.Error(), "error_type", fmt.Sprintf("%T", err))
	}
	sl.Logger.Error(msg, attrs...)
}

// DebugWithContext logs a debug message with full service context
func (sl *StructuredLogger) DebugWithContext(msg string, args ...any) {
	sl.Logger.Debug(msg, sl.withServiceContext(args...)...)
}

// LogOperation logs the start and completion of an operation
func (sl *StructuredLogger) LogOperation(operationName string, fn func() error) error {
	start := time.Now()

	sl.InfoWithContext("Operation started", "operation", operationName)

	err := fn()
	duration := time.Since(start)

	if err != nil {
		sl.ErrorWithContext("Operation failed", err,
			"operation", operationName,
			"duration_ms", duration.Milliseconds(),
		)
	} else {
		sl.InfoWithContext("Operation completed",
			"operation", operationName,
			"duration_ms", duration.Milliseconds(),
		)
	}

	return err
}

// LogStateTransition logs a deployment state change
func (sl *StructuredLogger) LogStateTransition(runID, from, to string) {
	sl.InfoWithContext("Deployment state changed",
		"run_id", runID,
		"from_state", from,
		"to_state", to,
	)
}

// LogTestResult logs the outcome of a single harness test case
func (sl *StructuredLogger) LogTestResult(name, family string, success bool, duration time.Duration) {
	if success {
		sl.InfoWithContext("Test passed",
			"test", name,
			"family", family,
			"duration_ms", duration.Milliseconds(),
		)
		return
	}
	sl.WarnWithContext("Test failed",
		"test", name,
		"family", family,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogAlert logs a fired alert
func (sl *StructuredLogger) LogAlert(id, severity, metric string, value, threshold float64) {
	sl.WarnWithContext("Alert fired",
		"alert_id", id,
		"severity", severity,
		"metric", metric,
		"value", value,
		"threshold", threshold,
	)
}

func (sl *StructuredLogger) withServiceContext(args ...any) []any {
	attrs := []any{
		"service", sl.serviceName,
		"environment", sl.environment,
		"component", sl.component,
	}
	return append(attrs, args...)
}

func parseLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
