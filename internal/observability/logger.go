// Package observability provides structured logging and metrics collection
// for the self-improvement control plane.
//
// Logger wraps log/slog with component-specific context fields.
// Metrics collects counters and samples over snapshots, anomalies, tasks,
// and deployment outcomes.
package observability

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Logger wraps slog with persistent component context.
type Logger struct {
	mu        sync.RWMutex
	inner     *slog.Logger
	component string
	fields    []slog.Attr
}

// NewLogger creates a structured logger for a given component.
// Output defaults to os.Stderr if w is nil.
func NewLogger(component string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return &Logger{
		inner:     slog.New(handler),
		component: component,
	}
}

// NewLoggerWithHandler creates a logger with a custom slog handler.
func NewLoggerWithHandler(component string, h slog.Handler) *Logger {
	return &Logger{
		inner:     slog.New(h),
		component: component,
	}
}

// With returns a new Logger with additional persistent fields.
func (l *Logger) With(key string, value any) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{
		inner:     l.inner.With(slog.Any(key, value)),
		component: l.component,
		fields:    append(l.fields, slog.Any(key, value)),
	}
}

// attrs prepends the component name to the arguments.
func (l *Logger) attrs(msg string, args []any) (string, []any) {
	return msg, append([]any{slog.String("component", l.component)}, args...)
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Debug(msg, args...)
}

// Info logs at INFO level.
func (l *Logger) Info(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Info(msg, args...)
}

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Warn(msg, args...)
}

// Error logs at ERROR level.
func (l *Logger) Error(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Error(msg, args...)
}

// Snapshot logs a telemetry snapshot having been processed.
func (l *Logger) Snapshot(seq uint64, anomalies int, args ...any) {
	allArgs := append([]any{
		slog.String("component", l.component),
		slog.Uint64("seq", seq),
		slog.Int("anomalies", anomalies),
	}, args...)
	l.inner.Info("snapshot processed", allArgs...)
}

// Anomaly logs a detected anomaly crossing the task-generation threshold.
func (l *Logger) Anomaly(metric, severity string, args ...any) {
	allArgs := append([]any{
		slog.String("component", l.component),
		slog.String("metric", metric),
		slog.String("severity", severity),
	}, args...)
	l.inner.Info("anomaly", allArgs...)
}

// Deployment logs a deployment pipeline outcome.
func (l *Logger) Deployment(changeID, outcome string, args ...any) {
	allArgs := append([]any{
		slog.String("component", l.component),
		slog.String("change_id", changeID),
		slog.String("outcome", outcome),
	}, args...)
	l.inner.Info("deployment", allArgs...)
}

// Component returns the component name associated with this logger.
func (l *Logger) Component() string {
	return l.component
}
