// Package config provides configuration management for the ETL service.
// This file handles structured logging with slog.
package config

import (
	"context"
	"log/slog"
	"os"
)

// contextKey is a type for context keys in this package.
type contextKey string

const (
	// RunIDKey is the context key for the current run's identifier.
	RunIDKey contextKey = "run_id"
)

// Logger wraps slog.Logger with ETL-specific chaining helpers.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new structured logger based on the environment.
// In production, it outputs JSON format. In development, it outputs text format.
func NewLogger(env, level string) *Logger {
	var handler slog.Handler

	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// WithRun adds the current run's identifier to the logger.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{Logger: l.Logger.With("run_id", runID)}
}

// WithStream adds the stream name (e.g. "invoices", "ledgers") to the logger.
func (l *Logger) WithStream(stream string) *Logger {
	return &Logger{Logger: l.Logger.With("stream", stream)}
}

// WithError adds an error to the logger.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.Logger.With("error", err.Error())}
}

// WithField adds a single field to the logger.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{Logger: l.Logger.With(key, value)}
}

// WithContext extracts a run id from context, if present.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if runID, ok := ctx.Value(RunIDKey).(string); ok && runID != "" {
		return l.WithRun(runID)
	}
	return l
}

// Global logger instance
var globalLogger *Logger

// InitLogger initializes the global logger.
func InitLogger(env, level string) {
	globalLogger = NewLogger(env, level)
}

// L returns the global logger, initializing a development default if unset.
func L() *Logger {
	if globalLogger == nil {
		InitLogger("development", "info")
	}
	return globalLogger
}
