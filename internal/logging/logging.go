// Package logging owns the process-wide zap logger.
package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	log   *zap.Logger
	sugar *zap.SugaredLogger
)

// New builds a logger for the given level (debug, info, warn, error).
// Development loggers write human-readable console output.
func New(level string, development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	return cfg.Build()
}

// Init builds a logger with New and installs it globally.
func Init(level string, development bool) error {
	l, err := New(level, development)
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// Set installs l as the package logger and as zap's global logger.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	zap.ReplaceGlobals(l)
	if log != nil {
		_ = log.Sync()
	}
	log = l
	sugar = l.Sugar()
}

// L returns the installed logger, or zap's global one before Init.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if log != nil {
		return log
	}
	return zap.L()
}

// S returns the sugared form of L.
func S() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if sugar != nil {
		return sugar
	}
	return zap.S()
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if log != nil {
		_ = log.Sync()
	}
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
