// Package logger provides structured logging using Zap.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	sugar *zap.SugaredLogger
	once  sync.Once
)

// Init initializes the global logger for the given environment.
// For "production", it uses a JSON encoder. For all other environments,
// it uses a human-readable console encoder. An optional level ("debug",
// "info", "warn", "error") overrides the environment default.
func Init(env string, level ...string) {
	once.Do(func() {
		var cfg zap.Config
		if env == "production" {
			cfg = zap.NewProductionConfig()
		} else {
			cfg = zap.NewDevelopmentConfig()
		}

		if len(level) > 0 && level[0] != "" {
			var lvl zapcore.Level
			if err := lvl.UnmarshalText([]byte(level[0])); err == nil {
				cfg.Level = zap.NewAtomicLevelAt(lvl)
			}
		}

		base, err := cfg.Build()
		if err != nil {
			// Fallback to nop logger if initialization fails.
			base = zap.NewNop()
		}

		sugar = base.Sugar()
	})
}

// Get returns the global sugared logger.
// If Init has not been called, it initializes a development logger.
func Get() *zap.SugaredLogger {
	if sugar == nil {
		Init("development")
	}
	return sugar
}

// Replace swaps the global logger and returns a func restoring the previous
// one. Tests use it to observe log output.
func Replace(l *zap.SugaredLogger) (restore func()) {
	prev := Get()
	sugar = l
	return func() { sugar = prev }
}

// ForHousehold returns a child logger tagged with the household ID.
func ForHousehold(householdID string) *zap.SugaredLogger {
	return Get().With("household_id", householdID)
}

// Sync flushes any buffered log entries. Call this before application exit.
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}
