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
// it uses a human-readable console encoder. A non-empty level overrides the
// environment's default level; "test" silences everything below warn.
func Init(env, level string) {
	once.Do(func() {
		var cfg zap.Config
		switch env {
		case "production":
			cfg = zap.NewProductionConfig()
		case "test":
			cfg = zap.NewDevelopmentConfig()
			cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		default:
			cfg = zap.NewDevelopmentConfig()
		}

		if level != "" {
			if lvl, err := zapcore.ParseLevel(level); err == nil {
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
		Init("development", "")
	}
	return sugar
}

// Named returns a child of the global logger scoped to a component.
func Named(component string) *zap.SugaredLogger {
	return Get().Named(component)
}

// Sync flushes any buffered log entries. Call this before application exit.
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}
