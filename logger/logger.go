// Package logger builds the zap logger shared by services, workers and handlers.
package logger

import (
	"log"

	"go.uber.org/zap"
)

// New creates a production zap logger at the given level ("debug", "info", ...).
// An unparsable level falls back to info.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		log.Printf("unknown log level %q, using info", level)
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = lvl

	return cfg.Build()
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *zap.Logger {
	return zap.NewNop()
}
