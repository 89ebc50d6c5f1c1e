// Package logging provides categorized zap loggers for the BridgeNLP client.
// Each subsystem logs under its own named logger so output can be filtered
// per concern. Until Init is called every category logs to a nop logger,
// which keeps library code free of nil checks.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryAuth    Category = "auth"    // credential provider, identity toolkit calls
	CategorySession Category = "session" // session store transitions
	CategoryAPI     Category = "api"     // backend HTTP calls
	CategorySync    Category = "sync"    // resource synchronizer, bootstrap
	CategoryStore   Category = "store"   // snapshot persistence
	CategoryCLI     Category = "cli"     // command layer
)

var (
	mu    sync.RWMutex
	root  = zap.NewNop()
	sugar = map[Category]*zap.SugaredLogger{}
)

// Init builds the process-wide logger. level is one of debug, info, warn,
// error. file is optional; when set, output goes there instead of stderr.
func Init(level, file string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	if file != "" {
		cfg.OutputPaths = []string{file}
		cfg.ErrorOutputPaths = []string{file}
	}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	root = logger
	sugar = map[Category]*zap.SugaredLogger{}
	mu.Unlock()
	return nil
}

// Get returns the sugared logger for a category, creating it on first use.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if s, ok := sugar[cat]; ok {
		mu.RUnlock()
		return s
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if s, ok := sugar[cat]; ok {
		return s
	}
	s := root.Named(string(cat)).Sugar()
	sugar[cat] = s
	return s
}

// Sync flushes buffered log entries. Called before process exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
