// Package logging provides categorized structured logging for counsel.
// Each subsystem logs through its own named category; categories can be
// individually disabled from config. Logging is a thin layer over zap so
// callers get structured fields without wiring a logger through every
// constructor.
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
	CategoryBoot        Category = "boot"        // Startup, catalog loading
	CategoryCatalog     Category = "catalog"     // Definition loading/validation
	CategoryTrigger     Category = "trigger"     // Trigger detection
	CategoryComposition Category = "composition" // Situational composition updates
	CategoryKnowledge   Category = "knowledge"   // Knowledge state mutations
	CategorySelector    Category = "selector"    // Pattern selection pipeline
	CategoryAssembler   Category = "assembler"   // Context assembly / token budget
	CategoryEngine      Category = "engine"      // Turn orchestration
	CategoryStore       Category = "store"       // Snapshot persistence
	CategoryGenerate    Category = "generate"    // External generator calls
)

var (
	mu       sync.RWMutex
	root     *zap.Logger
	loggers  = make(map[Category]*zap.SugaredLogger)
	disabled = make(map[Category]bool)
)

func init() {
	// Safe default so packages can log before Initialize runs (tests, tools).
	root = zap.NewNop()
}

// Initialize configures the logging backend. level is one of
// debug/info/warn/error; format is "json" or "console". categories maps
// category names to enabled/disabled; absent categories default to enabled.
func Initialize(level, format string, categories map[string]bool) error {
	var lvl zapcore.Level
	switch level {
	case "", "info":
		lvl = zapcore.InfoLevel
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		return fmt.Errorf("unknown log level %q", level)
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	root = logger
	loggers = make(map[Category]*zap.SugaredLogger)
	disabled = make(map[Category]bool)
	for name, enabled := range categories {
		if !enabled {
			disabled[Category(name)] = true
		}
	}
	return nil
}

// Get returns the sugared logger for a category. Disabled categories
// receive a no-op logger.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	var l *zap.SugaredLogger
	if disabled[cat] {
		l = zap.NewNop().Sugar()
	} else {
		l = root.Named(string(cat)).Sugar()
	}
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
