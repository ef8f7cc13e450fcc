// Package logging provides categorized zap logging for peterbot.
// Every category is a named child of one root logger so a single level and
// encoder configuration applies across the bot.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup, wiring, shutdown
	CategoryDispatch   Category = "dispatch"   // Skip decisions and per-trigger orchestration
	CategoryAssembly   Category = "assembly"   // Prompt, image and history assembly
	CategoryStream     Category = "stream"     // Reconciler creates/edits
	CategoryGeneration Category = "generation" // Model backend calls
	CategoryHistory    Category = "history"    // Conversation store
	CategoryPlatform   Category = "platform"   // Chat platform adapters
	CategoryMetrics    Category = "metrics"    // Metrics server
	CategoryPersona    Category = "persona"    // Persona file loading and reloads
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level       string
	Format      string // json, console
	Development bool
}

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	loggers = make(map[Category]*zap.Logger)
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Initialize builds the root zap logger from cfg.
func Initialize(cfg Config) error {
	var zcfg zap.Config
	if cfg.Development || cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		if cfg.Level != "" {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		lvl = zapcore.InfoLevel
	}
	level.SetLevel(lvl)
	zcfg.Level = level

	l, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	SetLogger(l)

	Boot("logging initialized (level=%s, format=%s)", lvl, zcfg.Encoding)
	return nil
}

// SetLogger replaces the root logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	root = l
	loggers = make(map[Category]*zap.Logger)
}

// SetLevel changes the level of the root logger built by Initialize.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// Root returns the root logger.
func Root() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Get returns (or creates) the named logger for the given category.
func Get(category Category) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := root.Named(string(category))
	loggers[category] = l
	return l
}

// Sync flushes buffered entries.
func Sync() {
	_ = Root().Sync()
}

func logf(category Category, lvl zapcore.Level, format string, args ...interface{}) {
	l := Get(category)
	if ce := l.Check(lvl, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write()
	}
}

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { logf(CategoryBoot, zapcore.InfoLevel, format, args...) }

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	logf(CategoryBoot, zapcore.DebugLevel, format, args...)
}

// BootWarn logs warning to the boot category
func BootWarn(format string, args ...interface{}) {
	logf(CategoryBoot, zapcore.WarnLevel, format, args...)
}

// BootError logs error to the boot category
func BootError(format string, args ...interface{}) {
	logf(CategoryBoot, zapcore.ErrorLevel, format, args...)
}

// Dispatch logs to the dispatch category
func Dispatch(format string, args ...interface{}) {
	logf(CategoryDispatch, zapcore.InfoLevel, format, args...)
}

// DispatchDebug logs debug to the dispatch category
func DispatchDebug(format string, args ...interface{}) {
	logf(CategoryDispatch, zapcore.DebugLevel, format, args...)
}

// DispatchWarn logs warning to the dispatch category
func DispatchWarn(format string, args ...interface{}) {
	logf(CategoryDispatch, zapcore.WarnLevel, format, args...)
}

// DispatchError logs error to the dispatch category
func DispatchError(format string, args ...interface{}) {
	logf(CategoryDispatch, zapcore.ErrorLevel, format, args...)
}

// Assembly logs to the assembly category
func Assembly(format string, args ...interface{}) {
	logf(CategoryAssembly, zapcore.InfoLevel, format, args...)
}

// AssemblyDebug logs debug to the assembly category
func AssemblyDebug(format string, args ...interface{}) {
	logf(CategoryAssembly, zapcore.DebugLevel, format, args...)
}

// AssemblyWarn logs warning to the assembly category
func AssemblyWarn(format string, args ...interface{}) {
	logf(CategoryAssembly, zapcore.WarnLevel, format, args...)
}

// Stream logs to the stream category
func Stream(format string, args ...interface{}) {
	logf(CategoryStream, zapcore.InfoLevel, format, args...)
}

// StreamDebug logs debug to the stream category
func StreamDebug(format string, args ...interface{}) {
	logf(CategoryStream, zapcore.DebugLevel, format, args...)
}

// StreamWarn logs warning to the stream category
func StreamWarn(format string, args ...interface{}) {
	logf(CategoryStream, zapcore.WarnLevel, format, args...)
}

// StreamError logs error to the stream category
func StreamError(format string, args ...interface{}) {
	logf(CategoryStream, zapcore.ErrorLevel, format, args...)
}

// Generation logs to the generation category
func Generation(format string, args ...interface{}) {
	logf(CategoryGeneration, zapcore.InfoLevel, format, args...)
}

// GenerationDebug logs debug to the generation category
func GenerationDebug(format string, args ...interface{}) {
	logf(CategoryGeneration, zapcore.DebugLevel, format, args...)
}

// GenerationWarn logs warning to the generation category
func GenerationWarn(format string, args ...interface{}) {
	logf(CategoryGeneration, zapcore.WarnLevel, format, args...)
}

// GenerationError logs error to the generation category
func GenerationError(format string, args ...interface{}) {
	logf(CategoryGeneration, zapcore.ErrorLevel, format, args...)
}

// History logs to the history category
func History(format string, args ...interface{}) {
	logf(CategoryHistory, zapcore.InfoLevel, format, args...)
}

// HistoryDebug logs debug to the history category
func HistoryDebug(format string, args ...interface{}) {
	logf(CategoryHistory, zapcore.DebugLevel, format, args...)
}

// HistoryError logs error to the history category
func HistoryError(format string, args ...interface{}) {
	logf(CategoryHistory, zapcore.ErrorLevel, format, args...)
}

// Platform logs to the platform category
func Platform(format string, args ...interface{}) {
	logf(CategoryPlatform, zapcore.InfoLevel, format, args...)
}

// PlatformDebug logs debug to the platform category
func PlatformDebug(format string, args ...interface{}) {
	logf(CategoryPlatform, zapcore.DebugLevel, format, args...)
}

// PlatformWarn logs warning to the platform category
func PlatformWarn(format string, args ...interface{}) {
	logf(CategoryPlatform, zapcore.WarnLevel, format, args...)
}

// PlatformError logs error to the platform category
func PlatformError(format string, args ...interface{}) {
	logf(CategoryPlatform, zapcore.ErrorLevel, format, args...)
}

// Metrics logs to the metrics category
func Metrics(format string, args ...interface{}) {
	logf(CategoryMetrics, zapcore.InfoLevel, format, args...)
}

// MetricsError logs error to the metrics category
func MetricsError(format string, args ...interface{}) {
	logf(CategoryMetrics, zapcore.ErrorLevel, format, args...)
}

// Persona logs to the persona category
func Persona(format string, args ...interface{}) {
	logf(CategoryPersona, zapcore.InfoLevel, format, args...)
}

// PersonaWarn logs warning to the persona category
func PersonaWarn(format string, args ...interface{}) {
	logf(CategoryPersona, zapcore.WarnLevel, format, args...)
}

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	logf(t.category, zapcore.DebugLevel, "%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		logf(t.category, zapcore.WarnLevel, "%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		logf(t.category, zapcore.DebugLevel, "%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
