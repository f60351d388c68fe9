// Package logging provides config-driven categorized file-based logging for swarmfuzz.
// Traces are written to .swarmfuzz/logs/ with a separate file per category.
// Nothing is written unless debug_mode is enabled in the config.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryLoop   Category = "loop"   // Orchestrator cycles, state persistence
	CategorySwarm  Category = "swarm"  // Member lifecycle and per-cycle actions
	CategoryAPI    Category = "api"    // World-service HTTP calls
	CategoryDetect Category = "detect" // Detector evaluations and streaks
	CategoryReport Category = "report" // Tracker dedup and publishing
	CategoryChaos  Category = "chaos"  // Escalation ladder transitions
)

// Settings mirrors the relevant part of config.LoggingConfig to avoid
// a circular import.
type Settings struct {
	DebugMode  bool
	Categories map[string]bool
}

type fileLogger struct {
	logger *log.Logger
	file   *os.File
}

var (
	mu       sync.RWMutex
	loggers  = make(map[Category]*fileLogger)
	logsDir  string
	settings Settings
	ready    bool
)

// Initialize sets up the logging directory. Call once at startup with the
// working directory; a zero Settings disables all trace output.
func Initialize(workdir string, s Settings) error {
	mu.Lock()
	defer mu.Unlock()

	settings = s
	ready = false
	if !s.DebugMode {
		return nil
	}

	logsDir = filepath.Join(workdir, ".swarmfuzz", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	ready = true
	return nil
}

// Close flushes and closes all open category files.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
	}
	loggers = make(map[Category]*fileLogger)
	ready = false
}

func enabled(cat Category) bool {
	if !ready || !settings.DebugMode {
		return false
	}
	if settings.Categories == nil {
		return true
	}
	on, found := settings.Categories[string(cat)]
	return !found || on
}

func get(cat Category) *fileLogger {
	mu.RLock()
	l, ok := loggers[cat]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}

	path := filepath.Join(logsDir, string(cat)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		// Degrade to a discarded logger rather than failing the caller.
		l = &fileLogger{logger: log.New(os.Stderr, "["+string(cat)+"] ", log.LstdFlags)}
	} else {
		l = &fileLogger{logger: log.New(f, "", log.LstdFlags|log.Lmicroseconds), file: f}
	}
	loggers[cat] = l
	return l
}

// Trace writes a formatted line to the category's file when enabled.
func Trace(cat Category, format string, args ...any) {
	if !enabled(cat) {
		return
	}
	get(cat).logger.Printf(format, args...)
}
