// Package logging provides config-driven categorized file-based logging for
// quorum. Logs are written to <state dir>/logs/ with one file per category.
// Logging is controlled by the logging section of the config file; when debug
// mode is off nothing is written.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Category represents a log category/system.
type Category string

const (
	CategoryBoot     Category = "boot"     // startup, config loading
	CategoryCouncil  Category = "council"  // dispatch orchestration
	CategoryProvider Category = "provider" // LLM provider calls
	CategoryPersona  Category = "persona"  // persona library, reloads
	CategoryAugment  Category = "augment"  // prompt augmentation
	CategorySearch   Category = "search"   // web search backends
	CategoryHistory  Category = "history"  // history store operations
	CategorySession  Category = "session"  // session management
)

// loggingConfig mirrors the logging section of the config file. Declared here
// rather than importing internal/config to avoid a cycle.
type loggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

type configFile struct {
	Logging loggingConfig `yaml:"logging"`
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	config    loggingConfig
	configMu  sync.RWMutex
	logLevel  int
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads the logging section of
// the config file at configPath. Call once at startup with the state dir
// (usually ~/.quorum).
func Initialize(stateDir, configPath string) error {
	if stateDir == "" {
		return fmt.Errorf("state dir required")
	}
	logsDir = filepath.Join(stateDir, "logs")

	if err := loadConfig(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] warning: could not load config: %v\n", err)
		config.DebugMode = false
	}

	if !config.DebugMode {
		return nil // silent no-op in production mode
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	Boot("=== quorum logging initialized ===")
	Boot("logs dir: %s, level: %s", logsDir, config.Level)
	return nil
}

func loadConfig(configPath string) error {
	configMu.Lock()
	defer configMu.Unlock()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			config.DebugMode = false
			return nil
		}
		return err
	}

	var cf configFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	config = cf.Logging

	switch config.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	return nil
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category. Returns a no-op
// logger when debug mode or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] warning: could not open %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if the logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// Convenience functions; no-ops when the category is disabled.

// Boot logs to the boot category.
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootError logs an error to the boot category.
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

// Council logs to the council category.
func Council(format string, args ...interface{}) { Get(CategoryCouncil).Info(format, args...) }

// CouncilDebug logs debug to the council category.
func CouncilDebug(format string, args ...interface{}) { Get(CategoryCouncil).Debug(format, args...) }

// CouncilWarn logs a warning to the council category.
func CouncilWarn(format string, args ...interface{}) { Get(CategoryCouncil).Warn(format, args...) }

// CouncilError logs an error to the council category.
func CouncilError(format string, args ...interface{}) { Get(CategoryCouncil).Error(format, args...) }

// Provider logs to the provider category.
func Provider(format string, args ...interface{}) { Get(CategoryProvider).Info(format, args...) }

// ProviderDebug logs debug to the provider category.
func ProviderDebug(format string, args ...interface{}) { Get(CategoryProvider).Debug(format, args...) }

// ProviderWarn logs a warning to the provider category.
func ProviderWarn(format string, args ...interface{}) { Get(CategoryProvider).Warn(format, args...) }

// ProviderError logs an error to the provider category.
func ProviderError(format string, args ...interface{}) { Get(CategoryProvider).Error(format, args...) }

// Persona logs to the persona category.
func Persona(format string, args ...interface{}) { Get(CategoryPersona).Info(format, args...) }

// PersonaWarn logs a warning to the persona category.
func PersonaWarn(format string, args ...interface{}) { Get(CategoryPersona).Warn(format, args...) }

// Augment logs to the augment category.
func Augment(format string, args ...interface{}) { Get(CategoryAugment).Info(format, args...) }

// AugmentWarn logs a warning to the augment category.
func AugmentWarn(format string, args ...interface{}) { Get(CategoryAugment).Warn(format, args...) }

// Search logs to the search category.
func Search(format string, args ...interface{}) { Get(CategorySearch).Info(format, args...) }

// SearchWarn logs a warning to the search category.
func SearchWarn(format string, args ...interface{}) { Get(CategorySearch).Warn(format, args...) }

// History logs to the history category.
func History(format string, args ...interface{}) { Get(CategoryHistory).Info(format, args...) }

// HistoryDebug logs debug to the history category.
func HistoryDebug(format string, args ...interface{}) { Get(CategoryHistory).Debug(format, args...) }

// HistoryError logs an error to the history category.
func HistoryError(format string, args ...interface{}) { Get(CategoryHistory).Error(format, args...) }

// Session logs to the session category.
func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}
