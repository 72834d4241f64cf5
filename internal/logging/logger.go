// Package logging provides config-driven categorized file-based logging for evoloop.
// Logs are written to .evoloop/logs/ with separate files per category.
// Logging is controlled by the logging section of .evoloop/config.yaml - when
// debug_mode is false, no logs are written.
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

// Category represents a log category/system
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup/initialization
	CategoryEvolution  Category = "evolution"  // Cycle orchestration
	CategoryAuditor    Category = "auditor"    // Cognitive audit detectors
	CategoryGoals      Category = "goals"      // Goal lifecycle
	CategoryCorrection Category = "correction" // Self-correction policy
	CategoryVCS        Category = "vcs"        // Git gateway operations
	CategoryGuard      Category = "guard"      // Protected paths, validation, backups
	CategoryGenerator  Category = "generator"  // Idea generator calls
)

// loggingConfig mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type loggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// configFile structure for reading .evoloop/config.yaml
type configFile struct {
	Logging loggingConfig `yaml:"logging"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	workspace string
	config    loggingConfig
	configMu  sync.RWMutex
	logLevel  int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads config.
// Should be called once at startup with the workspace path.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	workspace = ws
	logsDir = filepath.Join(workspace, ".evoloop", "logs")

	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		config.DebugMode = false
	}

	// Only create the logs directory when debug mode is on
	if !config.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	bootLogger := Get(CategoryBoot)
	bootLogger.Info("=== evoloop logging initialized ===")
	bootLogger.Info("Workspace: %s", workspace)
	bootLogger.Info("Logs directory: %s", logsDir)
	bootLogger.Info("Log level: %s", config.Level)

	return nil
}

// loadConfig reads the logging section from .evoloop/config.yaml
func loadConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	configPath := filepath.Join(workspace, ".evoloop", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config = no file logging
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
	case "info":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}

	return nil
}

// ReloadConfig reloads the config from disk.
func ReloadConfig() error {
	return loadConfig()
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
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

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	if logsDir == "" {
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

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation trivial
	date := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", date, category)
	logPath := filepath.Join(logsDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
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

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown)
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

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootError logs error to the boot category
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

// Evolution logs to the evolution category
func Evolution(format string, args ...interface{}) {
	Get(CategoryEvolution).Info(format, args...)
}

// EvolutionDebug logs debug to the evolution category
func EvolutionDebug(format string, args ...interface{}) {
	Get(CategoryEvolution).Debug(format, args...)
}

// EvolutionWarn logs warning to the evolution category
func EvolutionWarn(format string, args ...interface{}) {
	Get(CategoryEvolution).Warn(format, args...)
}

// EvolutionError logs error to the evolution category
func EvolutionError(format string, args ...interface{}) {
	Get(CategoryEvolution).Error(format, args...)
}

// Auditor logs to the auditor category
func Auditor(format string, args ...interface{}) {
	Get(CategoryAuditor).Info(format, args...)
}

// AuditorDebug logs debug to the auditor category
func AuditorDebug(format string, args ...interface{}) {
	Get(CategoryAuditor).Debug(format, args...)
}

// Goals logs to the goals category
func Goals(format string, args ...interface{}) {
	Get(CategoryGoals).Info(format, args...)
}

// GoalsDebug logs debug to the goals category
func GoalsDebug(format string, args ...interface{}) {
	Get(CategoryGoals).Debug(format, args...)
}

// GoalsWarn logs warning to the goals category
func GoalsWarn(format string, args ...interface{}) {
	Get(CategoryGoals).Warn(format, args...)
}

// Correction logs to the correction category
func Correction(format string, args ...interface{}) {
	Get(CategoryCorrection).Info(format, args...)
}

// CorrectionWarn logs warning to the correction category
func CorrectionWarn(format string, args ...interface{}) {
	Get(CategoryCorrection).Warn(format, args...)
}

// VCS logs to the vcs category
func VCS(format string, args ...interface{}) {
	Get(CategoryVCS).Info(format, args...)
}

// VCSDebug logs debug to the vcs category
func VCSDebug(format string, args ...interface{}) {
	Get(CategoryVCS).Debug(format, args...)
}

// VCSWarn logs warning to the vcs category
func VCSWarn(format string, args ...interface{}) {
	Get(CategoryVCS).Warn(format, args...)
}

// Guard logs to the guard category
func Guard(format string, args ...interface{}) {
	Get(CategoryGuard).Info(format, args...)
}

// GuardDebug logs debug to the guard category
func GuardDebug(format string, args ...interface{}) {
	Get(CategoryGuard).Debug(format, args...)
}

// GuardWarn logs warning to the guard category
func GuardWarn(format string, args ...interface{}) {
	Get(CategoryGuard).Warn(format, args...)
}

// Generator logs to the generator category
func Generator(format string, args ...interface{}) {
	Get(CategoryGenerator).Info(format, args...)
}

// GeneratorDebug logs debug to the generator category
func GeneratorDebug(format string, args ...interface{}) {
	Get(CategoryGenerator).Debug(format, args...)
}

// GeneratorError logs error to the generator category
func GeneratorError(format string, args ...interface{}) {
	Get(CategoryGenerator).Error(format, args...)
}

// =============================================================================
// CYCLE-SCOPED LOGGING - correlates all entries of one evolution cycle
// =============================================================================

// CycleLogger provides cycle-scoped logging with a correlation number
type CycleLogger struct {
	logger *Logger
	cycle  int
}

// WithCycle creates a cycle-scoped logger
func WithCycle(category Category, cycle int) *CycleLogger {
	return &CycleLogger{logger: Get(category), cycle: cycle}
}

func (c *CycleLogger) formatMsg(format string, args ...interface{}) string {
	return fmt.Sprintf("[cycle:%d] %s", c.cycle, fmt.Sprintf(format, args...))
}

func (c *CycleLogger) Debug(format string, args ...interface{}) {
	if c.logger.logger == nil || logLevel > LevelDebug {
		return
	}
	c.logger.logger.Printf("[DEBUG] %s", c.formatMsg(format, args...))
}

func (c *CycleLogger) Info(format string, args ...interface{}) {
	if c.logger.logger == nil || logLevel > LevelInfo {
		return
	}
	c.logger.logger.Printf("[INFO] %s", c.formatMsg(format, args...))
}

func (c *CycleLogger) Warn(format string, args ...interface{}) {
	if c.logger.logger == nil || logLevel > LevelWarn {
		return
	}
	c.logger.logger.Printf("[WARN] %s", c.formatMsg(format, args...))
}

func (c *CycleLogger) Error(format string, args ...interface{}) {
	if c.logger.logger == nil {
		return
	}
	c.logger.logger.Printf("[ERROR] %s", c.formatMsg(format, args...))
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

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

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
