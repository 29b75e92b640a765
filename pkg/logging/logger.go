// Package logging is the daemon's component-tagged leveled logger.
// Components name the subsystem emitting the line ("main", "daemon",
// "bridge", "audio", "loop"); sinks are the console, a rotating file,
// or both, chosen by configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Fooderapp/WheelerHost-V1/pkg/config"
	"gopkg.in/lumberjack.v2"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level; unrecognized values fall
// back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes timestamped, component-tagged lines to its sinks.
// All methods are safe for concurrent use.
type Logger struct {
	level      Level
	structured bool

	mu       sync.Mutex
	sinks    []io.Writer
	rotating *lumberjack.Logger
}

// New builds a Logger from the daemon configuration. With no file
// configured, output goes to the console; with a file configured, the
// console sink is added only when logging.console is set.
func New(cfg *config.Config) (*Logger, error) {
	l := &Logger{
		level:      ParseLevel(cfg.Logging.Level),
		structured: cfg.Logging.Structured,
	}

	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		l.rotating = &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSize,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAge,
			Compress:   cfg.Logging.Compress,
		}
		l.sinks = append(l.sinks, l.rotating)
	}

	if cfg.Logging.Console || l.rotating == nil {
		l.sinks = append(l.sinks, os.Stdout)
	}

	return l, nil
}

// Close flushes and closes the rotating file sink, if any.
func (l *Logger) Close() error {
	if l.rotating != nil {
		return l.rotating.Close()
	}
	return nil
}

func (l *Logger) emit(level Level, component, message string, fields map[string]interface{}) {
	if level < l.level {
		return
	}
	line := l.format(level, component, message, fields)

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.sinks {
		fmt.Fprintln(w, line)
	}
}

func (l *Logger) format(level Level, component, message string, fields map[string]interface{}) string {
	ts := time.Now().Format("2006-01-02 15:04:05.000")

	var fieldStr string
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if l.structured {
				parts = append(parts, fmt.Sprintf(`"%s":"%v"`, k, fields[k]))
			} else {
				parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
			}
		}
		if l.structured {
			fieldStr = fmt.Sprintf(" {%s}", strings.Join(parts, ","))
		} else {
			fieldStr = fmt.Sprintf(" [%s]", strings.Join(parts, " "))
		}
	}

	if l.structured {
		return fmt.Sprintf(`{"time":"%s","level":"%s","component":"%s","message":"%s"%s}`,
			ts, level, component, message, fieldStr)
	}
	return fmt.Sprintf("%s [%s] %s: %s%s", ts, level, component, message, fieldStr)
}

// Debug logs at debug level.
func (l *Logger) Debug(component, message string, fields ...map[string]interface{}) {
	l.emit(LevelDebug, component, message, first(fields))
}

// Info logs at info level.
func (l *Logger) Info(component, message string, fields ...map[string]interface{}) {
	l.emit(LevelInfo, component, message, first(fields))
}

// Warn logs at warn level.
func (l *Logger) Warn(component, message string, fields ...map[string]interface{}) {
	l.emit(LevelWarn, component, message, first(fields))
}

// Error logs at error level.
func (l *Logger) Error(component, message string, fields ...map[string]interface{}) {
	l.emit(LevelError, component, message, first(fields))
}

// Debugf logs a formatted message at debug level.
func (l *Logger) Debugf(component, format string, args ...interface{}) {
	l.emit(LevelDebug, component, fmt.Sprintf(format, args...), nil)
}

// Infof logs a formatted message at info level.
func (l *Logger) Infof(component, format string, args ...interface{}) {
	l.emit(LevelInfo, component, fmt.Sprintf(format, args...), nil)
}

// Warnf logs a formatted message at warn level.
func (l *Logger) Warnf(component, format string, args ...interface{}) {
	l.emit(LevelWarn, component, fmt.Sprintf(format, args...), nil)
}

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(component, format string, args ...interface{}) {
	l.emit(LevelError, component, fmt.Sprintf(format, args...), nil)
}

func first(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// InitGlobalLogger replaces the process-wide logger with one built
// from cfg.
func InitGlobalLogger(cfg *config.Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
	return nil
}

// CloseGlobalLogger closes the process-wide logger's file sink.
func CloseGlobalLogger() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil {
		return globalLogger.Close()
	}
	return nil
}

func global() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = &Logger{level: LevelInfo, sinks: []io.Writer{os.Stdout}}
	}
	return globalLogger
}

// Package-level helpers write through the process-wide logger.

func Debug(component, message string, fields ...map[string]interface{}) {
	global().Debug(component, message, fields...)
}

func Info(component, message string, fields ...map[string]interface{}) {
	global().Info(component, message, fields...)
}

func Warn(component, message string, fields ...map[string]interface{}) {
	global().Warn(component, message, fields...)
}

func Error(component, message string, fields ...map[string]interface{}) {
	global().Error(component, message, fields...)
}

func Debugf(component, format string, args ...interface{}) {
	global().Debugf(component, format, args...)
}

func Infof(component, format string, args ...interface{}) {
	global().Infof(component, format, args...)
}

func Warnf(component, format string, args ...interface{}) {
	global().Warnf(component, format, args...)
}

func Errorf(component, format string, args ...interface{}) {
	global().Errorf(component, format, args...)
}
