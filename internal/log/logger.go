// SPDX-License-Identifier: MIT
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// slogLevel maps a LogLevel onto the backend level.
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelCritical
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG", "TRACE":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL", "CRITICAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// logWriter fans every formatted line out to stderr and, once SetLogFile
// was called, to a rotating log file.
type logWriter struct {
	mu         sync.Mutex
	stdOut     io.Writer
	logRotator *rotator.Rotator
}

func (w *logWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stdOut != nil {
		w.stdOut.Write(b)
	}
	if w.logRotator != nil {
		w.logRotator.Write(b)
	}
	return len(b), nil
}

// --- Global Logger State ---

var (
	// currentLevel holds the current global log level atomically.
	currentLevel atomic.Uint32

	writer  = &logWriter{stdOut: os.Stderr}
	backend = slog.NewBackend(writer)

	loggersMu sync.Mutex
	loggers   = make(map[string]slog.Logger)

	// mainLog backs the package level helpers below.
	mainLog = Logger("MAIN")
)

func init() {
	// Default level at startup. Can be overridden by config.
	SetLevel(LevelInfo)
}

// Logger returns the subsystem logger with the given tag (e.g. "AUDIO").
// Loggers are cached so repeated calls return the same instance, and they
// follow every later SetLevel call.
func Logger(subsys string) slog.Logger {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[subsys]; ok {
		return l
	}
	l := backend.Logger(subsys)
	l.SetLevel(GetLevel().slogLevel())
	loggers[subsys] = l
	return l
}

// SetLevel sets the global logging level atomically and applies it to all
// subsystem loggers.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))

	loggersMu.Lock()
	for _, l := range loggers {
		l.SetLevel(level.slogLevel())
	}
	loggersMu.Unlock()
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetLogFile starts duplicating log output into path. The file is rotated
// once it reaches 1MiB and up to 10 old files are kept.
func SetLogFile(path string) error {
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	r, err := rotator.New(path, 1024, false, 10)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	writer.mu.Lock()
	old := writer.logRotator
	writer.logRotator = r
	writer.mu.Unlock()

	if old != nil {
		return old.Close()
	}
	return nil
}

// Close flushes and closes the log file, if any.
func Close() error {
	writer.mu.Lock()
	r := writer.logRotator
	writer.logRotator = nil
	writer.mu.Unlock()

	if r != nil {
		return r.Close()
	}
	return nil
}

// setOutput replaces the console writer. Used by tests.
func setOutput(w io.Writer) io.Writer {
	writer.mu.Lock()
	defer writer.mu.Unlock()
	old := writer.stdOut
	writer.stdOut = w
	return old
}

// --- Public Logging Functions ---

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...interface{}) {
	mainLog.Debugf(format, v...)
}

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...interface{}) {
	mainLog.Infof(format, v...)
}

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...interface{}) {
	mainLog.Warnf(format, v...)
}

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...interface{}) {
	mainLog.Errorf(format, v...)
}

// Fatalf logs a formatted fatal message and exits the application.
// Fatal messages are always logged regardless of the current level.
func Fatalf(format string, v ...interface{}) {
	mainLog.SetLevel(slog.LevelTrace)
	mainLog.Criticalf(format, v...)
	Close()
	os.Exit(1)
}

// --- Functions without formatting (convenience) ---

// Debug logs a debug message if the level is appropriate.
func Debug(v ...interface{}) {
	mainLog.Debug(v...)
}

// Info logs an info message if the level is appropriate.
func Info(v ...interface{}) {
	mainLog.Info(v...)
}

// Warn logs a warning message if the level is appropriate.
func Warn(v ...interface{}) {
	mainLog.Warn(v...)
}

// Error logs an error message if the level is appropriate.
func Error(v ...interface{}) {
	mainLog.Error(v...)
}

// Fatal logs a fatal message and exits the application.
func Fatal(v ...interface{}) {
	Fatalf("%s", fmt.Sprint(v...))
}
