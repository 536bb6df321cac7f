package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
	// LevelFatal is the fatal log level
	LevelFatal
)

var (
	currentLevel LogLevel
	levelOnce    sync.Once
	levelMu      sync.RWMutex

	outMu  sync.Mutex
	out    zerolog.Logger
	outSet bool
	file   *os.File
)

// initLevel initializes the log level from environment variables
func initLevel() {
	levelOnce.Do(func() {
		levelMu.Lock()
		defer levelMu.Unlock()
		currentLevel = parseLevel(os.Getenv("DEBUG"), os.Getenv("LOG_LEVEL"))
	})
}

func parseLevel(debug, level string) LogLevel {
	switch strings.ToLower(debug) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}

	switch strings.ToLower(level) {
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

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	levelMu.RLock()
	defer levelMu.RUnlock()
	return currentLevel
}

// SetLevel overrides the level taken from the environment.
func SetLevel(level LogLevel) {
	initLevel()
	levelMu.Lock()
	currentLevel = level
	levelMu.Unlock()
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Options configures where records are written.
type Options struct {
	// FilePath, when set, receives JSON records in addition to stdout.
	FilePath string
	// Writer replaces stdout. Used by tests.
	Writer io.Writer
}

// Configure sets up the zerolog output. It may be called once at startup;
// without it records go to stdout.
func Configure(opts Options) error {
	outMu.Lock()
	defer outMu.Unlock()

	var console io.Writer
	switch {
	case opts.Writer != nil:
		console = opts.Writer
	case term.IsTerminal(int(os.Stdout.Fd())):
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}
	default:
		console = os.Stdout
	}

	writers := []io.Writer{console}
	if opts.FilePath != "" {
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", opts.FilePath, err)
		}
		if file != nil {
			_ = file.Close()
		}
		file = f
		writers = append(writers, f)
	}

	out = zerolog.New(zerolog.MultiLevelWriter(writers...))
	outSet = true
	return nil
}

func logger() zerolog.Logger {
	outMu.Lock()
	defer outMu.Unlock()
	if !outSet {
		var w io.Writer = os.Stdout
		if term.IsTerminal(int(os.Stdout.Fd())) {
			w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}
		}
		out = zerolog.New(w)
		outSet = true
	}
	return out
}

func zerologLevel(l LogLevel) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelFatal:
		return zerolog.FatalLevel
	default:
		return zerolog.NoLevel
	}
}

// Logger tags every record with the name of the goroutine or worker that
// produced it.
type Logger struct {
	source string
}

var std = &Logger{}

// WithSource returns a logger whose records carry the given source name,
// e.g. "IndexingWorker 2".
func WithSource(source string) *Logger {
	return &Logger{source: source}
}

// Source returns the source name attached to the logger.
func (l *Logger) Source() string {
	return l.source
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if level < GetLevel() {
		return
	}
	emit(Record{
		Time:    time.Now(),
		Level:   level,
		Source:  l.source,
		Message: fmt.Sprintf(format, args...),
	})
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) { l.log(LevelInfo, format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) { l.log(LevelWarn, format, args...) }

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) { l.log(LevelError, format, args...) }

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	std.log(LevelDebug, format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	std.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	std.log(LevelWarn, format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	std.log(LevelError, format, args...)
}

// Printf logs a message regardless of the configured level
func Printf(format string, args ...interface{}) {
	emit(Record{Time: time.Now(), Level: LevelInfo, Message: fmt.Sprintf(format, args...)})
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// MarshalText lets records serialize levels by name.
func (l LogLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}
