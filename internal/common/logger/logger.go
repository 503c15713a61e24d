// Package logger provides the levelled logger shared by all commands.
//
// Terminal output honours --verbose and --quiet. When a log file is
// enabled it receives every line, debug included, with a timestamp, so a
// quiet checkall still leaves a full trace of HTTP requests and swaps.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents the logging level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the level name used in the log file.
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
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// terminalPrefix marks warnings and errors on the terminal
func (l Level) terminalPrefix() string {
	switch l {
	case LevelWarn:
		return "warning: "
	case LevelError:
		return "error: "
	default:
		return ""
	}
}

// Logger writes levelled lines to a terminal writer and an optional file.
type Logger struct {
	mu     sync.Mutex
	level  Level
	out    io.Writer
	file   *os.File
	now    func() time.Time
	prefix string
}

// New creates a logger at LevelInfo writing to out.
func New(out io.Writer) *Logger {
	return &Logger{level: LevelInfo, out: out, now: time.Now}
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the process-wide logger writing to stderr
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(os.Stderr)
	})
	return defaultLogger
}

// SetLevel sets the terminal logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput redirects terminal lines to out
func (l *Logger) SetOutput(out io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = out
}

// SetVerbose enables debug output
func (l *Logger) SetVerbose(verbose bool) {
	if verbose {
		l.SetLevel(LevelDebug)
	}
}

// SetQuiet hides everything but errors
func (l *Logger) SetQuiet(quiet bool) {
	if quiet {
		l.SetLevel(LevelError)
	}
}

// EnableFileLogging appends to external-updater.log in LogDir.
func (l *Logger) EnableFileLogging() error {
	logDir, err := LogDir()
	if err != nil {
		return err
	}
	return l.EnableFileLoggingAt(filepath.Join(logDir, "external-updater.log"))
}

// EnableFileLoggingAt appends to the file at path, replacing any file
// enabled before.
func (l *Logger) EnableFileLoggingAt(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
	l.file = f
	return nil
}

// Close closes the log file if open
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

// LogDir returns $XDG_STATE_HOME/external-updater/logs, defaulting
// XDG_STATE_HOME to ~/.local/state.
func LogDir() (string, error) {
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "external-updater", "logs"), nil
}

func (l *Logger) log(level Level, prefix, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if prefix != "" {
		msg = prefix + ": " + msg
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if level >= l.level {
		fmt.Fprintln(l.out, level.terminalPrefix()+msg)
	}
	if l.file != nil {
		fmt.Fprintf(l.file, "[%s] %s: %s\n", l.now().Format("2006-01-02 15:04:05"), level, msg)
	}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.log(LevelDebug, "", format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(LevelInfo, "", format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(LevelWarn, "", format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(LevelError, "", format, args...) }

// Scoped prefixes every line with the name it was created for, typically
// a project path, so interleaved concurrent checks stay readable.
type Scoped struct {
	l    *Logger
	name string
}

// For returns a logger whose lines start with "name: ".
func (l *Logger) For(name string) Scoped {
	return Scoped{l: l, name: name}
}

func (s Scoped) Debug(format string, args ...interface{}) { s.l.log(LevelDebug, s.name, format, args...) }
func (s Scoped) Info(format string, args ...interface{})  { s.l.log(LevelInfo, s.name, format, args...) }
func (s Scoped) Warn(format string, args ...interface{})  { s.l.log(LevelWarn, s.name, format, args...) }
func (s Scoped) Error(format string, args ...interface{}) { s.l.log(LevelError, s.name, format, args...) }

// Package-level convenience functions
func Debug(format string, args ...interface{}) { Default().Debug(format, args...) }
func Info(format string, args ...interface{})  { Default().Info(format, args...) }
func Warn(format string, args ...interface{})  { Default().Warn(format, args...) }
func Error(format string, args ...interface{}) { Default().Error(format, args...) }
func For(name string) Scoped                   { return Default().For(name) }
func SetVerbose(v bool)                        { Default().SetVerbose(v) }
func SetQuiet(q bool)                          { Default().SetQuiet(q) }
func EnableFileLogging() error                 { return Default().EnableFileLogging() }
func EnableFileLoggingAt(path string) error    { return Default().EnableFileLoggingAt(path) }
func Close()                                   { Default().Close() }
