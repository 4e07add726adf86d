// Package logging writes per-session log files for translator components.
//
// Several translator processes usually share one store and run side by
// side, so every entry carries the instance id of the process that wrote it
// once SetInstance has been called. Grepping a log for an id shows what
// that instance did while it held, lost or retook the lease.
package logging

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level orders log entries by severity.
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
	default:
		return "ERROR"
	}
}

// ParseLevel reads "debug", "info", "warn" or "error".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelDebug, fmt.Errorf("unknown log level %q", s)
}

// slogLevel maps l onto the slog scale used by Handler.
func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// Logger writes one component's entries to the session log file in
// ~/.translator/logs/, or to stderr when the file cannot be opened.
type Logger struct {
	sessionID string
	component string
	file      *os.File
	logger    *log.Logger
	mu        sync.Mutex
	logPath   string
	closeOnce sync.Once
}

var (
	// Global session ID for the current execution
	sessionID     string
	sessionIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	// initOnce ensures directory initialization happens once
	initOnce sync.Once
	initErr  error

	// state shared by every Logger of the process
	stateMu  sync.RWMutex
	instance string
	minLevel = LevelDebug
)

// SetInstance tags every later entry with the lease identity of this
// process.
func SetInstance(id string) {
	stateMu.Lock()
	defer stateMu.Unlock()
	instance = id
}

// Instance returns the id set by SetInstance.
func Instance() string {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return instance
}

// SetLevel drops entries below l, for every Logger.
func SetLevel(l Level) {
	stateMu.Lock()
	defer stateMu.Unlock()
	minLevel = l
}

func current() (string, Level) {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return instance, minLevel
}

// getSessionID returns or creates the session ID for this execution
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// initLogDirectory ensures the log directory exists
func initLogDirectory() error {
	initOnce.Do(func() {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			initErr = fmt.Errorf("failed to get home directory: %w", err)
			return
		}

		logDir = filepath.Join(homeDir, ".translator", "logs")
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
		}
	})
	return initErr
}

// NewLogger creates a logger for component, appending to
// ~/.translator/logs/<session-id>-translator.log.
//
// On failure it returns a stderr logger together with the error, so callers
// can warn and carry on.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	sessID := getSessionID()
	logPath := filepath.Join(logDir, sessID+"-translator.log")

	// Components of one process share the file.
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		sessionID: sessID,
		component: component,
		file:      file,
		logger:    log.New(file, "", 0),
		logPath:   logPath,
	}, nil
}

func newFallbackLogger(component string, err error) *Logger {
	logger := log.New(os.Stderr, "", 0)
	l := &Logger{
		sessionID: getSessionID(),
		component: component,
		logger:    logger,
	}
	l.Warnf("file logging unavailable, writing to stderr: %v", err)
	return l
}

// formatLogEntry renders "[time] [instance] [component] [LEVEL] message",
// leaving out the instance until one is set.
func (l *Logger) formatLogEntry(id string, level Level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	if id == "" {
		return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
	}
	return fmt.Sprintf("[%s] [%s] [%s] [%s] %s", timestamp, id, l.component, level, message)
}

func (l *Logger) logf(level Level, format string, v ...interface{}) {
	id, floor := current()
	if level < floor {
		return
	}
	entry := l.formatLogEntry(id, level, fmt.Sprintf(format, v...))

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Println(entry)
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) { l.logf(LevelDebug, format, v...) }

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) { l.logf(LevelInfo, format, v...) }

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) { l.logf(LevelWarn, format, v...) }

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) { l.logf(LevelError, format, v...) }

// Writer returns the destination of this logger.
func (l *Logger) Writer() io.Writer {
	if l.file != nil {
		return l.file
	}
	return os.Stderr
}

// SessionID returns the current session ID
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath returns the path to the log file, empty in stderr mode.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// GetSessionID returns the current global session ID
func GetSessionID() string {
	return getSessionID()
}

// Handler returns a slog handler writing to the same destination as l, at
// the level set by SetLevel. Library packages log through slog; the CLI
// installs this handler so their records land in the session log file.
// Records carry the session and, when set, the instance id current at the
// time Handler is called.
func (l *Logger) Handler() slog.Handler {
	id, floor := current()
	attrs := []slog.Attr{slog.String("session", l.sessionID)}
	if id != "" {
		attrs = append(attrs, slog.String("instance", id))
	}
	return slog.NewTextHandler(&lockedWriter{l: l}, &slog.HandlerOptions{Level: floor.slogLevel()}).
		WithAttrs(attrs)
}

// lockedWriter serializes slog output with the Logger's own writes.
type lockedWriter struct {
	l *Logger
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.l.mu.Lock()
	defer w.l.mu.Unlock()
	return w.l.Writer().Write(p)
}
