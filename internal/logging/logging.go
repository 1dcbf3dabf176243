// Package logging provides the structured, fluent logger used across the
// dispatcher, transport, mount surface, and entrypoint: a package-level
// Logger backed by zerolog, entered via Info()/Warn()/Error(err) and
// finished with Write().
package logging

import (
	"log/syslog"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// L is the process-wide logger, set to a console writer by the package's
// init function (UseSyslog can switch it later) so packages can log
// without threading a logger through every constructor.
var L *Logger

func init() {
	L = &Logger{zlog: consoleLogger()}
}

func consoleLogger() *zerolog.Logger {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: false}).
		With().
		Timestamp().
		Logger()
	return &logger
}

// Logger wraps a zerolog.Logger behind a fluent, mutex-guarded API so the
// backing writer can be swapped (e.g. into syslog once running detached)
// without invalidating in-flight LogEntry builders.
type Logger struct {
	mu   sync.RWMutex
	zlog *zerolog.Logger
}

// UseSyslog switches the logger to send through the local syslog daemon,
// tagged with name, falling back to the console writer if the syslog
// connection cannot be established.
func (l *Logger) UseSyslog(name string) {
	w, err := syslog.New(syslog.LOG_DAEMON, name)
	if err != nil {
		return
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).
		With().
		Timestamp().
		Logger()

	l.mu.Lock()
	l.zlog = &logger
	l.mu.Unlock()
}

// LogEntry accumulates fields for one log line before Write flushes it.
type LogEntry struct {
	level   string
	err     error
	message string
	fields  map[string]any
	logger  *Logger
}

func (l *Logger) newEntry(level string) *LogEntry {
	return &LogEntry{level: level, fields: make(map[string]any), logger: l}
}

// Info starts a new informational log entry.
func (l *Logger) Info() *LogEntry { return l.newEntry("info") }

// Warn starts a new warning log entry.
func (l *Logger) Warn() *LogEntry { return l.newEntry("warn") }

// Error starts a new error log entry carrying err.
func (l *Logger) Error(err error) *LogEntry {
	e := l.newEntry("error")
	e.err = err
	return e
}

// WithMessage sets the human-readable message.
func (e *LogEntry) WithMessage(msg string) *LogEntry {
	e.message = msg
	return e
}

// WithField attaches one structured field.
func (e *LogEntry) WithField(key string, value any) *LogEntry {
	e.fields[key] = value
	return e
}

// WithFields attaches multiple structured fields.
func (e *LogEntry) WithFields(fields map[string]any) *LogEntry {
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// Write emits the entry through the logger's current backing writer.
func (e *LogEntry) Write() {
	e.logger.mu.RLock()
	defer e.logger.mu.RUnlock()

	scoped := e.logger.zlog.With().Fields(e.fields).Logger()

	var event *zerolog.Event
	switch e.level {
	case "warn":
		event = scoped.Warn()
	case "error":
		event = scoped.Error()
	default:
		event = scoped.Info()
	}
	if e.err != nil {
		event = event.Err(e.err)
	}
	event.Msg(e.message)
}
