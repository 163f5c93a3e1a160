// Package testutil provides test helpers shared across MolForge packages.
package testutil

import (
	"context"
	"sync"

	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
)

// LogEntry is a single entry captured by RecordingLogger.
type LogEntry struct {
	Level   logging.Level
	Logger  string
	Message string
	Fields  []logging.Field
}

// Field returns the value of the named field and whether it was present.
func (e LogEntry) Field(key string) (interface{}, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// levelFatal has no logging constant; Fatal entries use it.
const levelFatal logging.Level = "fatal"

type logStore struct {
	mu      sync.Mutex
	entries []LogEntry
}

// RecordingLogger implements logging.Logger and keeps every entry in memory.
// Children created with With, WithContext and Named write to the same store.
type RecordingLogger struct {
	store  *logStore
	name   string
	fields []logging.Field
}

// NewRecordingLogger creates an empty RecordingLogger.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{store: &logStore{}}
}

func (l *RecordingLogger) log(level logging.Level, msg string, fields []logging.Field) {
	all := make([]logging.Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)

	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	l.store.entries = append(l.store.entries, LogEntry{Level: level, Logger: l.name, Message: msg, Fields: all})
}

func (l *RecordingLogger) Debug(msg string, fields ...logging.Field) {
	l.log(logging.LevelDebug, msg, fields)
}
func (l *RecordingLogger) Info(msg string, fields ...logging.Field) {
	l.log(logging.LevelInfo, msg, fields)
}
func (l *RecordingLogger) Warn(msg string, fields ...logging.Field) {
	l.log(logging.LevelWarn, msg, fields)
}
func (l *RecordingLogger) Error(msg string, fields ...logging.Field) {
	l.log(logging.LevelError, msg, fields)
}

// Fatal records the entry without exiting.
func (l *RecordingLogger) Fatal(msg string, fields ...logging.Field) {
	l.log(levelFatal, msg, fields)
}

func (l *RecordingLogger) With(fields ...logging.Field) logging.Logger {
	child := &RecordingLogger{store: l.store, name: l.name}
	child.fields = append(append(child.fields, l.fields...), fields...)
	return child
}

func (l *RecordingLogger) WithContext(ctx context.Context) logging.Logger {
	if id := logging.RequestIDFromContext(ctx); id != "" {
		return l.With(logging.String(logging.FieldRequestID, id))
	}
	return l
}

func (l *RecordingLogger) Named(name string) logging.Logger {
	child := &RecordingLogger{store: l.store, name: name, fields: l.fields}
	if l.name != "" {
		child.name = l.name + "." + name
	}
	return child
}

func (l *RecordingLogger) Sync() error { return nil }

// Entries returns a copy of the recorded entries.
func (l *RecordingLogger) Entries() []LogEntry {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	out := make([]LogEntry, len(l.store.entries))
	copy(out, l.store.entries)
	return out
}

// Find returns the first entry with the given level and message.
func (l *RecordingLogger) Find(level logging.Level, msg string) (LogEntry, bool) {
	for _, e := range l.Entries() {
		if e.Level == level && e.Message == msg {
			return e, true
		}
	}
	return LogEntry{}, false
}

// HasMessage reports whether an entry with level and msg was recorded.
func (l *RecordingLogger) HasMessage(level logging.Level, msg string) bool {
	_, ok := l.Find(level, msg)
	return ok
}

// Reset drops all recorded entries.
func (l *RecordingLogger) Reset() {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	l.store.entries = nil
}
