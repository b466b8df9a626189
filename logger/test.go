package logger

import (
	"context"
	"sync"
)

// LogEntry is one captured log call.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

type entryBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// TestLogger captures entries in memory. Loggers derived through WithField
// and WithFields write into the same buffer as their parent.
type TestLogger struct {
	buf    *entryBuffer
	fields map[string]interface{}
}

// NewTestLogger creates an empty capturing logger.
func NewTestLogger() *TestLogger {
	return &TestLogger{
		buf:    &entryBuffer{},
		fields: make(map[string]interface{}),
	}
}

func (l *TestLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("debug", msg, fields)
}

func (l *TestLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("info", msg, fields)
}

func (l *TestLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("warn", msg, fields)
}

func (l *TestLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("error", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{buf: l.buf, fields: merged}
}

func (l *TestLogger) log(level, msg string, fields map[string]interface{}) {
	all := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}

	l.buf.mu.Lock()
	defer l.buf.mu.Unlock()
	l.buf.entries = append(l.buf.entries, LogEntry{Level: level, Message: msg, Fields: all})
}

// Entries returns a copy of everything captured so far.
func (l *TestLogger) Entries() []LogEntry {
	l.buf.mu.RLock()
	defer l.buf.mu.RUnlock()

	entries := make([]LogEntry, len(l.buf.entries))
	copy(entries, l.buf.entries)
	return entries
}

// Messages returns the captured messages at level, in order.
func (l *TestLogger) Messages(level string) []string {
	var out []string
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// Reset drops all captured entries.
func (l *TestLogger) Reset() {
	l.buf.mu.Lock()
	defer l.buf.mu.Unlock()
	l.buf.entries = nil
}
