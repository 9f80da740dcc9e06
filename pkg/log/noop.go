package log

import "sync"

// NoopLogger implements Logger by discarding all log messages.
type NoopLogger struct{}

// NewNoopLogger creates a new no-op logger.
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

func (NoopLogger) Debug(msg string, fields ...Field) {}
func (NoopLogger) Info(msg string, fields ...Field)  {}
func (NoopLogger) Warn(msg string, fields ...Field)  {}
func (NoopLogger) Error(msg string, fields ...Field) {}

// Entry is a message captured by MemoryLogger.
type Entry struct {
	Level  string
	Msg    string
	Fields []Field
}

// MemoryLogger records messages in memory. Safe for concurrent use.
type MemoryLogger struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryLogger creates an empty MemoryLogger.
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (m *MemoryLogger) record(level, msg string, fields []Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Entry{Level: level, Msg: msg, Fields: append([]Field(nil), fields...)})
}

func (m *MemoryLogger) Debug(msg string, fields ...Field) { m.record("debug", msg, fields) }
func (m *MemoryLogger) Info(msg string, fields ...Field)  { m.record("info", msg, fields) }
func (m *MemoryLogger) Warn(msg string, fields ...Field)  { m.record("warn", msg, fields) }
func (m *MemoryLogger) Error(msg string, fields ...Field) { m.record("error", msg, fields) }

// Entries returns a copy of the recorded entries.
func (m *MemoryLogger) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Count returns how many entries were recorded with msg.
func (m *MemoryLogger) Count(msg string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Msg == msg {
			n++
		}
	}
	return n
}
