package app

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelError LogLevel = "error"
)

// LogEntry is one diagnostic event from a provider client or the
// orchestrator. StatusCode 0 and URL "" mean "not applicable".
type LogEntry struct {
	Timestamp  time.Time
	Service    string
	Level      LogLevel
	Message    string
	URL        string
	StatusCode int
}

// EventLog is a bounded append-only ring shared by every client. Appends may
// arrive from concurrent in-flight operations; insertion order of survivors
// is preserved and the oldest entries are evicted first once capacity is
// reached.
type EventLog struct {
	mu       sync.Mutex
	capacity int
	entries  []LogEntry
}

const DefaultLogCapacity = 500

func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &EventLog{capacity: capacity}
}

func (l *EventLog) Append(entry LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if n := len(l.entries) - l.capacity; n > 0 {
		l.entries = append(l.entries[:0:0], l.entries[n:]...)
	}
}

func (l *EventLog) Info(service, message string) {
	l.Append(LogEntry{Service: service, Level: LevelInfo, Message: message})
}

func (l *EventLog) Error(service, message, url string, statusCode int) {
	l.Append(LogEntry{Service: service, Level: LevelError, Message: message, URL: url, StatusCode: statusCode})
}

func (l *EventLog) Capacity() int { return l.capacity }

func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of all entries in insertion order.
func (l *EventLog) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Errors returns only error-level entries, in insertion order.
func (l *EventLog) Errors() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Level == LevelError {
			out = append(out, e)
		}
	}
	return out
}

// FormatEntry renders one entry as
// [ISO8601 timestamp] [service] [LEVEL] [status?] [url?] message.
func FormatEntry(e LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] [%s]", e.Timestamp.UTC().Format(time.RFC3339), e.Service, strings.ToUpper(string(e.Level)))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " [%d]", e.StatusCode)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " [%s]", e.URL)
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)
	return b.String()
}

// Export renders the log as newline-joined formatted lines for copying out
// of the app. When errorsOnly is set, info entries are skipped.
func (l *EventLog) Export(errorsOnly bool) string {
	entries := l.Entries()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if errorsOnly && e.Level != LevelError {
			continue
		}
		lines = append(lines, FormatEntry(e))
	}
	return strings.Join(lines, "\n")
}
