// Package logbuf captures recent slog records in memory so the API can
// serve them to the browser without any log storage on disk.
package logbuf

import (
	"log/slog"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Buffer keeps the most recent entries up to a fixed capacity.
type Buffer struct {
	mu      sync.Mutex
	cap     int
	entries []Entry
}

// New creates a buffer holding up to capacity entries.
func New(capacity int) *Buffer {
	return &Buffer{cap: capacity}
}

// Append adds an entry, evicting the oldest when full.
func (b *Buffer) Append(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	if len(b.entries) > b.cap {
		b.entries = b.entries[len(b.entries)-b.cap:]
	}
}

// Query returns up to limit entries at or above minLevel, oldest first.
// limit <= 0 means no limit.
func (b *Buffer) Query(minLevel slog.Level, limit int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		if levelOf(e.Level) < minLevel {
			continue
		}
		result = append(result, e)
	}
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result
}

func levelOf(s string) slog.Level {
	switch s {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
