package logbuf

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestBuffer_Eviction(t *testing.T) {
	b := New(3)
	for _, msg := range []string{"one", "two", "three", "four"} {
		b.Append(Entry{Time: time.Now(), Level: "INFO", Message: msg})
	}

	got := b.Query(slog.LevelDebug, 0)
	if len(got) != 3 {
		t.Fatalf("got %d entries", len(got))
	}
	if got[0].Message != "two" || got[2].Message != "four" {
		t.Errorf("entries = %v", got)
	}
}

func TestBuffer_LevelFilter(t *testing.T) {
	b := New(10)
	b.Append(Entry{Level: "DEBUG", Message: "d"})
	b.Append(Entry{Level: "INFO", Message: "i"})
	b.Append(Entry{Level: "WARN", Message: "w"})
	b.Append(Entry{Level: "ERROR", Message: "e"})

	got := b.Query(slog.LevelWarn, 0)
	if len(got) != 2 {
		t.Fatalf("got %d entries", len(got))
	}
	if got[0].Message != "w" || got[1].Message != "e" {
		t.Errorf("entries = %v", got)
	}
}

func TestBuffer_LimitKeepsNewest(t *testing.T) {
	b := New(10)
	for _, msg := range []string{"one", "two", "three"} {
		b.Append(Entry{Level: "INFO", Message: msg})
	}

	got := b.Query(slog.LevelDebug, 2)
	if len(got) != 2 {
		t.Fatalf("got %d entries", len(got))
	}
	if got[0].Message != "two" || got[1].Message != "three" {
		t.Errorf("entries = %v", got)
	}
}

func TestHandler_Captures(t *testing.T) {
	buf := New(10)
	inner := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	logger := slog.New(NewHandler(inner, buf))

	logger.Info("session created", "session", "abc-123")
	logger.Warn("batch item failed", "error", errors.New("boom"))

	got := buf.Query(slog.LevelDebug, 0)
	if len(got) != 2 {
		t.Fatalf("got %d entries", len(got))
	}
	if got[0].Message != "session created" || got[0].Attrs["session"] != "abc-123" {
		t.Errorf("entry = %+v", got[0])
	}
	// Errors are captured as strings, so they survive JSON encoding.
	if got[1].Attrs["error"] != "boom" {
		t.Errorf("entry = %+v", got[1])
	}
}

func TestHandler_WithGroup(t *testing.T) {
	buf := New(10)
	inner := slog.NewTextHandler(io.Discard, nil)
	logger := slog.New(NewHandler(inner, buf))

	logger.WithGroup("batch").Info("item done", "key", "PROJ-1")
	logger.With("session", "s-1").WithGroup("job").With("id", "j-1").Info("started", "total", int64(3))

	got := buf.Query(slog.LevelDebug, 0)
	if len(got) != 2 {
		t.Fatalf("got %d entries", len(got))
	}
	// Grouped record attrs keep their qualification.
	if got[0].Attrs["batch.key"] != "PROJ-1" {
		t.Errorf("attrs = %v", got[0].Attrs)
	}
	// Attrs added before the group stay bare; after it, qualified.
	if got[1].Attrs["session"] != "s-1" || got[1].Attrs["job.id"] != "j-1" || got[1].Attrs["job.total"] != int64(3) {
		t.Errorf("attrs = %v", got[1].Attrs)
	}
}

func TestHandler_WithAttrs(t *testing.T) {
	buf := New(10)
	inner := slog.NewTextHandler(io.Discard, nil)
	logger := slog.New(NewHandler(inner, buf)).With("job", "j-1")

	logger.Info("batch started", "total", int64(5))

	got := buf.Query(slog.LevelDebug, 0)
	if len(got) != 1 {
		t.Fatalf("got %d entries", len(got))
	}
	if got[0].Attrs["job"] != "j-1" {
		t.Errorf("attrs = %v", got[0].Attrs)
	}
	if got[0].Attrs["total"] != int64(5) {
		t.Errorf("attrs = %v", got[0].Attrs)
	}
}
