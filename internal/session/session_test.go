package session

import (
	"errors"
	"testing"
	"time"

	"github.com/testcraft-io/testcraft/internal/config"
	"github.com/testcraft-io/testcraft/pkg/protocol"
)

func fullSettings() Settings {
	return Settings{
		Tracker: config.TrackerConfig{
			URL:     "https://example.atlassian.net",
			Email:   "qa@example.com",
			Token:   "tok",
			Project: "PROJ",
		},
		Generation: config.GenerationConfig{
			Provider: "openai",
			APIKey:   "sk-test",
			Model:    "gpt-4",
		},
	}
}

func TestRequireTracker(t *testing.T) {
	if err := fullSettings().RequireTracker(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	s := fullSettings()
	s.Tracker.URL = ""
	s.Tracker.Token = ""
	err := s.RequireTracker()

	var missing *config.MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldError, got %v", err)
	}
	if len(missing.Fields) != 2 {
		t.Errorf("fields = %v", missing.Fields)
	}
}

func TestRequireProject(t *testing.T) {
	if err := fullSettings().RequireProject(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	s := fullSettings()
	s.Tracker.Project = ""
	err := s.RequireProject()

	var missing *config.MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldError, got %v", err)
	}
	if missing.Fields[0] != "tracker.project" {
		t.Errorf("fields = %v", missing.Fields)
	}
}

func TestRequireGeneration(t *testing.T) {
	if err := fullSettings().RequireGeneration(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	s := fullSettings()
	s.Generation.APIKey = ""
	var missing *config.MissingFieldError
	if !errors.As(s.RequireGeneration(), &missing) {
		t.Fatal("expected MissingFieldError")
	}
}

func TestSessionTickets_Copy(t *testing.T) {
	m := NewManager()
	sess := m.Create(fullSettings())

	sess.SetTickets([]protocol.TicketRef{{Key: "PROJ-1"}, {Key: "PROJ-2"}})
	got := sess.Tickets()
	got[0].Key = "MUTATED"

	if sess.Tickets()[0].Key != "PROJ-1" {
		t.Error("Tickets must return a copy")
	}
}

func TestSessionRecords_SortedAndOverwritten(t *testing.T) {
	m := NewManager()
	sess := m.Create(fullSettings())

	sess.PutRecord(protocol.GenerationRecord{Key: "PROJ-2", Output: "two", CreatedAt: time.Now()})
	sess.PutRecord(protocol.GenerationRecord{Key: "PROJ-1", Output: "one", CreatedAt: time.Now()})
	sess.PutRecord(protocol.GenerationRecord{Key: "PROJ-2", Output: "two again", CreatedAt: time.Now()})

	recs := sess.Records()
	if len(recs) != 2 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].Key != "PROJ-1" || recs[1].Key != "PROJ-2" {
		t.Errorf("order = %s, %s", recs[0].Key, recs[1].Key)
	}
	if recs[1].Output != "two again" {
		t.Error("regeneration must overwrite the record")
	}

	rec, ok := sess.Record("PROJ-1")
	if !ok || rec.Output != "one" {
		t.Errorf("record = %+v, ok = %v", rec, ok)
	}
	if _, ok := sess.Record("PROJ-404"); ok {
		t.Error("unknown key must not resolve")
	}
}

func TestManager(t *testing.T) {
	m := NewManager()
	sess := m.Create(fullSettings())
	if sess.ID == "" {
		t.Fatal("session needs an ID")
	}

	got, ok := m.Get(sess.ID)
	if !ok || got.ID != sess.ID {
		t.Errorf("get = %+v, ok = %v", got, ok)
	}

	other := m.Create(fullSettings())
	if other.ID == sess.ID {
		t.Error("session IDs must be unique")
	}

	m.Delete(sess.ID)
	if _, ok := m.Get(sess.ID); ok {
		t.Error("deleted session still resolvable")
	}
}
