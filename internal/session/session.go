// Package session holds per-session state: the credentials the user
// entered, the last fetched ticket list, and the generated records.
// Nothing here is persisted; a session dies with the process.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/testcraft-io/testcraft/internal/config"
	"github.com/testcraft-io/testcraft/pkg/protocol"
)

// Settings is the explicit configuration object for one session. It is
// seeded from the daemon defaults and overridden per session, instead of
// mutating process-wide state.
type Settings struct {
	Tracker    config.TrackerConfig    `json:"tracker"`
	Generation config.GenerationConfig `json:"generation"`
}

// RequireTracker reports the tracker connection fields still missing
// before a tracker action can run.
func (s Settings) RequireTracker() error {
	var missing []string
	if s.Tracker.URL == "" {
		missing = append(missing, "tracker.url")
	}
	if s.Tracker.Email == "" {
		missing = append(missing, "tracker.email")
	}
	if s.Tracker.Token == "" {
		missing = append(missing, "tracker.token")
	}
	if len(missing) > 0 {
		return &config.MissingFieldError{Fields: missing}
	}
	return nil
}

// RequireProject extends RequireTracker with the project key, needed for
// searches.
func (s Settings) RequireProject() error {
	if err := s.RequireTracker(); err != nil {
		return err
	}
	if s.Tracker.Project == "" {
		return &config.MissingFieldError{Fields: []string{"tracker.project"}}
	}
	return nil
}

// RequireGeneration checks the API key is present before a generation
// action. The key itself is only validated by the upstream service.
func (s Settings) RequireGeneration() error {
	if s.Generation.APIKey == "" {
		return &config.MissingFieldError{Fields: []string{"generation.api_key"}}
	}
	return nil
}

// Session is the unit of state behind one browser session. Records and
// the fetched ticket list are guarded because server requests for the
// same session may interleave; the generation pipeline itself never
// fans out.
type Session struct {
	ID        string
	CreatedAt time.Time
	Settings  Settings

	mu      sync.RWMutex
	tickets []protocol.TicketRef
	records map[string]protocol.GenerationRecord
}

// SetTickets replaces the fetched ticket list.
func (s *Session) SetTickets(refs []protocol.TicketRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets = refs
}

// Tickets returns a copy of the last fetched ticket list.
func (s *Session) Tickets() []protocol.TicketRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.TicketRef, len(s.tickets))
	copy(out, s.tickets)
	return out
}

// PutRecord stores (or overwrites) the generated text for a ticket key.
func (s *Session) PutRecord(rec protocol.GenerationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Key] = rec
}

// Record returns the generated record for a key.
func (s *Session) Record(key string) (protocol.GenerationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return rec, ok
}

// Records returns all records sorted by ticket key.
func (s *Session) Records() []protocol.GenerationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.GenerationRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Manager tracks live sessions by ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create starts a session with the given settings.
func (m *Manager) Create(settings Settings) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Settings:  settings,
		records:   make(map[string]protocol.GenerationRecord),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return s
}

// Get looks up a session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete removes a session and everything it holds.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}
