package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/testcraft-io/testcraft/internal/batch"
	"github.com/testcraft-io/testcraft/internal/config"
	"github.com/testcraft-io/testcraft/internal/export"
	"github.com/testcraft-io/testcraft/internal/logbuf"
	"github.com/testcraft-io/testcraft/internal/prompt"
	"github.com/testcraft-io/testcraft/internal/session"
	"github.com/testcraft-io/testcraft/pkg/protocol"
)

// settingsView is the masked projection of session settings: secrets are
// reported as present/absent, never echoed back.
type settingsView struct {
	ID             string   `json:"id,omitempty"`
	TrackerURL     string   `json:"tracker_url"`
	TrackerEmail   string   `json:"tracker_email"`
	TrackerProject string   `json:"tracker_project"`
	TokenSet       bool     `json:"token_set"`
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	Models         []string `json:"models"`
	APIKeySet      bool     `json:"api_key_set"`
}

func viewOf(settings session.Settings) settingsView {
	return settingsView{
		TrackerURL:     settings.Tracker.URL,
		TrackerEmail:   settings.Tracker.Email,
		TrackerProject: settings.Tracker.Project,
		TokenSet:       settings.Tracker.Token != "",
		Provider:       settings.Generation.Provider,
		Model:          settings.Generation.Model,
		Models:         settings.Generation.Models,
		APIKeySet:      settings.Generation.APIKey != "",
	}
}

// defaultsView extends the settings view with the selectable model set
// for every provider, so the page can swap model choices when the user
// switches provider.
type defaultsView struct {
	settingsView
	ModelOptions map[string][]string `json:"model_options"`
}

func (s *Server) handleDefaults(w http.ResponseWriter, _ *http.Request) {
	opts := make(map[string][]string, len(config.DefaultModels))
	for provider := range config.DefaultModels {
		opts[provider] = config.DefaultModelsFor(provider)
	}
	if g := s.defaults.Generation; g.Provider != "" && len(g.Models) > 0 {
		opts[g.Provider] = g.Models
	}
	writeJSON(w, http.StatusOK, defaultsView{settingsView: viewOf(s.defaults), ModelOptions: opts})
}

// --- Sessions ---

type sessionSettingsRequest struct {
	URL      string `json:"url"`
	Email    string `json:"email"`
	Token    string `json:"token"`
	Project  string `json:"project"`
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

type createSessionRequest struct {
	Tracker    sessionSettingsRequest `json:"tracker"`
	Generation sessionSettingsRequest `json:"generation"`
	// Remember mirrors the four env-visible settings back into the
	// process environment for the rest of the daemon's life.
	Remember bool `json:"remember"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	settings := s.defaults
	if req.Tracker.URL != "" {
		settings.Tracker.URL = req.Tracker.URL
	}
	if req.Tracker.Email != "" {
		settings.Tracker.Email = req.Tracker.Email
	}
	if req.Tracker.Token != "" {
		settings.Tracker.Token = req.Tracker.Token
	}
	if req.Tracker.Project != "" {
		settings.Tracker.Project = req.Tracker.Project
	}
	if req.Generation.Provider != "" && req.Generation.Provider != settings.Generation.Provider {
		// Switching provider re-derives the selectable model set; the
		// previous provider's models are not valid for the new one.
		settings.Generation.Provider = req.Generation.Provider
		settings.Generation.Models = config.DefaultModelsFor(req.Generation.Provider)
		settings.Generation.Model = ""
		if len(settings.Generation.Models) > 0 {
			settings.Generation.Model = settings.Generation.Models[0]
		}
	}
	if req.Generation.APIKey != "" {
		settings.Generation.APIKey = req.Generation.APIKey
	}
	if req.Generation.Model != "" {
		settings.Generation.Model = req.Generation.Model
	}

	if !config.ModelAllowed(settings.Generation.Model, settings.Generation.Models) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("model %q is not in the configured set %v", settings.Generation.Model, settings.Generation.Models),
		})
		return
	}

	if req.Remember {
		config.Mirror(settings.Tracker, settings.Generation)
	}

	sess := s.sessions.Create(settings)
	s.logger.Info("session created", "session", sess.ID)

	view := viewOf(settings)
	view.ID = sess.ID
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	view := viewOf(sess.Settings)
	view.ID = sess.ID
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	s.sessions.Delete(sess.ID)
	s.logger.Info("session deleted", "session", sess.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Tracker ---

func (s *Server) handleTrackerTest(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.Settings.RequireTracker(); err != nil {
		s.writeError(w, err)
		return
	}
	tc, err := s.newTracker(sess.Settings.Tracker)
	if err != nil {
		s.writeError(w, err)
		return
	}
	name, err := tc.Myself(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"display_name": name})
}

type ticketSearchRequest struct {
	Status string `json:"status"`
	Max    int    `json:"max"`
}

func (s *Server) handleTicketSearch(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req ticketSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Max <= 0 {
		req.Max = 20
	}
	if req.Max > 100 {
		req.Max = 100
	}

	if err := sess.Settings.RequireProject(); err != nil {
		s.writeError(w, err)
		return
	}
	tc, err := s.newTracker(sess.Settings.Tracker)
	if err != nil {
		s.writeError(w, err)
		return
	}
	refs, err := tc.Search(r.Context(), sess.Settings.Tracker.Project, req.Status, req.Max)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sess.SetTickets(refs)
	writeJSON(w, http.StatusOK, refs)
}

func (s *Server) handleTicketList(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.Tickets())
}

func (s *Server) handleTicketDetail(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.Settings.RequireTracker(); err != nil {
		s.writeError(w, err)
		return
	}
	tc, err := s.newTracker(sess.Settings.Tracker)
	if err != nil {
		s.writeError(w, err)
		return
	}
	detail, err := tc.FetchDetail(r.Context(), r.PathValue("key"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// --- Generation ---

type generateRequest struct {
	// Key fetches the ticket from the tracker.
	Key string `json:"key,omitempty"`
	// Detail generates from manually entered fields; no tracker needed.
	Detail *protocol.TicketDetail `json:"detail,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := sess.Settings.RequireGeneration(); err != nil {
		s.writeError(w, err)
		return
	}

	var detail protocol.TicketDetail
	switch {
	case req.Detail != nil:
		d, err := req.Detail.WithDefaults()
		if err != nil {
			s.writeError(w, err)
			return
		}
		detail = d
	case req.Key != "":
		if err := sess.Settings.RequireTracker(); err != nil {
			s.writeError(w, err)
			return
		}
		tc, err := s.newTracker(sess.Settings.Tracker)
		if err != nil {
			s.writeError(w, err)
			return
		}
		detail, err = tc.FetchDetail(r.Context(), req.Key)
		if err != nil {
			s.writeError(w, err)
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "key or detail is required"})
		return
	}

	gen, err := s.newGenerator(sess.Settings.Generation)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out, err := gen.Generate(r.Context(), prompt.Build(detail))
	if err != nil {
		s.writeError(w, err)
		return
	}

	rec := protocol.GenerationRecord{
		Key:       detail.Key,
		Output:    out,
		Model:     sess.Settings.Generation.Model,
		CreatedAt: time.Now(),
	}
	sess.PutRecord(rec)
	s.logger.Info("test cases generated", "session", sess.ID, "key", detail.Key)
	writeJSON(w, http.StatusOK, rec)
}

// --- Batch ---

type batchRequest struct {
	// Lines holds free-text input, one "key | summary | description"
	// ticket per line.
	Lines string `json:"lines,omitempty"`
	// Keys selects tickets from the session's fetched list; All selects
	// every fetched ticket.
	Keys []string `json:"keys,omitempty"`
	All  bool     `json:"all,omitempty"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := sess.Settings.RequireGeneration(); err != nil {
		s.writeError(w, err)
		return
	}

	// The whole run is detached from the request context: a dropped
	// browser connection must not fail the remaining items, and the job
	// registry keeps progress observable either way.
	ctx := context.WithoutCancel(r.Context())

	var items []batch.Item
	switch {
	case req.Lines != "":
		details := batch.ParseLines(req.Lines)
		if len(details) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no valid ticket lines"})
			return
		}
		items = batch.ItemsFromDetails(details)
	default:
		keys := req.Keys
		if req.All {
			keys = nil
			for _, ref := range sess.Tickets() {
				keys = append(keys, ref.Key)
			}
		}
		if len(keys) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no tickets selected"})
			return
		}
		if err := sess.Settings.RequireTracker(); err != nil {
			s.writeError(w, err)
			return
		}
		tc, err := s.newTracker(sess.Settings.Tracker)
		if err != nil {
			s.writeError(w, err)
			return
		}
		// Resolve every key up front; a fetch failure becomes a failed
		// item rather than aborting the batch.
		for _, key := range keys {
			detail, err := tc.FetchDetail(ctx, key)
			if err != nil {
				items = append(items, batch.Item{Detail: protocol.TicketDetail{Key: key}, Err: err})
				continue
			}
			items = append(items, batch.Item{Detail: detail})
		}
	}

	gen, err := s.newGenerator(sess.Settings.Generation)
	if err != nil {
		s.writeError(w, err)
		return
	}

	job := s.jobs.Start(len(items))
	s.logger.Info("batch started", "session", sess.ID, "job", job.ID, "total", len(items))

	runner := batch.Runner{
		Gen:    gen,
		Model:  sess.Settings.Generation.Model,
		Sink:   sess,
		Logger: s.logger.With("job", job.ID),
		OnItem: func(_, _ int, res batch.Result) {
			s.jobs.Step(job.ID, res)
		},
	}
	runner.RunItems(ctx, items)
	s.jobs.Finish(job.ID)

	snap, _ := s.jobs.Get(job.ID)
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	snap, ok := s.jobs.Get(r.PathValue("job"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// --- Records ---

func (s *Server) handleRecordList(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.Records())
}

func (s *Server) handleRecordGet(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	rec, ok := sess.Record(r.PathValue("key"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no generated test cases for this ticket"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRecordExport(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	rec, ok := sess.Record(r.PathValue("key"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no generated test cases for this ticket"})
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(rec.Key, time.Now())))
	w.Write([]byte(rec.Output))
}

func (s *Server) handleRecordHTML(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	rec, ok := sess.Record(r.PathValue("key"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no generated test cases for this ticket"})
		return
	}
	html, err := export.HTML(rec.Output)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

func (s *Server) handleRecordComment(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	rec, ok := sess.Record(r.PathValue("key"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no generated test cases for this ticket"})
		return
	}
	if err := sess.Settings.RequireTracker(); err != nil {
		s.writeError(w, err)
		return
	}
	tc, err := s.newTracker(sess.Settings.Tracker)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := tc.AddComment(r.Context(), rec.Key, export.CommentBody(rec.Output)); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("test cases saved to tracker", "session", sess.ID, "key", rec.Key)
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// --- Logs ---

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	limit := 200
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	minLevel := slog.LevelDebug
	switch r.URL.Query().Get("level") {
	case "info":
		minLevel = slog.LevelInfo
	case "warn":
		minLevel = slog.LevelWarn
	case "error":
		minLevel = slog.LevelError
	}

	entries := s.logs.Query(minLevel, limit)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
