package tracker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testcraft-io/testcraft/pkg/protocol"
)

const (
	testEmail = "qa@example.com"
	testToken = "secret-token"
)

func basicAuth(t *testing.T, r *http.Request) {
	t.Helper()
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(testEmail+":"+testToken))
	assert.Equal(t, want, r.Header.Get("Authorization"))
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		URL:              srv.URL,
		Email:            testEmail,
		Token:            testToken,
		AcceptanceFields: []string{"customfield_10001"},
	})
	require.NoError(t, err)
	return c
}

func TestBuildJQL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "project = PROJ", BuildJQL("PROJ", ""))
	assert.Equal(t, "project = PROJ", BuildJQL("PROJ", "All"))
	assert.Equal(t, "project = PROJ AND status = 'In Progress'", BuildJQL("PROJ", "In Progress"))
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		basicAuth(t, r)
		assert.Equal(t, "/rest/api/2/search", r.URL.Path)
		assert.Equal(t, "project = PROJ AND status = 'To Do'", r.URL.Query().Get("jql"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"startAt": 0, "maxResults": 20, "total": 2,
			"issues": [
				{"key": "PROJ-2", "fields": {
					"summary": "Second ticket",
					"issuetype": {"name": "Bug"},
					"status": {"name": "To Do"},
					"priority": {"name": "High"}
				}},
				{"key": "PROJ-1", "fields": {
					"summary": "First ticket",
					"issuetype": {"name": "Story"},
					"status": {"name": "To Do"}
				}}
			]
		}`))
	}))

	refs, err := c.Search(context.Background(), "PROJ", "To Do", 20)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	// Order is exactly what the tracker returned.
	assert.Equal(t, "PROJ-2", refs[0].Key)
	assert.Equal(t, "High", refs[0].Priority)
	assert.Equal(t, "PROJ-1", refs[1].Key)
	assert.Equal(t, protocol.NoPriority, refs[1].Priority)
}

func TestSearch_TrackerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errorMessages": ["The value 'NOPE' does not exist for the field 'project'."]}`))
	}))

	_, err := c.Search(context.Background(), "NOPE", "", 20)
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "search", terr.Op)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestFetchDetail(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		basicAuth(t, r)
		assert.Equal(t, "/rest/api/2/issue/PROJ-1", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"key": "PROJ-1", "fields": {
			"summary": "Login page",
			"description": "As a user I want to log in",
			"issuetype": {"name": "Story"},
			"status": {"name": "In Progress"},
			"priority": {"name": "High"},
			"components": [{"name": "auth"}],
			"customfield_10001": "Acceptance: user can log in"
		}}`))
	}))

	d, err := c.FetchDetail(context.Background(), "PROJ-1")
	require.NoError(t, err)
	assert.Equal(t, "PROJ-1", d.Key)
	assert.Equal(t, "Login page", d.Summary)
	assert.Equal(t, "In Progress", d.Status)
	assert.Equal(t, []string{"auth"}, d.Components)
	assert.Equal(t, "Acceptance: user can log in", d.AcceptanceCriteria)
}

func TestFetchDetail_NotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errorMessages": ["Issue does not exist or you do not have permission to see it."]}`))
	}))

	_, err := c.FetchDetail(context.Background(), "PROJ-404")
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "fetch PROJ-404", terr.Op)
}

func TestAddComment(t *testing.T) {
	var gotBody string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		basicAuth(t, r)
		assert.Equal(t, "/rest/api/2/issue/PROJ-1/comment", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var payload struct {
			Body string `json:"body"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		gotBody = payload.Body

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "10001", "body": "posted"}`))
	}))

	err := c.AddComment(context.Background(), "PROJ-1", "*AI Generated Test Cases*\n\ncontent")
	require.NoError(t, err)
	assert.Contains(t, gotBody, "AI Generated Test Cases")
}

func TestMyself(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		basicAuth(t, r)
		assert.Equal(t, "/rest/api/2/myself", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"displayName": "Jane Tester", "emailAddress": "qa@example.com"}`))
	}))

	name, err := c.Myself(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Jane Tester", name)
}

func TestMyself_AuthFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errorMessages": ["Authentication failed"]}`))
	}))

	_, err := c.Myself(context.Background())
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "myself", terr.Op)
}
