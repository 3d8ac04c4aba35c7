package generate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/testcraft-io/testcraft/internal/prompt"
)

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("missing x-api-key header")
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Error("missing anthropic-version header")
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System != prompt.System {
			t.Errorf("system = %q", req.System)
		}
		if req.MaxTokens == 0 {
			t.Error("max_tokens must be set")
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}

		resp := anthropicResponse{
			Content: []anthropicContentBlock{
				{Type: "text", Text: "## TC-01\n"},
				{Type: "text", Text: "Steps..."},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewAnthropic("test-key", WithAnthropicBaseURL(srv.URL))

	got, err := c.Generate(context.Background(), "TICKET KEY: PROJ-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "## TC-01\nSteps..." {
		t.Errorf("got %q", got)
	}
}

func TestAnthropicGenerate_MissingAPIKey(t *testing.T) {
	c := NewAnthropic("")
	_, err := c.Generate(context.Background(), "prompt")
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestAnthropicGenerate_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"type": "authentication_error"}}`))
	}))
	defer srv.Close()

	c := NewAnthropic("bad-key", WithAnthropicBaseURL(srv.URL))
	_, err := c.Generate(context.Background(), "prompt")
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Errorf("error = %v", err)
	}
}

func TestAnthropicGenerate_NoText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content": []}`))
	}))
	defer srv.Close()

	c := NewAnthropic("test-key", WithAnthropicBaseURL(srv.URL))
	_, err := c.Generate(context.Background(), "prompt")
	if err == nil || !strings.Contains(err.Error(), "no text content") {
		t.Errorf("error = %v", err)
	}
}
