package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultAcceptanceFields is the ordered list of Jira custom field IDs
// probed for acceptance criteria. Custom field layouts differ per Jira
// instance, so this is a best-effort guess that deployments can override
// with tracker.acceptance_fields.
var DefaultAcceptanceFields = []string{
	"customfield_10000",
	"customfield_10001",
	"customfield_10002",
	"customfield_10003",
	"customfield_10004",
	"customfield_10005",
}

// DefaultModels is the selectable model set per provider when the
// config doesn't provide one. The selected model must be a member of
// the active provider's set.
var DefaultModels = map[string][]string{
	"openai":    {"gpt-3.5-turbo", "gpt-4"},
	"anthropic": {"claude-sonnet-4-20250514", "claude-3-5-haiku-20241022"},
}

// DefaultModelsFor returns a copy of the default model set for the
// provider; empty for an unknown provider.
func DefaultModelsFor(provider string) []string {
	models := DefaultModels[provider]
	out := make([]string, len(models))
	copy(out, models)
	return out
}

// Config is the top-level testcraft configuration.
type Config struct {
	Tracker    TrackerConfig    `json:"tracker"`
	Generation GenerationConfig `json:"generation"`
	API        APIConfig        `json:"api"`
}

// TrackerConfig holds Jira connection settings. All fields except
// AcceptanceFields may be left empty at startup and supplied per session.
type TrackerConfig struct {
	URL              string   `json:"url"`
	Email            string   `json:"email"`
	Token            string   `json:"token"`
	Project          string   `json:"project"`
	AcceptanceFields []string `json:"acceptance_fields,omitempty"`
}

// GenerationConfig holds LLM provider settings.
type GenerationConfig struct {
	Provider string   `json:"provider,omitempty"` // "openai" (default) or "anthropic"
	APIKey   string   `json:"api_key"`
	BaseURL  string   `json:"base_url,omitempty"`
	Model    string   `json:"model"`
	Models   []string `json:"models,omitempty"` // selectable set; Model must be a member
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// MissingFieldError reports configuration fields that must be set before
// the attempted action. Handlers convert it to a user-visible message
// rather than failing the action with a raw tracker or provider error.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return "missing required configuration: " + strings.Join(e.Fields, ", ")
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables. Tracker and
// generation credentials use the plain names the original tooling expects
// (JIRA_URL, JIRA_EMAIL, JIRA_PROJECT, OPENAI_API_KEY); daemon-level
// settings use the TESTCRAFT_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Tracker: TrackerConfig{
			URL:     os.Getenv("JIRA_URL"),
			Email:   os.Getenv("JIRA_EMAIL"),
			Token:   os.Getenv("JIRA_API_TOKEN"),
			Project: os.Getenv("JIRA_PROJECT"),
		},
		Generation: GenerationConfig{
			Provider: getenv("TESTCRAFT_PROVIDER", "openai"),
			APIKey:   apiKeyFromEnv(),
			BaseURL:  os.Getenv("TESTCRAFT_BASE_URL"),
			Model:    os.Getenv("TESTCRAFT_MODEL"),
		},
		API: APIConfig{
			Host: getenv("TESTCRAFT_API_HOST", "0.0.0.0"),
			Port: getenvInt("TESTCRAFT_API_PORT", 8080),
			Key:  os.Getenv("TESTCRAFT_API_KEY"),
		},
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func apiKeyFromEnv() string {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

// Mirror writes the four session-visible defaults back into the process
// environment. Used for the "remember these settings" action; the values
// last only as long as the process.
func Mirror(t TrackerConfig, g GenerationConfig) {
	os.Setenv("JIRA_URL", t.URL)
	os.Setenv("JIRA_EMAIL", t.Email)
	os.Setenv("JIRA_PROJECT", t.Project)
	os.Setenv("OPENAI_API_KEY", g.APIKey)
}

func (c *Config) applyDefaults() {
	if len(c.Tracker.AcceptanceFields) == 0 {
		c.Tracker.AcceptanceFields = DefaultAcceptanceFields
	}
	if c.Generation.Provider == "" {
		c.Generation.Provider = "openai"
	}
	if len(c.Generation.Models) == 0 {
		c.Generation.Models = DefaultModelsFor(c.Generation.Provider)
	}
	if c.Generation.Model == "" && len(c.Generation.Models) > 0 {
		c.Generation.Model = c.Generation.Models[0]
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
}

// Validate checks internal consistency. Credentials are deliberately not
// required here; they may arrive per session.
func (c *Config) Validate() error {
	var errs []string

	switch c.Generation.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Sprintf("generation.provider %q is not one of openai, anthropic", c.Generation.Provider))
	}

	if c.Generation.Model != "" && !ModelAllowed(c.Generation.Model, c.Generation.Models) {
		errs = append(errs, fmt.Sprintf("generation.model %q is not in the configured model set %v", c.Generation.Model, c.Generation.Models))
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d is out of range", c.API.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ModelAllowed reports whether model is a member of the configured set.
func ModelAllowed(model string, models []string) bool {
	for _, m := range models {
		if m == model {
			return true
		}
	}
	return false
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
