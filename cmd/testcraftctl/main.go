package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/testcraft-io/testcraft/internal/config"
	"github.com/testcraft-io/testcraft/internal/generate"
	"github.com/testcraft-io/testcraft/internal/prompt"
	"github.com/testcraft-io/testcraft/pkg/protocol"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "health":
		cmdHealth()
	case "defaults":
		cmdDefaults()
	case "tickets":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: testcraftctl tickets <list|show>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdTicketsList(os.Args[3:])
		case "show":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: testcraftctl tickets show <key>")
				os.Exit(1)
			}
			cmdTicketsShow(os.Args[3])
		default:
			fmt.Fprintf(os.Stderr, "unknown tickets subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "generate":
		cmdGenerate(os.Args[2:])
	case "batch":
		cmdBatch(os.Args[2:])
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: testcraftctl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`testcraftctl - test case generation from Jira tickets

Commands:
  run                      Generate test cases locally, no daemon needed
  health                   Check daemon health
  defaults                 Show daemon default settings
  tickets list             List project tickets via the daemon
  tickets show <key>       Show one ticket's fields
  generate <key>           Generate test cases for a tracker ticket
  batch                    Generate for many tickets from pipe-delimited lines
  config validate <path>   Validate a config file

Environment:
  TESTCRAFT_API_URL   Daemon base URL (default http://localhost:8080)
  TESTCRAFT_API_KEY   Bearer token if the daemon requires auth`)
}

// --- local run (no daemon) ---

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	provType := fs.String("provider", envOr("TESTCRAFT_PROVIDER", "openai"), "Provider type: openai or anthropic")
	model := fs.String("model", envOr("TESTCRAFT_MODEL", ""), "LLM model name")
	apiKey := fs.String("api-key", "", "API key (or set OPENAI_API_KEY / ANTHROPIC_API_KEY)")
	baseURL := fs.String("base-url", envOr("TESTCRAFT_BASE_URL", ""), "Override API base URL")
	key := fs.String("key", "", "Ticket key, e.g. PROJ-1")
	summary := fs.String("summary", "", "Ticket summary")
	description := fs.String("description", "", "Ticket description")
	issueType := fs.String("type", "", "Issue type (default Story)")
	criteria := fs.String("criteria", "", "Acceptance criteria")
	out := fs.String("out", "", "Write output to file instead of stdout")
	fs.Parse(args)

	if *key == "" {
		fmt.Fprintln(os.Stderr, "error: -key is required")
		os.Exit(1)
	}

	// Resolve API key from env if not passed as flag
	if *apiKey == "" {
		switch *provType {
		case "anthropic":
			*apiKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			*apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "error: API key required (--api-key, OPENAI_API_KEY, or ANTHROPIC_API_KEY)")
		os.Exit(1)
	}

	detail, err := protocol.TicketDetail{
		Key:                *key,
		Summary:            *summary,
		Description:        *description,
		IssueType:          *issueType,
		AcceptanceCriteria: *criteria,
	}.WithDefaults()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var gen generate.Generator
	switch *provType {
	case "anthropic":
		var opts []generate.AnthropicOption
		if *model != "" {
			opts = append(opts, generate.WithAnthropicModel(*model))
		}
		if *baseURL != "" {
			opts = append(opts, generate.WithAnthropicBaseURL(*baseURL))
		}
		gen = generate.NewAnthropic(*apiKey, opts...)
	default:
		var opts []generate.OpenAIOption
		if *model != "" {
			opts = append(opts, generate.WithModel(*model))
		}
		if *baseURL != "" {
			opts = append(opts, generate.WithBaseURL(*baseURL))
		}
		gen = generate.NewOpenAI(*apiKey, opts...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	result, err := gen.Generate(ctx, prompt.Build(detail))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *out != "" {
		if err := os.WriteFile(*out, []byte(result), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("written to %s\n", *out)
		return
	}
	fmt.Println(result)
}

// --- API client commands ---

func cmdHealth() {
	body, err := apiGet("/api/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

func cmdDefaults() {
	body, err := apiGet("/api/defaults")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(body))
}

func cmdTicketsList(args []string) {
	fs := flag.NewFlagSet("tickets list", flag.ExitOnError)
	status := fs.String("status", "All", "Filter by tracker status")
	max := fs.Int("max", 20, "Max results")
	fs.Parse(args)

	id := mustSession()
	body, err := apiPost("/api/sessions/"+id+"/tickets/search",
		map[string]any{"status": *status, "max": *max})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var refs []map[string]any
	json.Unmarshal(body, &refs)
	for _, t := range refs {
		fmt.Printf("%-12s %-8s %-12s %s\n", t["key"], t["type"], t["status"], t["summary"])
	}
}

func cmdTicketsShow(key string) {
	id := mustSession()
	body, err := apiGet("/api/sessions/" + id + "/tickets/" + key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(body))
}

func cmdGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	out := fs.String("out", "", "Write output to file instead of stdout")
	comment := fs.Bool("comment", false, "Also save the result as a tracker comment")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: testcraftctl generate [-out file] [-comment] <key>")
		os.Exit(1)
	}
	key := fs.Arg(0)

	id := mustSession()
	body, err := apiPost("/api/sessions/"+id+"/generate", map[string]any{"key": key})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var rec struct {
		Key    string `json:"key"`
		Output string `json:"output"`
	}
	json.Unmarshal(body, &rec)

	if *comment {
		if _, err := apiPost("/api/sessions/"+id+"/records/"+rec.Key+"/comment", nil); err != nil {
			fmt.Fprintf(os.Stderr, "error: comment: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "saved as comment on %s\n", rec.Key)
	}

	if *out != "" {
		if err := os.WriteFile(*out, []byte(rec.Output), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("written to %s\n", *out)
		return
	}
	fmt.Println(rec.Output)
}

func cmdBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	file := fs.String("file", "", "File with one 'key | summary | description' per line (default stdin)")
	fs.Parse(args)

	var input []byte
	var err error
	if *file != "" {
		input, err = os.ReadFile(*file)
	} else {
		input, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	id := mustSession()
	body, err := apiPost("/api/sessions/"+id+"/batch", map[string]any{"lines": string(input)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var job struct {
		Done    int `json:"done"`
		Total   int `json:"total"`
		Results []struct {
			Key   string `json:"key"`
			Error string `json:"error"`
		} `json:"results"`
	}
	json.Unmarshal(body, &job)

	failed := 0
	for _, r := range job.Results {
		if r.Error != "" {
			failed++
			fmt.Printf("%-12s FAILED  %s\n", r.Key, r.Error)
			continue
		}
		fmt.Printf("%-12s ok\n", r.Key)
	}
	fmt.Printf("%d/%d processed, %d failed\n", job.Done, job.Total, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func cmdConfigValidate(path string) {
	_, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

// mustSession creates a session seeded entirely from the daemon's
// defaults, which come from its environment.
func mustSession() string {
	body, err := apiPost("/api/sessions", map[string]any{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: create session: %v\n", err)
		os.Exit(1)
	}
	var sess struct {
		ID string `json:"id"`
	}
	json.Unmarshal(body, &sess)
	return sess.ID
}

func apiGet(path string) ([]byte, error) {
	return apiDo("GET", path, nil)
}

func apiPost(path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	return apiDo("POST", path, body)
}

func apiDo(method, path string, body io.Reader) ([]byte, error) {
	base := envOr("TESTCRAFT_API_URL", "http://localhost:8080")

	req, err := http.NewRequest(method, base+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := os.Getenv("TESTCRAFT_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
