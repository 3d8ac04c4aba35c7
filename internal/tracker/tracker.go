// Package tracker wraps the Jira REST API behind the three operations the
// generation pipeline needs: search, detail fetch, and comment write-back.
// The wire format is owned by the go-jira client library.
package tracker

import (
	"context"
	"fmt"
	"net/http"

	jira "github.com/andygrunwald/go-jira"

	"github.com/testcraft-io/testcraft/pkg/protocol"
)

// Error is a tracker operation failure (connectivity, auth, malformed
// query). It is surfaced verbatim to the user; nothing retries it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("tracker: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Config holds the connection settings for one Jira instance.
type Config struct {
	URL   string
	Email string
	Token string
	// AcceptanceFields is the ordered list of custom field IDs probed for
	// acceptance criteria. Empty means no probing beyond the placeholder.
	AcceptanceFields []string
}

// Client talks to a single Jira instance with one set of credentials.
// Credentials are session-scoped, so callers construct a fresh Client per
// session rather than sharing one process-wide.
type Client struct {
	jira             *jira.Client
	acceptanceFields []string
}

// Option configures a Client.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient sets a custom HTTP client. The basic-auth transport is
// layered on top of it.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New creates a Jira client authenticated with email + API token.
func New(cfg Config, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	tp := jira.BasicAuthTransport{
		Username:  cfg.Email,
		Password:  cfg.Token,
		Transport: transportOf(o.httpClient),
	}
	jc, err := jira.NewClient(tp.Client(), cfg.URL)
	if err != nil {
		return nil, &Error{Op: "connect", Err: err}
	}
	return &Client{jira: jc, acceptanceFields: cfg.AcceptanceFields}, nil
}

func transportOf(c *http.Client) http.RoundTripper {
	if c == nil {
		return nil
	}
	return c.Transport
}

// BuildJQL constructs the search query: restricted to the project, with a
// status equality clause ANDed in unless the filter is empty or "All".
func BuildJQL(project, status string) string {
	jql := fmt.Sprintf("project = %s", project)
	if status != "" && status != "All" {
		jql += fmt.Sprintf(" AND status = '%s'", status)
	}
	return jql
}

// Search returns at most max tickets from the project, optionally
// filtered by status, in the order the tracker returned them.
func (c *Client) Search(ctx context.Context, project, status string, max int) ([]protocol.TicketRef, error) {
	jql := BuildJQL(project, status)
	issues, resp, err := c.jira.Issue.SearchWithContext(ctx, jql, &jira.SearchOptions{MaxResults: max})
	if err != nil {
		return nil, &Error{Op: "search", Err: jiraError(resp, err)}
	}

	refs := make([]protocol.TicketRef, 0, len(issues))
	for i := range issues {
		refs = append(refs, Ref(&issues[i]))
	}
	return refs, nil
}

// FetchDetail fetches one ticket and normalizes it. Missing optional
// fields become placeholders, never errors.
func (c *Client) FetchDetail(ctx context.Context, key string) (protocol.TicketDetail, error) {
	issue, resp, err := c.jira.Issue.GetWithContext(ctx, key, nil)
	if err != nil {
		return protocol.TicketDetail{}, &Error{Op: "fetch " + key, Err: jiraError(resp, err)}
	}
	return Normalize(issue, c.acceptanceFields)
}

// AddComment posts text as a comment on the ticket.
func (c *Client) AddComment(ctx context.Context, key, body string) error {
	_, resp, err := c.jira.Issue.AddCommentWithContext(ctx, key, &jira.Comment{Body: body})
	if err != nil {
		return &Error{Op: "comment " + key, Err: jiraError(resp, err)}
	}
	return nil
}

// Myself is the connectivity check: it returns the display name of the
// authenticated user.
func (c *Client) Myself(ctx context.Context) (string, error) {
	me, resp, err := c.jira.User.GetSelfWithContext(ctx)
	if err != nil {
		return "", &Error{Op: "myself", Err: jiraError(resp, err)}
	}
	if me.DisplayName != "" {
		return me.DisplayName, nil
	}
	return me.EmailAddress, nil
}

// jiraError folds the response body into the error when available, so
// auth and query failures carry the tracker's own message.
func jiraError(resp *jira.Response, err error) error {
	if resp == nil {
		return err
	}
	return jira.NewJiraError(resp, err)
}
