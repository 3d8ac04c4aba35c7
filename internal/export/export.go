// Package export turns generated test case text into its outbound
// shapes: a downloadable markdown file, a Jira comment body, and HTML
// for the browser view.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Filename names the markdown download for a ticket: the key plus the
// current date, e.g. test_cases_PROJ-1_20260825.md.
func Filename(key string, now time.Time) string {
	return fmt.Sprintf("test_cases_%s_%s.md", key, now.Format("20060102"))
}

// CommentBody wraps generated text for posting back to the ticket.
func CommentBody(text string) string {
	return "*AI Generated Test Cases*\n\n" + text
}

// The renderer configuration never changes, so one instance is shared.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// HTML renders generated markdown for display. The model output is
// treated as opaque markdown-like text; rendering is display-only and
// never validated.
func HTML(source string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
