// Package generate holds the boundary to the LLM completion services.
package generate

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoAPIKey means the client was asked to generate without a key
// configured; no network call is made in that case.
var ErrNoAPIKey = errors.New("api key is required")

// Error is a generation failure: a missing or rejected API key, a
// network failure, or an upstream error response. Not retried.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string { return fmt.Sprintf("generate: %s: %v", e.Provider, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Generator is the abstraction over LLM completion APIs. Generate sends
// a single request with a fixed system message plus the built prompt and
// returns the completion as one opaque text blob.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}
