package protocol

import "time"

// GenerationRecord is the generated test case text for one ticket.
// Records live in the session store for the duration of a session and
// are overwritten each time generation succeeds for the same key.
type GenerationRecord struct {
	Key       string    `json:"key"`
	Output    string    `json:"output"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}
