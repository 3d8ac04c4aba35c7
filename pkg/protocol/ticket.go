package protocol

import "errors"

// Placeholder values applied when a source ticket has no usable content
// for a field. The prompt builder relies on every field being populated,
// so normalization substitutes these rather than leaving blanks.
const (
	NoDescription        = "No description provided"
	NoAcceptanceCriteria = "No acceptance criteria provided"
	NoPriority           = "Not set"
	NoComponents         = "No components"
)

// ErrMissingKey is returned when a ticket is normalized without a key.
// Key is the only strictly required field; everything else defaults.
var ErrMissingKey = errors.New("ticket key is required")

// TicketRef is a single row of a tracker search result, in the order
// the tracker returned it.
type TicketRef struct {
	Key      string `json:"key"`
	Summary  string `json:"summary"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

// TicketDetail is the canonical, fully-defaulted projection of a ticket
// used as generation input. Treat it as immutable once constructed.
type TicketDetail struct {
	Key                string   `json:"key"`
	Summary            string   `json:"summary"`
	Description        string   `json:"description"`
	IssueType          string   `json:"issue_type"`
	Status             string   `json:"status,omitempty"`
	Priority           string   `json:"priority"`
	Components         []string `json:"components"`
	AcceptanceCriteria string   `json:"acceptance_criteria"`
}

// WithDefaults returns a copy with the placeholder rules applied to every
// optional field. Used for manually entered tickets; tracker-sourced
// tickets go through the normalizer, which applies the same rules.
func (d TicketDetail) WithDefaults() (TicketDetail, error) {
	if d.Key == "" {
		return TicketDetail{}, ErrMissingKey
	}
	if d.Description == "" {
		d.Description = NoDescription
	}
	if d.IssueType == "" {
		d.IssueType = "Story"
	}
	if d.Priority == "" {
		d.Priority = NoPriority
	}
	if d.Components == nil {
		d.Components = []string{}
	}
	if d.AcceptanceCriteria == "" {
		d.AcceptanceCriteria = NoAcceptanceCriteria
	}
	return d, nil
}
