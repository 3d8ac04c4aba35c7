package tracker

import (
	"strings"

	jira "github.com/andygrunwald/go-jira"
	"github.com/trivago/tgo/tcontainer"

	"github.com/testcraft-io/testcraft/pkg/protocol"
)

// Normalize maps a raw Jira issue onto the canonical TicketDetail,
// applying the placeholder rules for absent optional fields. It is pure:
// no network access, and the only failure mode is a missing key.
func Normalize(issue *jira.Issue, acceptanceFields []string) (protocol.TicketDetail, error) {
	if issue == nil || issue.Key == "" {
		return protocol.TicketDetail{}, protocol.ErrMissingKey
	}

	d := protocol.TicketDetail{
		Key:                issue.Key,
		Description:        protocol.NoDescription,
		Priority:           protocol.NoPriority,
		Components:         []string{},
		AcceptanceCriteria: protocol.NoAcceptanceCriteria,
	}

	f := issue.Fields
	if f == nil {
		return d, nil
	}

	d.Summary = f.Summary
	d.IssueType = f.Type.Name
	if f.Description != "" {
		d.Description = f.Description
	}
	if f.Status != nil {
		d.Status = f.Status.Name
	}
	if f.Priority != nil && f.Priority.Name != "" {
		d.Priority = f.Priority.Name
	}
	for _, c := range f.Components {
		if c != nil {
			d.Components = append(d.Components, c.Name)
		}
	}
	if ac, ok := probeAcceptanceCriteria(f.Unknowns, acceptanceFields); ok {
		d.AcceptanceCriteria = ac
	}
	return d, nil
}

// probeAcceptanceCriteria walks the configured custom field IDs in order
// and accepts the first string value containing "accept" (case
// insensitive). Jira instances lay out custom fields differently, so this
// is best-effort: a miss means the placeholder, not an error.
func probeAcceptanceCriteria(unknowns tcontainer.MarshalMap, fields []string) (string, bool) {
	for _, id := range fields {
		v, ok := unknowns[id]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(s), "accept") {
			return s, true
		}
	}
	return "", false
}

// Ref projects an issue onto a search result row.
func Ref(issue *jira.Issue) protocol.TicketRef {
	r := protocol.TicketRef{Key: issue.Key, Priority: protocol.NoPriority}
	f := issue.Fields
	if f == nil {
		return r
	}
	r.Summary = f.Summary
	r.Type = f.Type.Name
	if f.Status != nil {
		r.Status = f.Status.Name
	}
	if f.Priority != nil && f.Priority.Name != "" {
		r.Priority = f.Priority.Name
	}
	return r
}
