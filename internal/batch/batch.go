// Package batch drives test case generation for an ordered set of
// tickets: one generation call at a time, strictly in input order, with
// per-item failures recorded instead of aborting the run.
package batch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/testcraft-io/testcraft/internal/generate"
	"github.com/testcraft-io/testcraft/internal/prompt"
	"github.com/testcraft-io/testcraft/pkg/protocol"
)

// Result is the outcome for one ticket in a batch. Exactly one of Output
// and Error is set.
type Result struct {
	Key    string `json:"key"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Item is one batch input. Err carries a resolution failure (ticket
// fetch or normalization) from before the run; such items produce a
// failed Result without a generation attempt.
type Item struct {
	Detail protocol.TicketDetail
	Err    error
}

// ItemsFromDetails wraps already-normalized tickets as batch items.
func ItemsFromDetails(details []protocol.TicketDetail) []Item {
	items := make([]Item, len(details))
	for i, d := range details {
		items[i] = Item{Detail: d}
	}
	return items
}

// RecordSink receives successful generations. The session store
// implements it.
type RecordSink interface {
	PutRecord(rec protocol.GenerationRecord)
}

// Runner executes a batch sequentially against one generator.
type Runner struct {
	Gen    generate.Generator
	Model  string     // recorded on each GenerationRecord
	Sink   RecordSink // may be nil
	Logger *slog.Logger
	// OnItem observes progress after each processed ticket. done counts
	// monotonically from 1 to total.
	OnItem func(done, total int, res Result)
	// Now stamps records; defaults to time.Now.
	Now func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run processes every ticket in order and returns one Result per input.
// A failing ticket is recorded and the run continues; the batch never
// aborts early.
func (r *Runner) Run(ctx context.Context, details []protocol.TicketDetail) []Result {
	return r.RunItems(ctx, ItemsFromDetails(details))
}

// RunItems is Run for inputs that may already carry a resolution
// failure. Failed items are recorded in place, in order, and cost no
// generation call.
func (r *Runner) RunItems(ctx context.Context, items []Item) []Result {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	total := len(items)
	results := make([]Result, 0, total)
	for i, item := range items {
		res := Result{Key: item.Detail.Key}
		switch {
		case item.Err != nil:
			res.Error = item.Err.Error()
			logger.Warn("batch item skipped", "key", item.Detail.Key, "error", item.Err)
		default:
			out, err := r.Gen.Generate(ctx, prompt.Build(item.Detail))
			if err != nil {
				res.Error = err.Error()
				logger.Warn("batch item failed", "key", item.Detail.Key, "error", err)
			} else {
				res.Output = out
				if r.Sink != nil {
					r.Sink.PutRecord(protocol.GenerationRecord{
						Key:       item.Detail.Key,
						Output:    out,
						Model:     r.Model,
						CreatedAt: r.now(),
					})
				}
			}
		}
		results = append(results, res)
		if r.OnItem != nil {
			r.OnItem(i+1, total, res)
		}
	}
	return results
}

// ParseLines parses free-text batch input, one ticket per line in the
// form "key | summary | description". Lines with fewer than three
// pipe-delimited parts are silently skipped. Parsed tickets carry the
// manual-entry defaults.
func ParseLines(text string) []protocol.TicketDetail {
	var details []protocol.TicketDetail
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		parts := strings.Split(line, "|")
		if len(parts) < 3 {
			continue
		}
		details = append(details, protocol.TicketDetail{
			Key:                strings.TrimSpace(parts[0]),
			Summary:            strings.TrimSpace(parts[1]),
			Description:        strings.TrimSpace(parts[2]),
			IssueType:          "Story",
			Priority:           "Medium",
			Components:         []string{},
			AcceptanceCriteria: "Not provided",
		})
	}
	return details
}
