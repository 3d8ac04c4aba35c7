package batch

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is the observable state of one batch run. Done increases
// monotonically as items are processed, so another request can poll
// progress while the run is still going.
type Job struct {
	ID         string     `json:"id"`
	Total      int        `json:"total"`
	Done       int        `json:"done"`
	Results    []Result   `json:"results"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Registry tracks batch jobs in memory for the life of the process.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Start registers a new job for a batch of the given size.
func (r *Registry) Start(total int) *Job {
	j := &Job{
		ID:        uuid.NewString(),
		Total:     total,
		Results:   []Result{},
		StartedAt: time.Now(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = j
	return j
}

// Step records one processed item on the job.
func (r *Registry) Step(id string, res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return
	}
	j.Done++
	j.Results = append(j.Results, res)
}

// Finish marks the job complete.
func (r *Registry) Finish(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	j.FinishedAt = &now
}

// Get returns a snapshot of the job, safe to serialize while the run
// continues.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	snap := *j
	snap.Results = make([]Result, len(j.Results))
	copy(snap.Results, j.Results)
	return snap, true
}
