package scheduler

import (
	"fmt"
	"sort"
	"time"
)

// Job is the contract every scheduled job satisfies
type Job interface {
	// ID returns the globally-unique job identifier
	ID() string
	// Name returns the human-readable job name
	Name() string
	// Schedule returns the job's schedule expression
	Schedule() Schedule
	// Run executes the job body, returning a short result summary or a
	// typed failure reason
	Run() (string, error)
	// Metadata returns descriptive key/value pairs for observability
	Metadata() map[string]interface{}
}

// Execution policy defaults applied when Options leaves them zero
const (
	DefaultTimeout         = 5 * time.Minute
	DefaultStreakThreshold = 3
)

// Options carries per-job execution policy
type Options struct {
	// Timeout bounds a single run; exceeding it records a failure and
	// abandons the body
	Timeout time.Duration
	// StreakThreshold is the consecutive-failure count that triggers an
	// escalation signal (advisory only, the job is never disabled)
	StreakThreshold int
}

// Definition is an immutable registered job. Built once at registration,
// never mutated afterwards.
type Definition struct {
	Job             Job
	Timeout         time.Duration
	StreakThreshold int
	matcher         Matcher
}

// DueAt reports whether the job's schedule matches the given minute
func (d *Definition) DueAt(t time.Time) bool {
	return d.matcher.DueAt(t)
}

// Registry is a process-wide, write-once-at-startup mapping from job id
// to definition. Registration happens before the dispatcher starts, so
// reads need no locking.
type Registry struct {
	defs  map[string]*Definition
	order []string
}

// NewRegistry creates an empty job registry
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a job. A duplicate id or an unparseable schedule is a
// configuration error and should be treated as fatal by the caller.
func (r *Registry) Register(job Job, opts Options) error {
	id := job.ID()
	if id == "" {
		return fmt.Errorf("job has empty id")
	}
	if _, exists := r.defs[id]; exists {
		return fmt.Errorf("duplicate job id %q", id)
	}

	matcher, err := job.Schedule().Matcher()
	if err != nil {
		return fmt.Errorf("job %q: %w", id, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	threshold := opts.StreakThreshold
	if threshold <= 0 {
		threshold = DefaultStreakThreshold
	}

	r.defs[id] = &Definition{
		Job:             job,
		Timeout:         timeout,
		StreakThreshold: threshold,
		matcher:         matcher,
	}
	r.order = append(r.order, id)
	return nil
}

// Get returns the definition for a job id
func (r *Registry) Get(id string) (*Definition, bool) {
	def, ok := r.defs[id]
	return def, ok
}

// All returns definitions in registration order
func (r *Registry) All() []*Definition {
	defs := make([]*Definition, 0, len(r.defs))
	for _, id := range r.order {
		defs = append(defs, r.defs[id])
	}
	return defs
}

// IDs returns all registered job ids, sorted
func (r *Registry) IDs() []string {
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}
