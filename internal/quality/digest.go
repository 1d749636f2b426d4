package quality

import "sync"

// DigestQueue accumulates non-critical issues between flush events. Many
// concurrent check runs append; an external notification collaborator
// drains it exactly once per digest cycle.
type DigestQueue struct {
	mu     sync.Mutex
	issues []Issue
}

// NewDigestQueue creates an empty digest queue
func NewDigestQueue() *DigestQueue {
	return &DigestQueue{}
}

// Append adds issues to the queue
func (q *DigestQueue) Append(issues ...Issue) {
	if len(issues) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.issues = append(q.issues, issues...)
}

// Flush atomically drains and returns all accumulated issues. Appends
// racing with a flush land in the next digest cycle.
func (q *DigestQueue) Flush() []Issue {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := q.issues
	q.issues = nil
	return drained
}

// Len returns the current backlog size
func (q *DigestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.issues)
}
