// Package interrupt implements the cooperative cancellation table shared by
// all in-flight queries. Cancellation is advisory: handlers poll the
// registry at defined checkpoints, nothing is preempted.
package interrupt

import (
	"sync"
	"time"
)

// QueryStatus is the externally visible lifecycle of a tracked query.
type QueryStatus string

const (
	StatusNotFound    QueryStatus = "not_found"
	StatusProcessing  QueryStatus = "processing"
	StatusInterrupted QueryStatus = "interrupted"
	StatusCompleted   QueryStatus = "completed"
)

type record struct {
	threadID    string
	query       string
	cancel      bool
	reason      string
	status      QueryStatus
	startedAt   time.Time
	cancelledAt time.Time
}

// Info is a read-only snapshot of one tracked query.
type Info struct {
	QueryID     string      `json:"query_id"`
	ThreadID    string      `json:"thread_id"`
	Query       string      `json:"query"`
	Status      QueryStatus `json:"status"`
	IsCancelled bool        `json:"is_interrupted"`
	Reason      string      `json:"reason,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CancelledAt *time.Time  `json:"cancelled_at,omitempty"`
}

// Registry owns the queryID -> cancellation flag table. It is the only
// mechanism for cancellation propagation and must be safe for concurrent
// use across independent queries.
type Registry struct {
	mu      sync.Mutex
	queries map[string]*record
}

func NewRegistry() *Registry {
	return &Registry{queries: map[string]*record{}}
}

// Register starts tracking a query. Called once per query before the
// pipeline runs.
func (r *Registry) Register(queryID, threadID, query string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries[queryID] = &record{
		threadID:  threadID,
		query:     query,
		status:    StatusProcessing,
		startedAt: time.Now().UTC(),
	}
}

// Cancel sets the cancellation flag. It reports false when the query is
// unknown or already completed and removed, which callers surface as
// not-found.
func (r *Registry) Cancel(queryID, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.queries[queryID]
	if !ok {
		return false
	}
	rec.cancel = true
	rec.reason = reason
	rec.status = StatusInterrupted
	rec.cancelledAt = time.Now().UTC()
	return true
}

// ShouldInterrupt is the checkpoint read. Unknown queries never interrupt.
func (r *Registry) ShouldInterrupt(queryID string) (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.queries[queryID]
	if !ok {
		return false, ""
	}
	return rec.cancel, rec.reason
}

// Complete marks a query finished without removing it, so a status probe
// right after the stream closes still resolves.
func (r *Registry) Complete(queryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.queries[queryID]; ok && rec.status != StatusInterrupted {
		rec.status = StatusCompleted
	}
}

// Remove drops the tracking entry and any stale flag. Called on every exit
// path of a query and on resume for the prior query id.
func (r *Registry) Remove(queryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queries, queryID)
}

// Status returns a snapshot for the status endpoint.
func (r *Registry) Status(queryID string) Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.queries[queryID]
	if !ok {
		return Info{QueryID: queryID, Status: StatusNotFound}
	}
	info := Info{
		QueryID:     queryID,
		ThreadID:    rec.threadID,
		Query:       rec.query,
		Status:      rec.status,
		IsCancelled: rec.cancel,
		Reason:      rec.reason,
		StartedAt:   rec.startedAt,
	}
	if !rec.cancelledAt.IsZero() {
		at := rec.cancelledAt
		info.CancelledAt = &at
	}
	return info
}

// Active returns the number of tracked queries, for health reporting.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queries)
}
