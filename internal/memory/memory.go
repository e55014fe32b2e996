// Package memory defines the long-term memory / knowledge-graph
// collaborator the Strategist and Auditor consult for past-task recall and
// rejection history. It is deliberately narrow: Recall, Remember, and
// WriteRejection are the only operations any agent needs, matching the
// teacher's pattern of treating external stores as small collaborator
// interfaces rather than letting callers reach into a client SDK directly.
// No production-grade backend is implemented here; see spec non-goals.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"
)

// TaskSummary is a compressed record of a previously completed task, used by
// the Strategist's create_plan memory-recall phase and by
// analyze_request's "repeat last task" resolution.
type TaskSummary struct {
	TaskID    string
	Goal      string
	Outcome   string
	Lessons   []string
	Timestamp time.Time
}

// Rejection is a structured record of an Auditor rejection, written to the
// knowledge graph for future avoidance (spec §4.8 step 5).
type Rejection struct {
	StepID    string
	Reason    string
	Report    string
	Timestamp time.Time
}

// Store is the narrow interface agents depend on. Recall answers "what do
// we know that's relevant to this query", Remember persists a completed
// task's summary when the Strategist's evaluate_execution sets
// should_remember, and WriteRejection records an Auditor rejection.
type Store interface {
	Recall(ctx context.Context, query string, limit int) ([]TaskSummary, error)
	Remember(ctx context.Context, summary TaskSummary) error
	WriteRejection(ctx context.Context, r Rejection) error
}

// InMemory is a Store implementation with no durability, grounded on
// runtime/agent/run/inmem's map-plus-mutex pattern: defensive copies on
// read and write, no persistence across process restarts. Suitable for
// tests and for running the orchestrator without a configured knowledge
// graph backend.
type InMemory struct {
	mu         sync.RWMutex
	summaries  []TaskSummary
	rejections []Rejection
}

// NewInMemory constructs an empty InMemory store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

// Recall returns the most recent summaries whose Goal contains query as a
// substring, newest first, capped at limit. A empty query matches
// everything, supporting "repeat last task" lookups that only want the
// most recent entry regardless of content.
func (m *InMemory) Recall(_ context.Context, query string, limit int) ([]TaskSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []TaskSummary
	for i := len(m.summaries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		s := m.summaries[i]
		if query == "" || strings.Contains(strings.ToLower(s.Goal), strings.ToLower(query)) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Remember appends summary, stamping Timestamp if unset.
func (m *InMemory) Remember(_ context.Context, summary TaskSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if summary.Timestamp.IsZero() {
		summary.Timestamp = time.Now()
	}
	m.summaries = append(m.summaries, summary)
	return nil
}

// WriteRejection appends r, stamping Timestamp if unset.
func (m *InMemory) WriteRejection(_ context.Context, r Rejection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	m.rejections = append(m.rejections, r)
	return nil
}

// Rejections returns a copy of every rejection recorded so far, newest
// last. Exposed for tests.
func (m *InMemory) Rejections() []Rejection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Rejection(nil), m.rejections...)
}
