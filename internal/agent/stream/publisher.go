// Package stream turns orchestrator and handler lifecycle transitions into
// the ordered event sequence consumed by the SSE endpoint.
package stream

import (
	"context"
	"sync"
	"time"
)

// EventType enumerates the event catalog.
type EventType string

const (
	EventStart         EventType = "start"
	EventAgentStart    EventType = "agent_start"
	EventToken         EventType = "token"
	EventAgentMessage  EventType = "agent_message"
	EventAgentComplete EventType = "agent_complete"
	EventToolStart     EventType = "tool_start"
	EventToolComplete  EventType = "tool_complete"
	EventInterrupted   EventType = "interrupted"
	EventError         EventType = "error"
	EventComplete      EventType = "complete"
	EventCancelled     EventType = "cancelled"
)

// Event is one timestamped entry of the stream.
type Event struct {
	Type      EventType `json:"type"`
	QueryID   string    `json:"query_id,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Content   string    `json:"content,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp float64   `json:"timestamp"`
}

// IsTerminal reports whether the event ends a stream.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case EventComplete, EventInterrupted, EventCancelled, EventError:
		return true
	}
	return false
}

// Publisher is an append-only, single-terminal event sink for one query.
// Timestamps are monotonically non-decreasing. All methods are safe on a
// nil receiver so call sites never need to guard.
type Publisher struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
	last   float64
}

func NewPublisher(buffer int) *Publisher {
	if buffer <= 0 {
		buffer = 64
	}
	return &Publisher{ch: make(chan Event, buffer)}
}

// Events is the channel the SSE writer drains. It is closed after the
// terminal event.
func (p *Publisher) Events() <-chan Event {
	if p == nil {
		return nil
	}
	return p.ch
}

func (p *Publisher) stamp(ev *Event) {
	ts := float64(time.Now().UnixNano()) / 1e9
	if ts < p.last {
		ts = p.last
	}
	p.last = ts
	ev.Timestamp = ts
}

// Emit appends a non-terminal event. Events after the terminal one are
// dropped, keeping the exactly-one-terminal guarantee.
func (p *Publisher) Emit(ev Event) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.stamp(&ev)
	p.ch <- ev
}

// Terminal appends the terminal event and closes the stream. Only the first
// call has any effect.
func (p *Publisher) Terminal(ev Event) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.stamp(&ev)
	p.ch <- ev
	p.closed = true
	close(p.ch)
}

type ctxKey struct{}

// NewContext attaches the publisher to ctx so graph nodes and the provider
// gateway can emit events without explicit plumbing.
func NewContext(ctx context.Context, p *Publisher) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the attached publisher, or nil (which every method
// tolerates) when the pipeline runs without a stream.
func FromContext(ctx context.Context) *Publisher {
	p, _ := ctx.Value(ctxKey{}).(*Publisher)
	return p
}

// Truncate limits msg for user-facing error events.
func Truncate(msg string, limit int) string {
	if limit <= 0 || len(msg) <= limit {
		return msg
	}
	return msg[:limit] + "..."
}
