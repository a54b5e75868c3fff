// Package trace keeps a bounded, timestamped log of pipeline events.
//
// The buffer exists to reconstruct what happened across provider boundaries
// after the fact. It is observational only: nothing in the control path
// reads it back.
package trace

import (
	"fmt"
	"sync"
	"time"
)

// DefaultCapacity is the number of events retained per buffer.
const DefaultCapacity = 50

// Severity classifies a trace event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is one entry in the buffer.
type Event struct {
	Time     time.Time         `json:"time"`
	Severity Severity          `json:"severity"`
	Message  string            `json:"message"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// String formats the event as a single log line.
func (e Event) String() string {
	return fmt.Sprintf("%s [%s] %s", e.Time.Format("15:04:05.000"), e.Severity, e.Message)
}

// Buffer is an append-only ring of the most recent events.
// It is safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
	now    func() time.Time

	subs   map[int]func(Event)
	nextID int
}

// NewBuffer creates a buffer holding at most capacity events.
// A non-positive capacity uses DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		events: make([]Event, capacity),
		now:    time.Now,
		subs:   make(map[int]func(Event)),
	}
}

// Add appends an event, evicting the oldest when full. Add on a nil
// buffer discards the event.
func (b *Buffer) Add(sev Severity, msg string, kv ...string) Event {
	if b == nil {
		return Event{Severity: sev, Message: msg}
	}
	b.mu.Lock()
	ev := Event{Time: b.now(), Severity: sev, Message: msg, Fields: fields(kv)}
	b.events[b.next] = ev
	b.next = (b.next + 1) % len(b.events)
	if b.next == 0 {
		b.full = true
	}
	subs := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
	return ev
}

// Info records an info event.
func (b *Buffer) Info(msg string, kv ...string) { b.Add(SeverityInfo, msg, kv...) }

// Success records a success event.
func (b *Buffer) Success(msg string, kv ...string) { b.Add(SeveritySuccess, msg, kv...) }

// Warn records a warning event.
func (b *Buffer) Warn(msg string, kv ...string) { b.Add(SeverityWarning, msg, kv...) }

// Error records an error event.
func (b *Buffer) Error(msg string, kv ...string) { b.Add(SeverityError, msg, kv...) }

// Events returns the retained events, oldest first.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		out := make([]Event, b.next)
		copy(out, b.events[:b.next])
		return out
	}
	out := make([]Event, 0, len(b.events))
	out = append(out, b.events[b.next:]...)
	out = append(out, b.events[:b.next]...)
	return out
}

// Len returns the number of retained events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.events)
	}
	return b.next
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.events)
}

// Subscribe registers fn to be called after every append.
// fn runs on the appending goroutine and must not block.
// The returned function removes the subscription.
func (b *Buffer) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func fields(kv []string) map[string]string {
	if len(kv) < 2 {
		return nil
	}
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}
