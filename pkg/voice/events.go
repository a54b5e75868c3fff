package voice

import (
	"sync"
	"time"
)

// EventType identifies what an Event carries.
type EventType string

const (
	EventState      EventType = "state"
	EventNotice     EventType = "notice"
	EventTranscript EventType = "transcript"
	EventReply      EventType = "reply"
)

// Event is one observable step of a session.
type Event struct {
	Type       EventType `json:"type"`
	Session    string    `json:"session,omitempty"`
	Time       time.Time `json:"time"`
	State      State     `json:"state,omitempty"`
	From       State     `json:"from,omitempty"`
	Notice     *Notice   `json:"notice,omitempty"`
	Text       string    `json:"text,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Provider   string    `json:"provider,omitempty"`
}

// EventSink observes a controller. Emit is called with the controller's
// lock held, so it must not block or call back into the controller.
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

// Emit calls f.
func (f SinkFunc) Emit(e Event) { f(e) }

// MultiSink fans events out to several sinks in order.
type MultiSink []EventSink

// Emit forwards e to every sink.
func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// Recorder is an EventSink that keeps every event. Useful in tests and
// for the terminal client.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// States returns the sequence of states entered.
func (r *Recorder) States() []State {
	var out []State
	for _, e := range r.OfType(EventState) {
		out = append(out, e.State)
	}
	return out
}
