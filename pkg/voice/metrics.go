package voice

import (
	"sync"
	"time"
)

// Latency holds the stage timings of one turn, measured from the moment the
// user stopped speaking (or submitted typed text).
type Latency struct {
	// Timestamps for key events
	TurnStart      time.Time `json:"turn_start"`
	TranscriptTime time.Time `json:"transcript_time,omitempty"`
	ReplyTime      time.Time `json:"reply_time,omitempty"`
	DoneTime       time.Time `json:"done_time,omitempty"`

	// Computed latencies
	ASR    time.Duration `json:"asr"`    // Time to an accepted transcript
	Chat   time.Duration `json:"chat"`   // Time until the reply arrived
	Speech time.Duration `json:"speech"` // Time spent synthesizing and playing
	Total  time.Duration `json:"total"`  // Total end-to-end latency
}

// LatencyTracker collects per-turn latencies. It is goroutine-safe.
type LatencyTracker struct {
	mu      sync.Mutex
	current Latency
	history []Latency // Recent turns for averaging

	onUpdate func(Latency)
}

const latencyHistory = 100

// NewLatencyTracker creates a tracker.
func NewLatencyTracker() *LatencyTracker {
	return &LatencyTracker{
		history: make([]Latency, 0, latencyHistory),
	}
}

// OnUpdate sets a callback that fires when a turn completes.
func (m *LatencyTracker) OnUpdate(fn func(Latency)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// MarkTurnStart resets the tracker for a new turn. This is the reference
// point for all latency measurements.
func (m *LatencyTracker) MarkTurnStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Latency{TurnStart: time.Now()}
}

// MarkTranscript records when transcription completed.
func (m *LatencyTracker) MarkTranscript() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.TranscriptTime = time.Now()
	if !m.current.TurnStart.IsZero() {
		m.current.ASR = m.current.TranscriptTime.Sub(m.current.TurnStart)
	}
}

// MarkReply records when the chat reply arrived.
func (m *LatencyTracker) MarkReply() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ReplyTime = time.Now()
	from := m.current.TranscriptTime
	if from.IsZero() {
		from = m.current.TurnStart
	}
	if !from.IsZero() {
		m.current.Chat = m.current.ReplyTime.Sub(from)
	}
}

// MarkDone records the end of the turn and archives it.
func (m *LatencyTracker) MarkDone() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.TurnStart.IsZero() {
		return
	}
	m.current.DoneTime = time.Now()
	m.current.Total = m.current.DoneTime.Sub(m.current.TurnStart)
	if !m.current.ReplyTime.IsZero() {
		m.current.Speech = m.current.DoneTime.Sub(m.current.ReplyTime)
	}

	m.history = append(m.history, m.current)
	if len(m.history) > latencyHistory {
		m.history = m.history[1:]
	}
	if m.onUpdate != nil {
		l := m.current
		go m.onUpdate(l)
	}
}

// Current returns the current turn's latencies.
func (m *LatencyTracker) Current() Latency {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Turns returns how many completed turns are retained.
func (m *LatencyTracker) Turns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Average returns average latencies over recent turns.
func (m *LatencyTracker) Average() Latency {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return Latency{}
	}

	var avg Latency
	for _, h := range m.history {
		avg.ASR += h.ASR
		avg.Chat += h.Chat
		avg.Speech += h.Speech
		avg.Total += h.Total
	}

	n := time.Duration(len(m.history))
	avg.ASR /= n
	avg.Chat /= n
	avg.Speech /= n
	avg.Total /= n

	return avg
}

// FormatLatency returns a one-line summary.
func (l Latency) FormatLatency() string {
	return formatDuration(l.ASR) + " ASR | " +
		formatDuration(l.Chat) + " CHAT | " +
		formatDuration(l.Speech) + " TTS | " +
		formatDuration(l.Total) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
