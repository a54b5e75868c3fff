package tts

import (
	"context"
	"sync"
	"time"
)

// Mock is a scriptable Provider for tests. It records every call.
type Mock struct {
	// Name is returned by ID. Default "mock".
	Name string

	// Terminal makes the mock report itself as on-device.
	Terminal bool

	// SynthesizeFunc replaces the default silent clip when set.
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall is one recorded invocation.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock returns a mock that answers every request with silence.
func NewMock(name string) *Mock {
	return &Mock{Name: name}
}

// WithError returns a mock whose every synthesis fails with err.
func WithError(name string, err error) *Mock {
	return &Mock{
		Name: name,
		SynthesizeFunc: func(context.Context, string) (*AudioResult, error) {
			return nil, WrapError(name, err)
		},
	}
}

// WithLatency delays every synthesis of m by delay, honoring cancellation.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	next := m.SynthesizeFunc
	m.SynthesizeFunc = func(ctx context.Context, text string) (*AudioResult, error) {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if next == nil {
			return silentClip(text), nil
		}
		return next(ctx, text)
	}
	return m
}

// silentClip is 20ms of 24kHz mono PCM16 per character.
func silentClip(text string) *AudioResult {
	const perChar = 20 * time.Millisecond
	d := time.Duration(len(text)) * perChar
	return &AudioResult{
		Audio:     make([]byte, int(d/time.Millisecond)*48),
		Format:    AudioFormat{Encoding: EncodingPCM24, SampleRate: 24000, Channels: 1, BitDepth: 16},
		CharCount: len(text),
		LatencyMs: 1,
		Duration:  d,
	}
}

// ID returns the mock name.
func (m *Mock) ID() string {
	if m.Name == "" {
		return "mock"
	}
	return m.Name
}

// OnDevice reports the Terminal field.
func (m *Mock) OnDevice() bool { return m.Terminal }

// Synthesize records the text and runs SynthesizeFunc.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.record("Synthesize", text)
	if m.SynthesizeFunc == nil {
		return silentClip(text), nil
	}
	return m.SynthesizeFunc(ctx, text)
}

// Close records the call.
func (m *Mock) Close() error {
	m.record("Close", "")
	return nil
}

func (m *Mock) record(method, text string) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: method, Text: text, Time: time.Now()})
	m.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns how often method was called.
func (m *Mock) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Spoken returns the text of every Synthesize call in order.
func (m *Mock) Spoken() []string {
	var out []string
	for _, c := range m.Calls() {
		if c.Method == "Synthesize" {
			out = append(out, c.Text)
		}
	}
	return out
}

// LastCall returns the most recent call, or nil.
func (m *Mock) LastCall() *MockCall {
	calls := m.Calls()
	if len(calls) == 0 {
		return nil
	}
	return &calls[len(calls)-1]
}

// Reset forgets the recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

var _ Provider = (*Mock)(nil)
