package stt

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
)

// Mock implements Provider for testing.
// All methods can be customized via function fields.
type Mock struct {
	// Name is returned by ID. Default "mock".
	Name string

	// Terminal makes the mock report itself as on-device.
	Terminal bool

	// TranscribeFunc is called when Transcribe is invoked.
	// If nil, returns "hello" with no confidence.
	TranscribeFunc func(ctx context.Context, rec *audioio.Recording) (*Result, error)

	// Tracking
	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Bytes  int
	Time   time.Time
}

// NewMock creates a mock provider that always returns text with the given
// confidence.
func NewMock(name, text string, confidence float64) *Mock {
	return &Mock{
		Name: name,
		TranscribeFunc: func(ctx context.Context, rec *audioio.Recording) (*Result, error) {
			return &Result{Text: text, Confidence: confidence, HasConfidence: true}, nil
		},
	}
}

// NewFailingMock creates a mock provider that always fails with err.
func NewFailingMock(name string, err error) *Mock {
	return &Mock{
		Name: name,
		TranscribeFunc: func(ctx context.Context, rec *audioio.Recording) (*Result, error) {
			return nil, WrapError(name, err)
		},
	}
}

// NewHangingMock creates a mock provider that blocks until its context ends.
func NewHangingMock(name string) *Mock {
	return &Mock{
		Name: name,
		TranscribeFunc: func(ctx context.Context, rec *audioio.Recording) (*Result, error) {
			<-ctx.Done()
			return nil, WrapError(name, ctx.Err())
		},
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

// Transcribe calls TranscribeFunc and records the call.
func (m *Mock) Transcribe(ctx context.Context, rec *audioio.Recording) (*Result, error) {
	m.recordCall("Transcribe", rec.Len())
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, rec)
	}
	return &Result{Text: "hello"}, nil
}

// Close records the call.
func (m *Mock) Close() error {
	m.recordCall("Close", 0)
	return nil
}

func (m *Mock) recordCall(method string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Bytes: n, Time: time.Now()})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of calls to a specific method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
