package chat

import (
	"context"
	"sync"
	"time"
)

// Mock implements Client for testing.
type Mock struct {
	// ReplyFunc is called when Reply is invoked.
	ReplyFunc func(ctx context.Context, req *Request) (*Reply, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a Reply invocation.
type MockCall struct {
	Request Request
	Time    time.Time
}

// NewMock creates a mock that answers every message with reply.
func NewMock(reply string) *Mock {
	return &Mock{
		ReplyFunc: func(ctx context.Context, req *Request) (*Reply, error) {
			return &Reply{Text: reply, Model: "mock"}, nil
		},
	}
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		ReplyFunc: func(ctx context.Context, req *Request) (*Reply, error) {
			return nil, err
		},
	}
}

// Reply calls ReplyFunc and records the call.
func (m *Mock) Reply(ctx context.Context, req *Request) (*Reply, error) {
	m.record(req)
	if m.ReplyFunc != nil {
		return m.ReplyFunc(ctx, req)
	}
	return nil, WrapError("mock", ErrEmptyReply)
}

// Close calls CloseFunc.
func (m *Mock) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *Mock) record(req *Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := MockCall{Time: time.Now()}
	if req != nil {
		call.Request = Request{
			Message: req.Message,
			History: append([]Message(nil), req.History...),
		}
	}
	m.calls = append(m.calls, call)
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of Reply calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall returns the most recent call, or nil if none.
func (m *Mock) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var _ Client = (*Mock)(nil)
