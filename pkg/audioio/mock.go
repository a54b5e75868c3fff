package audioio

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockCapturer is a capturer for testing. Each Start returns a MockSession
// that yields Recording on Stop.
type MockCapturer struct {
	// StartErr, when set, is returned by Start.
	StartErr error

	// Recording is returned by every session's Stop.
	Recording *Recording

	// StopErr, when set, is returned by every session's Stop.
	StopErr error

	mu       sync.Mutex
	sessions []*MockSession
	starts   atomic.Int32
}

var _ Capturer = (*MockCapturer)(nil)

// NewMockCapturer creates a capturer whose sessions return rec.
func NewMockCapturer(rec *Recording) *MockCapturer {
	return &MockCapturer{Recording: rec}
}

// Start opens a mock session.
func (m *MockCapturer) Start(ctx context.Context) (CaptureSession, error) {
	m.starts.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.StartErr != nil {
		return nil, m.StartErr
	}

	var rec *Recording
	if m.Recording != nil {
		cp := *m.Recording
		cp.Data = append([]byte(nil), m.Recording.Data...)
		rec = &cp
	}
	s := &MockSession{rec: rec, stopErr: m.StopErr}

	m.mu.Lock()
	m.sessions = append(m.sessions, s)
	m.mu.Unlock()
	return s, nil
}

// Starts returns how many times Start was called.
func (m *MockCapturer) Starts() int {
	return int(m.starts.Load())
}

// Sessions returns every session opened so far.
func (m *MockCapturer) Sessions() []*MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockSession(nil), m.sessions...)
}

// Open returns how many sessions still hold the device.
func (m *MockCapturer) Open() int {
	n := 0
	for _, s := range m.Sessions() {
		if !s.Released() {
			n++
		}
	}
	return n
}

// MockSession is a capture session for testing.
type MockSession struct {
	rec     *Recording
	stopErr error

	mu       sync.Mutex
	released bool
	aborted  bool
	stops    int
}

var _ CaptureSession = (*MockSession)(nil)

// Stop releases the device and returns the configured recording.
func (s *MockSession) Stop() (*Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	if s.aborted {
		return nil, ErrCaptureClosed
	}
	s.released = true
	if s.stopErr != nil {
		return nil, s.stopErr
	}
	return s.rec, nil
}

// Abort releases the device.
func (s *MockSession) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.released {
		s.aborted = true
	}
	s.released = true
}

// Released reports whether the device was released.
func (s *MockSession) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Aborted reports whether the session was aborted.
func (s *MockSession) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// MockPlayer is a player for testing.
type MockPlayer struct {
	// PlayErr, when set, is returned by Play.
	PlayErr error

	// Block makes Play wait for Stop or context cancellation.
	Block bool

	mu      sync.Mutex
	clips   []Clip
	stops   int
	playing chan struct{}
	started chan struct{}
}

var _ Player = (*MockPlayer)(nil)

// NewMockPlayer creates a mock player.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{started: make(chan struct{}, 16)}
}

// Play records the clip.
func (m *MockPlayer) Play(ctx context.Context, clip Clip) error {
	m.mu.Lock()
	m.clips = append(m.clips, clip)
	err := m.PlayErr
	var done chan struct{}
	if m.Block {
		done = make(chan struct{})
		m.playing = done
	}
	m.mu.Unlock()

	select {
	case m.started <- struct{}{}:
	default:
	}

	if err != nil {
		return err
	}
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return ErrPlaybackStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop interrupts a blocked Play.
func (m *MockPlayer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	if m.playing != nil {
		close(m.playing)
		m.playing = nil
	}
	return nil
}

// Started is signalled every time Play begins.
func (m *MockPlayer) Started() <-chan struct{} {
	return m.started
}

// Clips returns every clip passed to Play.
func (m *MockPlayer) Clips() []Clip {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Clip(nil), m.clips...)
}

// Stops returns how many times Stop was called.
func (m *MockPlayer) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}
