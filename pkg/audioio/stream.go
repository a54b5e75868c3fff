package audioio

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// StreamCapture is a capturer fed by a remote client. The client announces a
// recording with Announce (its MIME type or its own acquisition error), then
// pushes encoded chunks with Push while the session is open.
type StreamCapture struct {
	logger *slog.Logger

	mu      sync.Mutex
	mime    string
	failure string
	active  *streamSession
}

var _ Capturer = (*StreamCapture)(nil)

// NewStreamCapture creates a capturer for client-pushed audio.
func NewStreamCapture(logger *slog.Logger) *StreamCapture {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamCapture{logger: logger.With("component", "audioio.stream")}
}

// Announce records what the client reported when it tried to open its
// microphone. A non-empty errName makes the next Start fail.
func (c *StreamCapture) Announce(mime, errName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mime = mime
	c.failure = errName
}

// Start opens a session for the announced recording.
func (c *StreamCapture) Start(ctx context.Context) (CaptureSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.failure != "" {
		failure := c.failure
		c.failure = ""
		c.mu.Unlock()
		return nil, &DeviceError{Kind: ClassifyClientError(failure), Backend: "stream", Detail: failure}
	}

	mime := c.mime
	if mime == "" {
		mime = PreferredMIMETypes[0]
	}
	prev := c.active
	s := &streamSession{owner: c, mime: mime, started: time.Now()}
	c.active = s
	c.mu.Unlock()

	if prev != nil {
		prev.Abort()
	}
	c.logger.Debug("stream capture opened", "mime", mime)
	return s, nil
}

// Push appends a chunk to the open session.
func (c *StreamCapture) Push(chunk []byte) error {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return ErrNotCapturing
	}
	return s.push(chunk)
}

// Active reports whether a session is open.
func (c *StreamCapture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

func (c *StreamCapture) release(s *streamSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == s {
		c.active = nil
	}
}

type streamSession struct {
	owner   *StreamCapture
	mime    string
	started time.Time

	mu     sync.Mutex
	data   []byte
	closed bool

	once    sync.Once
	aborted bool
	rec     *Recording
	err     error
}

func (s *streamSession) push(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotCapturing
	}
	s.data = append(s.data, chunk...)
	return nil
}

func (s *streamSession) close() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	data := s.data
	s.data = nil
	return data
}

// Stop closes the stream and returns everything pushed so far.
func (s *streamSession) Stop() (*Recording, error) {
	s.once.Do(func() {
		data := s.close()
		s.owner.release(s)
		if len(data) == 0 {
			s.err = &DeviceError{Kind: ErrDeviceError, Backend: "stream", Detail: "no audio received"}
			return
		}
		s.rec = &Recording{Data: data, MIMEType: s.mime, Duration: time.Since(s.started)}
	})
	if s.aborted {
		return nil, ErrCaptureClosed
	}
	return s.rec, s.err
}

// Abort closes the stream and discards it.
func (s *streamSession) Abort() {
	s.once.Do(func() {
		s.aborted = true
		s.close()
		s.owner.release(s)
	})
}
