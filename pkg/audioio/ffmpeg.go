package audioio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FFmpegCapture records the host microphone through an ffmpeg child process
// emitting PCM16 on stdout.
type FFmpegCapture struct {
	cfg    Config
	logger *slog.Logger
}

var _ Capturer = (*FFmpegCapture)(nil)

// NewFFmpegCapture creates an ffmpeg-backed capturer.
func NewFFmpegCapture(cfg Config, logger *slog.Logger) *FFmpegCapture {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.StartProbe <= 0 {
		cfg.StartProbe = 250 * time.Millisecond
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 1200 * time.Millisecond
	}
	return &FFmpegCapture{
		cfg:    cfg,
		logger: logger.With("component", "audioio.ffmpeg"),
	}
}

func (c *FFmpegCapture) args() []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.cfg.InputFormat,
		"-i", c.cfg.InputDevice,
		"-ac", strconv.Itoa(c.cfg.Channels),
		"-ar", strconv.Itoa(c.cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// Start launches ffmpeg and waits StartProbe for it to fail early.
func (c *FFmpegCapture) Start(ctx context.Context) (CaptureSession, error) {
	cmd := exec.Command(c.cfg.Command, c.args()...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, c.deviceError(ErrDeviceError, "", err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, c.deviceError(ErrDeviceError, "capture tool not installed", err)
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, c.deviceError(ErrPermissionDenied, "", err)
		}
		return nil, c.deviceError(ErrDeviceError, "", err)
	}

	s := &ffmpegSession{
		cfg:        c.cfg,
		logger:     c.logger,
		process:    cmd.Process,
		stderr:     stderr,
		started:    time.Now(),
		readerDone: make(chan struct{}),
		waitErr:    make(chan error, 1),
	}

	go func() {
		_, _ = io.Copy(&s.pcm, stdout)
		close(s.readerDone)
	}()
	go func() {
		<-s.readerDone
		s.waitErr <- cmd.Wait()
		close(s.waitErr)
	}()

	select {
	case err := <-s.waitErr:
		detail := strings.TrimSpace(stderr.String())
		return nil, c.deviceError(ClassifyStderr(detail), detail, err)
	case <-ctx.Done():
		s.Abort()
		return nil, ctx.Err()
	case <-time.After(c.cfg.StartProbe):
	}

	c.logger.Debug("capture started",
		"input_format", c.cfg.InputFormat,
		"input_device", c.cfg.InputDevice,
		"sample_rate", c.cfg.SampleRate,
	)
	return s, nil
}

func (c *FFmpegCapture) deviceError(kind error, detail string, err error) error {
	return &DeviceError{Kind: kind, Backend: "ffmpeg", Detail: detail, Err: err}
}

type ffmpegSession struct {
	cfg     Config
	logger  *slog.Logger
	process *os.Process
	stderr  *lockedBuffer
	started time.Time

	pcm        lockedBuffer
	readerDone chan struct{}
	waitErr    chan error

	once    sync.Once
	aborted bool
	rec     *Recording
	err     error
}

// Stop interrupts ffmpeg, drains its output and encodes the PCM.
func (s *ffmpegSession) Stop() (*Recording, error) {
	s.once.Do(func() {
		exitErr := s.halt()
		pcm := s.pcm.Bytes()
		if len(pcm) == 0 {
			detail := strings.TrimSpace(s.stderr.String())
			s.err = &DeviceError{Kind: ClassifyStderr(detail), Backend: "ffmpeg", Detail: detail, Err: exitErr}
			return
		}
		s.rec, s.err = EncodePCM(pcm, s.cfg.SampleRate, s.cfg.Channels, s.cfg.Encoding)
		s.logger.Debug("capture stopped", "pcm_bytes", len(pcm), "elapsed", time.Since(s.started))
	})
	if s.aborted {
		return nil, ErrCaptureClosed
	}
	return s.rec, s.err
}

// Abort kills ffmpeg and discards the PCM.
func (s *ffmpegSession) Abort() {
	s.once.Do(func() {
		s.aborted = true
		if s.process != nil {
			_ = s.process.Kill()
		}
		<-s.waitErr
		s.pcm.Reset()
	})
}

func (s *ffmpegSession) halt() error {
	if s.process != nil {
		_ = s.process.Signal(os.Interrupt)
	}

	var err error
	select {
	case err = <-s.waitErr:
	case <-time.After(s.cfg.StopGrace):
		if s.process != nil {
			_ = s.process.Kill()
		}
		err = <-s.waitErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// lockedBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *lockedBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

