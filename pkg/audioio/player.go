package audioio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// Clip is a synthesized audio buffer ready for playback.
type Clip struct {
	// Data holds the audio bytes.
	Data []byte

	// Format is "mp3", "wav", "ogg" or "pcm".
	Format string

	// SampleRate of PCM data. Ignored for containers.
	SampleRate int

	// Channels of PCM data. Ignored for containers.
	Channels int
}

// MIMEType returns the content type of the clip.
func (c Clip) MIMEType() string {
	switch c.Format {
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "pcm":
		return "audio/L16;rate=" + strconv.Itoa(c.SampleRate)
	default:
		return "audio/wav"
	}
}

// Player plays synthesized clips.
type Player interface {
	// Play blocks until the clip has finished playing. It returns an error
	// matching ErrPlayback when the clip could not be played, and
	// ErrPlaybackStopped when Stop interrupted it.
	Play(ctx context.Context, clip Clip) error

	// Stop halts any playback in progress. Idempotent.
	Stop() error
}

// ExecPlayer plays clips through a host command (ffplay, aplay or afplay).
type ExecPlayer struct {
	command string
	logger  *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped bool
}

var _ Player = (*ExecPlayer)(nil)

// NewExecPlayer creates a player. An empty command picks afplay on macOS and
// ffplay elsewhere.
func NewExecPlayer(command string, logger *slog.Logger) *ExecPlayer {
	if logger == nil {
		logger = slog.Default()
	}
	if command == "" {
		command = "ffplay"
		if runtime.GOOS == "darwin" {
			command = "afplay"
		}
	}
	return &ExecPlayer{command: command, logger: logger.With("component", "audioio.player")}
}

// Play writes the clip to a temp file and runs the player on it.
func (p *ExecPlayer) Play(ctx context.Context, clip Clip) error {
	if len(clip.Data) == 0 {
		return fmt.Errorf("%w: empty clip", ErrPlayback)
	}

	data := clip.Data
	format := clip.Format
	if format == "pcm" {
		channels := clip.Channels
		if channels == 0 {
			channels = 1
		}
		data = EncodeWAV(data, clip.SampleRate, channels)
		format = "wav"
	}

	f, err := os.CreateTemp("", "voiceturn-*."+format)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlayback, err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", ErrPlayback, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrPlayback, err)
	}

	cmd := exec.CommandContext(ctx, p.command, p.args(path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	p.mu.Lock()
	p.stopped = false
	p.mu.Unlock()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrPlayback, err)
	}

	p.mu.Lock()
	p.cmd = cmd
	if p.stopped {
		_ = cmd.Process.Kill()
	}
	p.mu.Unlock()

	err = cmd.Wait()

	p.mu.Lock()
	stopped := p.stopped
	p.cmd = nil
	p.mu.Unlock()

	switch {
	case stopped:
		return ErrPlaybackStopped
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		return fmt.Errorf("%w: %s: %v: %s", ErrPlayback, filepath.Base(p.command), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (p *ExecPlayer) args(path string) []string {
	switch filepath.Base(p.command) {
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "error", path}
	case "aplay", "paplay", "afplay":
		return []string{path}
	case "mpv":
		return []string{"--no-video", "--really-quiet", path}
	default:
		return []string{path}
	}
}

// Stop kills the running player process, if any.
func (p *ExecPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.cmd == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	p.logger.Debug("playback stopped")
	return nil
}
