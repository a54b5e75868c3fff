package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const providerLocal = "local"

// DefaultLocalCommand returns espeak-ng, or say on macOS.
func DefaultLocalCommand() string {
	if runtime.GOOS == "darwin" {
		return "say"
	}
	return "espeak-ng"
}

// Local implements Provider with an on-device speech synthesizer. espeak-ng
// (and espeak) write WAV to stdout; macOS say writes a WAV file. Local is the
// terminal fallback of a chain and is never demoted.
type Local struct {
	config *Config
	logger *slog.Logger
}

// NewLocal creates an on-device synthesis provider.
func NewLocal(opts ...Option) (*Local, error) {
	cfg := DefaultConfig()
	cfg.Command = DefaultLocalCommand()
	cfg.Apply(opts...)

	if cfg.Command == "" {
		cfg.Command = DefaultLocalCommand()
	}

	return &Local{
		config: cfg,
		logger: cfg.Logger.With("component", "tts.local"),
	}, nil
}

// ID returns "local".
func (l *Local) ID() string { return providerLocal }

// OnDevice marks Local as the terminal provider.
func (l *Local) OnDevice() bool { return true }

// Synthesize runs the local synthesizer and returns WAV audio.
func (l *Local) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	var (
		audio []byte
		err   error
	)
	if filepath.Base(l.config.Command) == "say" {
		audio, err = l.say(ctx, text)
	} else {
		args := append(l.voiceArgs(), "--stdout")
		audio, err = l.run(ctx, text, append(args, l.config.Args...)...)
	}
	if err != nil {
		return nil, WrapError(providerLocal, fmt.Errorf("%w: %v", ErrProviderFailed, err))
	}
	if len(audio) == 0 {
		return nil, WrapError(providerLocal, fmt.Errorf("%w: no audio produced", ErrProviderFailed))
	}

	latency := time.Since(start).Milliseconds()
	l.logger.Debug("synthesized audio", "chars", len(text), "bytes", len(audio), "latency_ms", latency)

	return &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: EncodingWAV, SampleRate: 22050, Channels: 1, BitDepth: 16},
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

func (l *Local) voiceArgs() []string {
	if l.config.VoiceID == "" {
		return nil
	}
	return []string{"-v", l.config.VoiceID}
}

// say renders through macOS say into a temp WAV file.
func (l *Local) say(ctx context.Context, text string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "voiceturn-tts-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "speech.wav")
	args := append(l.voiceArgs(), "-o", out, "--file-format=WAVE", "--data-format=LEI16@22050")
	args = append(args, l.config.Args...)
	if _, err := l.run(ctx, text, args...); err != nil {
		return nil, err
	}
	return os.ReadFile(out)
}

// run feeds text on stdin so it is never parsed as a flag.
func (l *Local) run(ctx context.Context, text string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, l.config.Command, args...)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", filepath.Base(l.config.Command), err, msg)
		}
		return nil, fmt.Errorf("%s: %w", filepath.Base(l.config.Command), err)
	}
	return stdout.Bytes(), nil
}

// Close releases resources.
func (l *Local) Close() error {
	return nil
}

// Verify Local implements Provider and OnDevice at compile time.
var (
	_ Provider = (*Local)(nil)
	_ OnDevice = (*Local)(nil)
)
