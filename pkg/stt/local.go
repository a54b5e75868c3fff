package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
)

const (
	providerLocal = "local"

	// DefaultLocalCommand is the whisper.cpp command line binary.
	DefaultLocalCommand = "whisper-cli"
)

// whisper.cpp prints these for silence and noise.
var nonSpeech = regexp.MustCompile(`\[(BLANK_AUDIO|MUSIC|NOISE|SILENCE|inaudible)\]|\((?i:silence|music|noise)\)`)

// Local implements Provider with a whisper.cpp child process. It is the
// on-device fallback: never timed out by the chain and never demoted.
type Local struct {
	config *Config
	logger *slog.Logger
}

// NewLocal creates an on-device transcription provider.
func NewLocal(opts ...Option) (*Local, error) {
	cfg := DefaultConfig()
	cfg.Command = DefaultLocalCommand
	cfg.Apply(opts...)

	if cfg.Command == "" {
		cfg.Command = DefaultLocalCommand
	}

	return &Local{
		config: cfg,
		logger: cfg.Logger.With("component", "stt.local"),
	}, nil
}

// ID returns "local".
func (l *Local) ID() string { return providerLocal }

// OnDevice marks Local as the terminal provider.
func (l *Local) OnDevice() bool { return true }

// Transcribe writes the recording to a temp dir, converts it to 16kHz mono
// WAV when needed, and runs whisper.cpp on it.
func (l *Local) Transcribe(ctx context.Context, rec *audioio.Recording) (*Result, error) {
	start := time.Now()

	dir, err := os.MkdirTemp("", "voiceturn-stt-*")
	if err != nil {
		return nil, WrapError(providerLocal, err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, rec.Filename())
	if err := os.WriteFile(in, rec.Data, 0o600); err != nil {
		return nil, WrapError(providerLocal, err)
	}

	wav := in
	if !isWhisperReady(rec) {
		wav = filepath.Join(dir, "input-16k.wav")
		if err := l.convert(ctx, in, wav); err != nil {
			return nil, WrapError(providerLocal, err)
		}
	}

	args := []string{"-f", wav, "-nt", "-np"}
	if l.config.ModelID != "" {
		args = append(args, "-m", l.config.ModelID)
	}
	if l.config.Language != "" {
		args = append(args, "-l", l.config.Language)
	}
	args = append(args, l.config.Args...)

	out, err := l.run(ctx, l.config.Command, args...)
	if err != nil {
		return nil, WrapError(providerLocal, fmt.Errorf("%w: %v", ErrProviderFailed, err))
	}

	text := cleanWhisperOutput(out)
	latency := time.Since(start).Milliseconds()
	l.logger.Debug("transcribed", "chars", len(text), "latency_ms", latency)

	return &Result{Text: text, LatencyMs: latency}, nil
}

func (l *Local) convert(ctx context.Context, in, out string) error {
	converter := l.config.Converter
	if converter == "" {
		converter = "ffmpeg"
	}
	_, err := l.run(ctx, converter,
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le",
		out,
	)
	if err != nil {
		return fmt.Errorf("%w: convert: %v", ErrUnsupportedFormat, err)
	}
	return nil
}

func (l *Local) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", filepath.Base(name), err, lastLine(msg))
		}
		return "", fmt.Errorf("%s: %w", filepath.Base(name), err)
	}
	return stdout.String(), nil
}

// Close releases resources.
func (l *Local) Close() error {
	return nil
}

// isWhisperReady reports whether rec is already 16kHz mono PCM16 WAV.
func isWhisperReady(rec *audioio.Recording) bool {
	d := rec.Data
	if audioio.BaseMIMEType(rec.MIMEType) != "audio/wav" || len(d) < 36 || string(d[0:4]) != "RIFF" {
		return false
	}
	channels := binary.LittleEndian.Uint16(d[22:24])
	rate := binary.LittleEndian.Uint32(d[24:28])
	bits := binary.LittleEndian.Uint16(d[34:36])
	return channels == 1 && rate == 16000 && bits == 16
}

// cleanWhisperOutput joins transcript lines and drops non-speech markers.
func cleanWhisperOutput(out string) string {
	var parts []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(nonSpeech.ReplaceAllString(line, ""))
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Verify Local implements Provider and OnDevice at compile time.
var (
	_ Provider = (*Local)(nil)
	_ OnDevice = (*Local)(nil)
)
