// Package audioio provides microphone capture sessions, audio encoders and
// playback sinks.
//
// Capture backends:
//   - ffmpeg - host microphone through an ffmpeg child process
//   - stream - audio pushed by a remote client over a WebSocket
//   - mock   - tests
//
// Playback backends:
//   - exec - ffplay/aplay/afplay child process
//   - mock - tests
package audioio

import (
	"fmt"
	"runtime"
	"time"
)

// Backend represents the capture backend type.
type Backend string

const (
	// BackendAuto selects ffmpeg.
	BackendAuto Backend = "auto"
	// BackendFFmpeg captures the host microphone through ffmpeg.
	BackendFFmpeg Backend = "ffmpeg"
	// BackendStream receives audio from a remote client.
	BackendStream Backend = "stream"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Encoding names the container produced from raw PCM captures.
type Encoding string

const (
	EncodingOggOpus Encoding = "ogg_opus"
	EncodingWAV     Encoding = "wav"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which capture backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the capture sample rate in Hz.
	// Default: 16000
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// Command is the ffmpeg binary.
	Command string `yaml:"command" json:"command"`

	// InputFormat is the ffmpeg input device format.
	// Examples: "pulse", "alsa", "avfoundation"
	InputFormat string `yaml:"input_format" json:"input_format"`

	// InputDevice is the platform-specific device identifier.
	// Examples:
	//   - pulse/alsa: "default", "hw:1,0"
	//   - avfoundation: ":0"
	InputDevice string `yaml:"input_device" json:"input_device"`

	// Encoding of finished recordings.
	// Default: ogg_opus
	Encoding Encoding `yaml:"encoding" json:"encoding"`

	// StartProbe is how long Start waits for the capture tool to fail early.
	StartProbe time.Duration `yaml:"start_probe" json:"start_probe"`

	// StopGrace is how long Stop waits after SIGINT before killing.
	StopGrace time.Duration `yaml:"stop_grace" json:"stop_grace"`

	// PlayerCommand is the playback binary. Empty picks one for the platform.
	PlayerCommand string `yaml:"player_command" json:"player_command"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	cfg := Config{
		Backend:     BackendAuto,
		SampleRate:  16000,
		Channels:    1,
		Command:     "ffmpeg",
		InputFormat: "pulse",
		InputDevice: "default",
		Encoding:    EncodingOggOpus,
		StartProbe:  250 * time.Millisecond,
		StopGrace:   1200 * time.Millisecond,
	}
	if runtime.GOOS == "darwin" {
		cfg.InputFormat = "avfoundation"
		cfg.InputDevice = ":0"
	}
	return cfg
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 || c.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	switch c.Encoding {
	case EncodingOggOpus, EncodingWAV:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedEncoding, c.Encoding)
	}
	return nil
}

// BytesPerSecond returns the PCM16 byte rate of a capture.
func (c *Config) BytesPerSecond() int {
	return c.SampleRate * c.Channels * 2
}
