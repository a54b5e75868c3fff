// Package tts provides text-to-speech providers and a failover chain that
// plays what they produce.
//
// The package supports ElevenLabs, OpenAI and Google Cloud voices plus an
// on-device fallback (espeak-ng or macOS say). All providers implement the
// Provider interface, so the chain can switch between them without changing
// caller code.
//
// Example usage:
//
//	eleven, _ := tts.NewElevenLabs(
//	    tts.WithAPIKey(os.Getenv("ELEVENLABS_API_KEY")),
//	    tts.WithVoice("rachel"),
//	)
//	local, _ := tts.NewLocal()
//	chain, _ := tts.NewChain([]tts.Provider{eleven, local}, player)
//
//	err := chain.Speak(ctx, "Hello world")
package tts

import (
	"context"
	"time"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
)

// Provider defines the TTS provider interface.
// All implementations must satisfy this interface for seamless provider switching.
type Provider interface {
	// ID names the provider ("elevenlabs", "openai", "google", "local").
	ID() string

	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Close releases any resources held by the provider.
	Close() error
}

// OnDevice is implemented by providers that run on the host. They are the
// terminal fallback of a chain and are never demoted.
type OnDevice interface {
	OnDevice() bool
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data in the specified format.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the estimated audio playback duration.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the provider round-trip time in milliseconds.
	LatencyMs int64
}

// Clip converts the result into something an audioio.Player can play.
func (r *AudioResult) Clip() audioio.Clip {
	clip := audioio.Clip{
		Data:       r.Audio,
		SampleRate: r.Format.SampleRate,
		Channels:   r.Format.Channels,
	}
	switch r.Format.Encoding {
	case EncodingMP3:
		clip.Format = "mp3"
	case EncodingOpus:
		clip.Format = "ogg"
	case EncodingWAV:
		clip.Format = "wav"
	default:
		clip.Format = "pcm"
	}
	if clip.Channels == 0 {
		clip.Channels = 1
	}
	return clip
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	// Encoding specifies the audio codec (e.g., pcm_24000, mp3_44100_128).
	Encoding Encoding

	// SampleRate in Hz (e.g., 24000, 44100, 22050).
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int

	// BitDepth for PCM formats (e.g., 16 for PCM16).
	BitDepth int
}

// Encoding represents audio encoding types.
// The PCM and MP3 values match ElevenLabs output_format options.
type Encoding string

const (
	// PCM formats (raw audio)
	EncodingPCM16 Encoding = "pcm_16000" // 16kHz mono PCM16
	EncodingPCM22 Encoding = "pcm_22050" // 22.05kHz mono PCM16
	EncodingPCM24 Encoding = "pcm_24000" // 24kHz mono PCM16
	EncodingPCM44 Encoding = "pcm_44100" // 44.1kHz mono PCM16

	// Containers
	EncodingMP3  Encoding = "mp3_44100_128" // MP3 128kbps
	EncodingOpus Encoding = "ogg_opus"      // Opus in Ogg
	EncodingWAV  Encoding = "wav"           // RIFF PCM16
)

// IsPCM reports whether e is headerless PCM16.
func (e Encoding) IsPCM() bool {
	switch e {
	case EncodingPCM16, EncodingPCM22, EncodingPCM24, EncodingPCM44:
		return true
	}
	return false
}

// MIMEType returns the content type of audio in this encoding.
func (e Encoding) MIMEType() string {
	switch {
	case e.IsPCM():
		return "audio/pcm"
	case e == EncodingOpus:
		return "audio/ogg"
	case e == EncodingWAV:
		return "audio/wav"
	default:
		return "audio/mpeg"
	}
}

// VoiceSettings controls voice characteristics for providers that support it.
// These settings affect the expressiveness and consistency of the generated speech.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0).
	// Lower values = more expressive/variable, higher = more consistent.
	Stability float64

	// SimilarityBoost controls how closely the voice matches the original (0.0-1.0).
	SimilarityBoost float64

	// Style controls style exaggeration (0.0-1.0).
	// Only supported by ElevenLabs v2 models.
	Style float64

	// SpeakerBoost enhances speaker clarity.
	SpeakerBoost bool
}

// DefaultVoiceSettings returns the expressive settings the assistant speaks with.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.3,
		SimilarityBoost: 0.75,
		Style:           0.5,
		SpeakerBoost:    true,
	}
}

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM24:
		return 24000
	case EncodingPCM44, EncodingMP3:
		return 44100
	case EncodingOpus:
		return 48000
	default:
		return 24000
	}
}

// KindTTS labels synthesis descriptors.
const KindTTS = "tts"

// Descriptor is a snapshot of one provider's standing in a chain.
type Descriptor struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Priority int    `json:"priority"`
	Healthy  bool   `json:"healthy"`
	Terminal bool   `json:"terminal"`
}

func isOnDevice(p Provider) bool {
	od, ok := p.(OnDevice)
	return ok && od.OnDevice()
}
