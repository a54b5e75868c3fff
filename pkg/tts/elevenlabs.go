package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/teslashibe/go-voiceturn/internal/httpc"
	"github.com/teslashibe/go-voiceturn/pkg/audioio"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabs model IDs
const (
	// ModelTurboV2_5 is the fastest English model (~200ms latency).
	ModelTurboV2_5 = "eleven_turbo_v2_5"

	// ModelFlashV2_5 is the fastest multilingual model (~150ms latency).
	ModelFlashV2_5 = "eleven_flash_v2_5"

	// ModelMultilingualV2 is the highest quality multilingual model (~300ms latency).
	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ElevenLabs implements Provider for ElevenLabs TTS.
type ElevenLabs struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewElevenLabs creates a new ElevenLabs TTS provider. The voice may be a
// catalog name (see Voices) or a raw voice ID.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = DefaultElevenLabsVoiceID
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}
	cfg.VoiceID = ResolveVoice(providerElevenLabs, cfg.VoiceID)
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = EncodingMP3
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	return &ElevenLabs{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "tts.elevenlabs"),
		baseURL: baseURL,
	}, nil
}

// ID returns "elevenlabs".
func (e *ElevenLabs) ID() string { return providerElevenLabs }

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

// Synthesize returns the whole clip for text in the configured output format.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()
	vs := e.config.VoiceSettings
	enc := e.config.OutputFormat

	audio, err := postAudio(ctx, e.client, e.config, e.logger, jsonRequest{
		provider: providerElevenLabs,
		url:      e.endpoint(),
		headers: map[string]string{
			"xi-api-key": e.config.APIKey,
			"Accept":     enc.MIMEType(),
		},
		payload: elevenLabsRequest{
			Text:    text,
			ModelID: e.config.ModelID,
			VoiceSettings: elevenLabsVoiceSettings{
				Stability:       vs.Stability,
				SimilarityBoost: vs.SimilarityBoost,
				Style:           vs.Style,
				SpeakerBoost:    vs.SpeakerBoost,
			},
		},
	}, parseElevenLabsError)
	if err != nil {
		return nil, err
	}

	res := &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: enc, SampleRate: SampleRateFromEncoding(enc), Channels: 1, BitDepth: 16},
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if enc == EncodingMP3 {
		res.Duration = mp3Duration(len(audio), 128)
	} else if enc.IsPCM() {
		res.Duration = audioio.PCMDuration(len(audio), res.Format.SampleRate, 1)
	}

	e.logger.Debug("synthesized",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", res.LatencyMs,
		"model", e.config.ModelID,
	)
	return res, nil
}

// Close drops idle connections.
func (e *ElevenLabs) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// VoiceID returns the resolved voice ID.
func (e *ElevenLabs) VoiceID() string { return e.config.VoiceID }

// ModelID returns the configured model ID.
func (e *ElevenLabs) ModelID() string { return e.config.ModelID }

func (e *ElevenLabs) endpoint() string {
	q := url.Values{"output_format": {string(e.config.OutputFormat)}}
	return fmt.Sprintf("%s/text-to-speech/%s?%s", e.baseURL, url.PathEscape(e.config.VoiceID), q.Encode())
}

// parseElevenLabsError decodes {"detail": {"status", "message"}} when present.
func parseElevenLabsError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body), Provider: providerElevenLabs}

	var detail struct {
		Detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"detail"`
	}
	if json.Unmarshal(body, &detail) == nil && detail.Detail.Message != "" {
		apiErr.Message = detail.Detail.Message
		apiErr.Code = detail.Detail.Status
	}
	return apiErr
}

var _ Provider = (*ElevenLabs)(nil)
