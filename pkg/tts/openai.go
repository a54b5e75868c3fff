package tts

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-voiceturn/internal/httpc"
)

const (
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = "openai"
)

// OpenAI voice options
const (
	VoiceAlloy   = "alloy"   // Neutral voice
	VoiceEcho    = "echo"    // Male voice
	VoiceFable   = "fable"   // British accent
	VoiceOnyx    = "onyx"    // Deep male voice
	VoiceNova    = "nova"    // Female voice
	VoiceShimmer = "shimmer" // Soft female voice
)

// OpenAI model options
const (
	ModelTTS1      = "tts-1"           // Standard quality, faster
	ModelTTS1HD    = "tts-1-hd"        // Higher quality, slower
	ModelGPT4oMini = "gpt-4o-mini-tts" // Follows delivery instructions closely
)

// DefaultOpenAIInstructions is the delivery style sent with every request.
const DefaultOpenAIInstructions = "You're a sarcastic, annoyed AI assistant. Be conversational and casual. Don't pause before the last word."

// OpenAI implements Provider for OpenAI TTS.
type OpenAI struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewOpenAI creates a new OpenAI TTS provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTTS1
	cfg.VoiceID = VoiceNova
	cfg.Instructions = DefaultOpenAIInstructions
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.VoiceID == "" {
		cfg.VoiceID = VoiceNova
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	return &OpenAI{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "tts.openai"),
		baseURL: baseURL,
	}, nil
}

// ID returns "openai".
func (o *OpenAI) ID() string { return providerOpenAI }

type openAIRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
	Instructions   string `json:"instructions,omitempty"`
}

// Synthesize returns text as 24kHz MP3.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	audio, err := postAudio(ctx, o.client, o.config, o.logger, jsonRequest{
		provider: providerOpenAI,
		url:      o.baseURL + "/audio/speech",
		headers:  map[string]string{"Authorization": "Bearer " + o.config.APIKey},
		payload: openAIRequest{
			Model:          o.config.ModelID,
			Voice:          o.config.VoiceID,
			Input:          text,
			ResponseFormat: "mp3",
			Instructions:   o.config.Instructions,
		},
	}, parseOpenAIError)
	if err != nil {
		return nil, err
	}

	res := &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: EncodingMP3, SampleRate: 24000, Channels: 1},
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	o.logger.Debug("synthesized",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", res.LatencyMs,
		"voice", o.config.VoiceID,
	)
	return res, nil
}

// Close drops idle connections.
func (o *OpenAI) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

// VoiceID returns the configured voice.
func (o *OpenAI) VoiceID() string { return o.config.VoiceID }

// parseOpenAIError decodes the {"error": {...}} envelope when present.
func parseOpenAIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body), Provider: providerOpenAI}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Code = envelope.Error.Code
	}
	return apiErr
}

var _ Provider = (*OpenAI)(nil)
