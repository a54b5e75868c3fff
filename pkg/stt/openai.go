package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-voiceturn/internal/httpc"
	"github.com/teslashibe/go-voiceturn/pkg/audioio"
)

const (
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = "openai"
)

// OpenAI model options
const (
	ModelGPT4oTranscribe     = "gpt-4o-transcribe"
	ModelGPT4oMiniTranscribe = "gpt-4o-mini-transcribe"
	ModelWhisper1            = "whisper-1"
)

// OpenAI implements Provider for the OpenAI transcription API.
type OpenAI struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewOpenAI creates a new OpenAI transcription provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelGPT4oTranscribe
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	return &OpenAI{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "stt.openai"),
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// ID returns "openai".
func (o *OpenAI) ID() string { return providerOpenAI }

type openAITranscription struct {
	Text     string `json:"text"`
	Logprobs []struct {
		Token   string  `json:"token"`
		Logprob float64 `json:"logprob"`
	} `json:"logprobs"`
}

// Transcribe uploads the recording. When the model returns token logprobs
// the confidence is the geometric mean token probability.
func (o *OpenAI) Transcribe(ctx context.Context, rec *audioio.Recording) (*Result, error) {
	start := time.Now()

	fields := []formField{
		{"model", o.config.ModelID},
		{"language", o.config.Language},
		{"prompt", o.config.Prompt},
		{"response_format", "json"},
	}
	if o.config.ModelID != ModelWhisper1 {
		fields = append(fields, formField{"include[]", "logprobs"})
	}

	resp, err := uploadRecording(ctx, o.client, o.baseURL+"/audio/transcriptions", o.config.APIKey, rec, fields)
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(providerOpenAI, resp)
	}

	var out openAITranscription
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("%w: decode response: %v", ErrProviderFailed, err))
	}

	res := &Result{
		Text:      strings.TrimSpace(out.Text),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if len(out.Logprobs) > 0 {
		var sum float64
		for _, lp := range out.Logprobs {
			sum += lp.Logprob
		}
		res.Confidence = math.Exp(sum / float64(len(out.Logprobs)))
		res.HasConfidence = true
	}

	o.logger.Debug("transcribed",
		"chars", len(res.Text),
		"confidence", res.Confidence,
		"latency_ms", res.LatencyMs,
	)
	return res, nil
}

// Close releases resources.
func (o *OpenAI) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)
