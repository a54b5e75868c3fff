package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-voiceturn/internal/httpc"
	"github.com/teslashibe/go-voiceturn/pkg/audioio"
)

const (
	nimBaseURL  = "https://integrate.api.nvidia.com/v1"
	providerNIM = "nim"

	// ModelParakeet is the NVIDIA NIM hosted ASR model.
	ModelParakeet = "nvidia/parakeet-ctc-1.1b-asr"
)

// NIM implements Provider for NVIDIA NIM hosted speech recognition
// (OpenAI-compatible /audio/transcriptions). It reports no confidence.
type NIM struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewNIM creates a new NVIDIA NIM transcription provider.
func NewNIM(opts ...Option) (*NIM, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelParakeet
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = nimBaseURL
	}

	return &NIM{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "stt.nim"),
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// ID returns "nim".
func (n *NIM) ID() string { return providerNIM }

// Transcribe uploads the recording.
func (n *NIM) Transcribe(ctx context.Context, rec *audioio.Recording) (*Result, error) {
	start := time.Now()

	resp, err := uploadRecording(ctx, n.client, n.baseURL+"/audio/transcriptions", n.config.APIKey, rec, []formField{
		{"model", n.config.ModelID},
		{"language", n.config.Language},
		{"response_format", "json"},
	})
	if err != nil {
		return nil, WrapError(providerNIM, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(providerNIM, resp)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, WrapError(providerNIM, fmt.Errorf("%w: decode response: %v", ErrProviderFailed, err))
	}

	latency := time.Since(start).Milliseconds()
	n.logger.Debug("transcribed", "chars", len(out.Text), "latency_ms", latency)

	return &Result{Text: strings.TrimSpace(out.Text), LatencyMs: latency}, nil
}

// Close releases resources.
func (n *NIM) Close() error {
	n.client.CloseIdleConnections()
	return nil
}

// Verify NIM implements Provider at compile time.
var _ Provider = (*NIM)(nil)
