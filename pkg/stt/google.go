package stt

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/speech/v1"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
)

const providerGoogle = "google"

// Google implements Provider for Google Cloud Speech-to-Text v1.
// Credentials come from the API key when set, otherwise from Application
// Default Credentials.
type Google struct {
	config  *Config
	service *speech.Service
	logger  *slog.Logger
}

// NewGoogle creates a new Google Cloud transcription provider.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.ModelID = "latest_short"
	cfg.Apply(opts...)

	clientOpts := []option.ClientOption{}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	} else {
		ts, err := google.DefaultTokenSource(ctx, speech.CloudPlatformScope)
		if err != nil {
			return nil, WrapError(providerGoogle, fmt.Errorf("%w: no API key and no default credentials: %v", ErrNoAPIKey, err))
		}
		clientOpts = append(clientOpts, option.WithTokenSource(ts))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL))
	}

	svc, err := speech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create service: %w", err))
	}

	return &Google{
		config:  cfg,
		service: svc,
		logger:  cfg.Logger.With("component", "stt.google"),
	}, nil
}

// ID returns "google".
func (g *Google) ID() string { return providerGoogle }

// Transcribe sends the recording inline to speech:recognize.
func (g *Google) Transcribe(ctx context.Context, rec *audioio.Recording) (*Result, error) {
	start := time.Now()

	encoding, rate, err := googleEncoding(rec)
	if err != nil {
		return nil, WrapError(providerGoogle, err)
	}

	req := &speech.RecognizeRequest{
		Config: &speech.RecognitionConfig{
			Encoding:                   encoding,
			SampleRateHertz:            int64(rate),
			LanguageCode:               googleLanguage(g.config.Language),
			Model:                      g.config.ModelID,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speech.RecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(rec.Data),
		},
	}

	resp, err := g.service.Speech.Recognize(req).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return nil, &APIError{StatusCode: gerr.Code, Message: gerr.Message, Provider: providerGoogle}
		}
		return nil, WrapError(providerGoogle, err)
	}

	res := &Result{LatencyMs: time.Since(start).Milliseconds()}
	var parts []string
	var confSum float64
	var confN int
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		parts = append(parts, strings.TrimSpace(alt.Transcript))
		if alt.Confidence > 0 {
			confSum += alt.Confidence
			confN++
		}
	}
	res.Text = strings.TrimSpace(strings.Join(parts, " "))
	if confN > 0 {
		res.Confidence = confSum / float64(confN)
		res.HasConfidence = true
	}

	g.logger.Debug("transcribed",
		"chars", len(res.Text),
		"confidence", res.Confidence,
		"latency_ms", res.LatencyMs,
	)
	return res, nil
}

// Close releases resources.
func (g *Google) Close() error {
	return nil
}

// googleEncoding maps a recording onto a RecognitionConfig encoding and
// sample rate.
func googleEncoding(rec *audioio.Recording) (string, int, error) {
	switch audioio.BaseMIMEType(rec.MIMEType) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		if len(rec.Data) >= 28 && string(rec.Data[0:4]) == "RIFF" {
			return "LINEAR16", int(binary.LittleEndian.Uint32(rec.Data[24:28])), nil
		}
		return "", 0, fmt.Errorf("%w: malformed wav header", ErrUnsupportedFormat)
	case "audio/ogg", "audio/opus":
		return "OGG_OPUS", opusInputRate(rec.Data), nil
	case "audio/webm":
		return "WEBM_OPUS", 48000, nil
	case "audio/flac":
		return "FLAC", 0, nil
	default:
		return "", 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, rec.MIMEType)
	}
}

// opusInputRate reads the input sample rate from an OpusHead packet.
func opusInputRate(data []byte) int {
	i := strings.Index(string(data[:min(len(data), 512)]), "OpusHead")
	if i < 0 || len(data) < i+16 {
		return 48000
	}
	rate := int(binary.LittleEndian.Uint32(data[i+12 : i+16]))
	if rate == 0 {
		return 48000
	}
	return rate
}

func googleLanguage(lang string) string {
	switch lang {
	case "":
		return "en-US"
	case "en":
		return "en-US"
	default:
		return lang
	}
}

// Verify Google implements Provider at compile time.
var _ Provider = (*Google)(nil)
