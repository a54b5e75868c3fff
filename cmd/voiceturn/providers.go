package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-voiceturn/internal/config"
	"github.com/teslashibe/go-voiceturn/pkg/chat"
	"github.com/teslashibe/go-voiceturn/pkg/conversation"
	"github.com/teslashibe/go-voiceturn/pkg/metrics"
	"github.com/teslashibe/go-voiceturn/pkg/stt"
	"github.com/teslashibe/go-voiceturn/pkg/tts"
	"github.com/teslashibe/go-voiceturn/pkg/web"
)

// buildSTT creates the transcription providers in configured order. A cloud
// provider without credentials is skipped with a warning.
func buildSTT(ctx context.Context, cfg config.STTConfig, logger *slog.Logger) ([]stt.Provider, error) {
	var out []stt.Provider
	for _, id := range cfg.Order {
		p, err := newSTT(ctx, id, cfg, logger)
		if err != nil {
			logger.Warn("transcription provider unavailable", "provider", id, "error", err)
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no transcription provider available from %v", cfg.Order)
	}
	return out, nil
}

func newSTT(ctx context.Context, id string, cfg config.STTConfig, logger *slog.Logger) (stt.Provider, error) {
	common := []stt.Option{stt.WithLanguage(cfg.Language), stt.WithLogger(logger)}
	cloud := func(pc config.ProviderConfig) []stt.Option {
		return append([]stt.Option{
			stt.WithAPIKey(pc.APIKey),
			stt.WithBaseURL(pc.BaseURL),
			stt.WithModel(pc.Model),
			stt.WithTimeout(cfg.Timeout),
		}, common...)
	}

	switch id {
	case config.ProviderOpenAI:
		return stt.NewOpenAI(cloud(cfg.OpenAI)...)
	case config.ProviderNIM:
		return stt.NewNIM(cloud(cfg.NIM)...)
	case config.ProviderGoogle:
		return stt.NewGoogle(ctx, cloud(cfg.Google)...)
	case config.ProviderLocal:
		opts := append([]stt.Option{stt.WithCommand(cfg.Local.Command, cfg.Local.Args...)}, common...)
		if cfg.Local.Model != "" {
			opts = append(opts, stt.WithModel(cfg.Local.Model))
		}
		return stt.NewLocal(opts...)
	default:
		return nil, fmt.Errorf("unknown provider %q", id)
	}
}

// buildTTS creates the synthesis providers in configured order.
func buildTTS(ctx context.Context, cfg config.TTSConfig, logger *slog.Logger) ([]tts.Provider, error) {
	var out []tts.Provider
	for _, id := range cfg.Order {
		p, err := newTTS(ctx, id, cfg, logger)
		if err != nil {
			logger.Warn("voice provider unavailable", "provider", id, "error", err)
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no voice provider available from %v", cfg.Order)
	}
	return out, nil
}

func newTTS(ctx context.Context, id string, cfg config.TTSConfig, logger *slog.Logger) (tts.Provider, error) {
	cloud := func(pc config.ProviderConfig) []tts.Option {
		return []tts.Option{
			tts.WithAPIKey(pc.APIKey),
			tts.WithBaseURL(pc.BaseURL),
			tts.WithModel(pc.Model),
			tts.WithTimeout(cfg.Timeout),
			tts.WithLogger(logger),
		}
	}

	switch id {
	case config.ProviderElevenLabs:
		return newElevenLabs(cfg, logger)
	case config.ProviderOpenAI:
		return tts.NewOpenAI(append(cloud(cfg.OpenAI.ProviderConfig),
			tts.WithVoice(cfg.OpenAI.Voice),
			tts.WithInstructions(cfg.OpenAI.Instructions),
		)...)
	case config.ProviderGoogle:
		return tts.NewGoogle(ctx, append(cloud(cfg.Google.ProviderConfig),
			tts.WithVoice(cfg.Google.Voice),
			tts.WithLanguageCode(cfg.Google.LanguageCode),
		)...)
	case config.ProviderLocal:
		return tts.NewLocal(
			tts.WithCommand(cfg.Local.Command, cfg.Local.Args...),
			tts.WithLogger(logger),
		)
	default:
		return nil, fmt.Errorf("unknown provider %q", id)
	}
}

func newElevenLabs(cfg config.TTSConfig, logger *slog.Logger) (*tts.ElevenLabs, error) {
	pc := cfg.ElevenLabs.ProviderConfig
	return tts.NewElevenLabs(
		tts.WithAPIKey(pc.APIKey),
		tts.WithBaseURL(pc.BaseURL),
		tts.WithModel(pc.Model),
		tts.WithVoice(cfg.ElevenLabs.VoiceID),
		tts.WithOutputFormat(tts.EncodingMP3),
		tts.WithTimeout(cfg.Timeout),
		tts.WithLogger(logger),
	)
}

// buildChat creates the chat client. A missing API key is not an error:
// the client answers with ErrNoAPIKey per request.
func buildChat(cfg config.ChatConfig, logger *slog.Logger) (chat.Client, error) {
	opts := []chat.Option{
		chat.WithHistoryWindow(cfg.HistoryWindow),
		chat.WithTimeout(cfg.Timeout),
		chat.WithLogger(logger),
	}
	if cfg.Backend == config.ChatRemote {
		return chat.NewRemote(cfg.RemoteURL, opts...)
	}

	opts = append(opts,
		chat.WithAPIKey(cfg.APIKey),
		chat.WithBaseURL(cfg.BaseURL),
		chat.WithModel(cfg.Model),
		chat.WithTemperature(cfg.Temperature),
		chat.WithTopP(cfg.TopP),
		chat.WithMaxTokens(cfg.MaxTokens),
	)
	if cfg.SystemPrompt != "" {
		opts = append(opts, chat.WithSystemPrompt(cfg.SystemPrompt))
	}
	return chat.NewCompletions(opts...)
}

// pipeline is everything a session is built from.
type pipeline struct {
	providers web.Providers
	metrics   *metrics.Metrics
}

func buildPipeline(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*pipeline, error) {
	sttProviders, err := buildSTT(ctx, cfg.STT, logger)
	if err != nil {
		return nil, err
	}
	ttsProviders, err := buildTTS(ctx, cfg.TTS, logger)
	if err != nil {
		return nil, err
	}
	client, err := buildChat(cfg.Chat, logger)
	if err != nil {
		return nil, err
	}

	return &pipeline{
		metrics: m,
		providers: web.Providers{
			STT:  sttProviders,
			TTS:  ttsProviders,
			Chat: client,
			STTOptions: []stt.ChainOption{
				stt.WithCallTimeout(cfg.STT.Timeout),
				stt.WithConfidenceThreshold(cfg.STT.ConfidenceThreshold),
				stt.WithMaxHops(cfg.STT.MaxHops),
			},
			TTSOptions: []tts.ChainOption{
				tts.WithCallTimeout(cfg.TTS.Timeout),
			},
			ConversationOptions: []conversation.Option{
				conversation.WithWindow(cfg.Chat.HistoryWindow),
			},
		},
	}, nil
}
