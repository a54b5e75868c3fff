// Package config loads the go-voiceturn application configuration from a
// YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
)

// Provider ids accepted in stt.order and tts.order.
const (
	ProviderOpenAI     = "openai"
	ProviderNIM        = "nim"
	ProviderElevenLabs = "elevenlabs"
	ProviderGoogle     = "google"
	ProviderLocal      = "local"
)

// Chat backends.
const (
	ChatCompletions = "completions"
	ChatRemote      = "remote"
)

// Config is the root configuration.
type Config struct {
	Server ServerConfig   `yaml:"server"`
	Log    LogConfig      `yaml:"log"`
	Audio  audioio.Config `yaml:"audio"`
	STT    STTConfig      `yaml:"stt"`
	TTS    TTSConfig      `yaml:"tts"`
	Chat   ChatConfig     `yaml:"chat"`
}

// ServerConfig configures `voiceturn serve`.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	AllowOrigins string        `yaml:"allow_origins"`
	MaxSessions  int           `yaml:"max_sessions"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	PlaybackWait time.Duration `yaml:"playback_wait"`
}

// LogConfig configures internal/log.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ProviderConfig holds the credentials and endpoint of one cloud provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// STTConfig configures the transcription chain.
type STTConfig struct {
	// Order lists provider ids, highest priority first.
	Order []string `yaml:"order"`

	Timeout             time.Duration `yaml:"timeout"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	MaxHops             int           `yaml:"max_hops"`
	Language            string        `yaml:"language"`

	OpenAI ProviderConfig `yaml:"openai"`
	NIM    ProviderConfig `yaml:"nim"`
	Google ProviderConfig `yaml:"google"`
	Local  LocalConfig    `yaml:"local"`
}

// TTSConfig configures the synthesis chain.
type TTSConfig struct {
	// Order lists provider ids, highest priority first.
	Order []string `yaml:"order"`

	Timeout time.Duration `yaml:"timeout"`

	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	OpenAI     OpenAITTSConfig  `yaml:"openai"`
	Google     GoogleTTSConfig  `yaml:"google"`
	Local      LocalConfig      `yaml:"local"`
}

// ElevenLabsConfig configures the ElevenLabs voice.
type ElevenLabsConfig struct {
	ProviderConfig `yaml:",inline"`
	VoiceID        string `yaml:"voice_id"`
}

// OpenAITTSConfig configures the OpenAI voice.
type OpenAITTSConfig struct {
	ProviderConfig `yaml:",inline"`
	Voice          string `yaml:"voice"`
	Instructions   string `yaml:"instructions"`
}

// GoogleTTSConfig configures the Google Cloud voice.
type GoogleTTSConfig struct {
	ProviderConfig `yaml:",inline"`
	Voice          string `yaml:"voice"`
	LanguageCode   string `yaml:"language_code"`
}

// LocalConfig configures an on-device child process provider.
type LocalConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Model   string   `yaml:"model"`
}

// ChatConfig configures the chat collaborator.
type ChatConfig struct {
	// Backend is "completions" (OpenAI-compatible API) or "remote"
	// ({message, history} -> {response} endpoint).
	Backend string `yaml:"backend"`

	ProviderConfig `yaml:",inline"`

	RemoteURL     string        `yaml:"remote_url"`
	SystemPrompt  string        `yaml:"system_prompt"`
	Temperature   float64       `yaml:"temperature"`
	TopP          float64       `yaml:"top_p"`
	MaxTokens     int           `yaml:"max_tokens"`
	HistoryWindow int           `yaml:"history_window"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			AllowOrigins: "*",
			MaxSessions:  64,
			IdleTimeout:  30 * time.Minute,
			PlaybackWait: 2 * time.Minute,
		},
		Log:   LogConfig{Level: "info"},
		Audio: audioio.DefaultConfig(),
		STT: STTConfig{
			Order:               []string{ProviderOpenAI, ProviderNIM, ProviderLocal},
			Timeout:             15 * time.Second,
			ConfidenceThreshold: 0.5,
			MaxHops:             1,
			Language:            "en",
			OpenAI:              ProviderConfig{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-transcribe"},
			NIM:                 ProviderConfig{BaseURL: "https://integrate.api.nvidia.com/v1", Model: "nvidia/parakeet-ctc-1.1b-asr"},
			Google:              ProviderConfig{BaseURL: "https://speech.googleapis.com/", Model: "latest_short"},
			Local:               LocalConfig{Command: "whisper-cli"},
		},
		TTS: TTSConfig{
			Order:   []string{ProviderElevenLabs, ProviderOpenAI, ProviderLocal},
			Timeout: 15 * time.Second,
			ElevenLabs: ElevenLabsConfig{
				ProviderConfig: ProviderConfig{BaseURL: "https://api.elevenlabs.io/v1", Model: "eleven_multilingual_v2"},
				VoiceID:        "21m00Tcm4TlvDq8ikWAM",
			},
			OpenAI: OpenAITTSConfig{
				ProviderConfig: ProviderConfig{BaseURL: "https://api.openai.com/v1", Model: "tts-1"},
				Voice:          "nova",
				Instructions:   "You're a sarcastic, annoyed AI assistant. Be conversational and casual. Don't pause before the last word.",
			},
			Google: GoogleTTSConfig{
				ProviderConfig: ProviderConfig{BaseURL: "https://texttospeech.googleapis.com/"},
				Voice:          "en-US-Neural2-D",
				LanguageCode:   "en-US",
			},
			Local: LocalConfig{Command: "espeak-ng"},
		},
		Chat: ChatConfig{
			Backend:        ChatCompletions,
			ProviderConfig: ProviderConfig{BaseURL: "https://integrate.api.nvidia.com/v1", Model: "meta/llama-3.1-70b-instruct"},
			Temperature:    0.95,
			TopP:           0.95,
			MaxTokens:      250,
			HistoryWindow:  10,
			Timeout:        30 * time.Second,
		},
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	env := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := env("OPENAI_API_KEY"); ok {
		c.STT.OpenAI.APIKey = v
		c.TTS.OpenAI.APIKey = v
	}
	if v, ok := env("NVIDIA_API_KEY"); ok {
		c.STT.NIM.APIKey = v
		c.Chat.APIKey = v
	}
	if v, ok := env("NVIDIA_NIM_BASE_URL"); ok {
		c.STT.NIM.BaseURL = v
		c.Chat.BaseURL = v
	}
	if v, ok := env("ELEVENLABS_API_KEY"); ok {
		c.TTS.ElevenLabs.APIKey = v
	}
	if v, ok := env("ELEVENLABS_VOICE_ID"); ok {
		c.TTS.ElevenLabs.VoiceID = v
	}
	if v, ok := env("GOOGLE_API_KEY"); ok {
		c.STT.Google.APIKey = v
		c.TTS.Google.APIKey = v
	}

	if v, ok := env("VOICETURN_ADDR"); ok {
		c.Server.Address = v
	}
	if v, ok := env("VOICETURN_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := env("VOICETURN_LOG_FORMAT"); ok {
		c.Log.Format = v
	}
	if v, ok := env("VOICETURN_STT_ORDER"); ok {
		c.STT.Order = splitList(v)
	}
	if v, ok := env("VOICETURN_TTS_ORDER"); ok {
		c.TTS.Order = splitList(v)
	}
	if v, ok := env("VOICETURN_CHAT_BACKEND"); ok {
		c.Chat.Backend = v
	}
	if v, ok := env("VOICETURN_CHAT_URL"); ok {
		c.Chat.RemoteURL = v
	}
	if v, ok := env("VOICETURN_CONFIDENCE_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("VOICETURN_CONFIDENCE_THRESHOLD: %w", err)
		}
		c.STT.ConfidenceThreshold = f
	}
	if v, ok := env("VOICETURN_STT_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("VOICETURN_STT_TIMEOUT: %w", err)
		}
		c.STT.Timeout = d
	}
	if v, ok := env("VOICETURN_AUDIO_BACKEND"); ok {
		c.Audio.Backend = audioio.Backend(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(strings.ToLower(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate performs validation of the configuration.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.STT.Validate(); err != nil {
		return fmt.Errorf("stt config: %w", err)
	}
	if err := c.TTS.Validate(); err != nil {
		return fmt.Errorf("tts config: %w", err)
	}
	if err := c.Chat.Validate(); err != nil {
		return fmt.Errorf("chat config: %w", err)
	}
	if c.Server.MaxSessions < 1 {
		return fmt.Errorf("server config: max_sessions must be positive, got %d", c.Server.MaxSessions)
	}
	return nil
}

// Validate validates the transcription chain configuration.
func (s *STTConfig) Validate() error {
	if err := validateOrder(s.Order, ProviderOpenAI, ProviderNIM, ProviderGoogle, ProviderLocal); err != nil {
		return err
	}
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be within [0,1], got %v", s.ConfidenceThreshold)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", s.Timeout)
	}
	if s.MaxHops < 0 {
		return fmt.Errorf("max_hops must not be negative, got %d", s.MaxHops)
	}
	return nil
}

// Validate validates the synthesis chain configuration.
func (t *TTSConfig) Validate() error {
	if err := validateOrder(t.Order, ProviderElevenLabs, ProviderOpenAI, ProviderGoogle, ProviderLocal); err != nil {
		return err
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", t.Timeout)
	}
	return nil
}

// Validate validates the chat collaborator configuration.
func (c *ChatConfig) Validate() error {
	switch c.Backend {
	case ChatCompletions:
	case ChatRemote:
		if c.RemoteURL == "" {
			return errors.New("remote_url is required for the remote backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("history_window must not be negative, got %d", c.HistoryWindow)
	}
	return nil
}

func validateOrder(order []string, known ...string) error {
	if len(order) == 0 {
		return errors.New("order must list at least one provider")
	}
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		ok := false
		for _, k := range known {
			if id == k {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("unknown provider %q in order", id)
		}
		if seen[id] {
			return fmt.Errorf("provider %q listed twice in order", id)
		}
		seen[id] = true
	}
	return nil
}
