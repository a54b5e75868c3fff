package tts

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-voiceturn/pkg/metrics"
	"github.com/teslashibe/go-voiceturn/pkg/trace"
)

// Config holds TTS provider configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Provider credentials
	APIKey  string
	BaseURL string

	// Voice configuration
	VoiceID       string
	ModelID       string
	VoiceSettings VoiceSettings
	Instructions  string
	LanguageCode  string

	// Audio output
	OutputFormat Encoding

	// Local providers
	Command string
	Args    []string

	// Timeout bounds a single HTTP request. Zero leaves the deadline to the
	// caller's context.
	Timeout time.Duration

	// Retry configuration
	MaxRetries int
	RetryDelay time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring TTS providers.
type Option func(*Config)

// WithAPIKey sets the API key for the provider.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithVoice sets the voice ID or preset name.
func WithVoice(voiceID string) Option {
	return func(c *Config) {
		c.VoiceID = voiceID
	}
}

// WithModel sets the model ID.
func WithModel(modelID string) Option {
	return func(c *Config) {
		c.ModelID = modelID
	}
}

// WithOutputFormat sets the audio output format.
func WithOutputFormat(format Encoding) Option {
	return func(c *Config) {
		c.OutputFormat = format
	}
}

// WithVoiceSettings sets voice characteristics.
func WithVoiceSettings(settings VoiceSettings) Option {
	return func(c *Config) {
		c.VoiceSettings = settings
	}
}

// WithInstructions sets delivery instructions for providers that accept them.
func WithInstructions(instructions string) Option {
	return func(c *Config) {
		c.Instructions = instructions
	}
}

// WithLanguageCode sets the BCP-47 language of the voice.
func WithLanguageCode(code string) Option {
	return func(c *Config) {
		c.LanguageCode = code
	}
}

// WithCommand sets the binary and extra arguments of a local provider.
func WithCommand(command string, args ...string) Option {
	return func(c *Config) {
		c.Command = command
		c.Args = args
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithRetry configures retry behavior for rate-limited and 5xx responses.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the structured logger for the provider.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		ModelID:       ModelMultilingualV2,
		OutputFormat:  EncodingMP3,
		VoiceSettings: DefaultVoiceSettings(),
		LanguageCode:  "en-US",
		MaxRetries:    1,
		RetryDelay:    200 * time.Millisecond,
		Logger:        slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

// ValidateWithVoice checks that both API key and voice ID are present.
func (c *Config) ValidateWithVoice() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.VoiceID == "" {
		return ErrNoVoiceID
	}
	return nil
}

// DefaultCallTimeout bounds synthesis on network providers. Playback is not
// included.
const DefaultCallTimeout = 15 * time.Second

// ChainConfig holds chain behaviour.
type ChainConfig struct {
	// CallTimeout bounds each network synthesis call.
	CallTimeout time.Duration

	Logger  *slog.Logger
	Trace   *trace.Buffer
	Metrics *metrics.Metrics
}

// ChainOption is a functional option for configuring a Chain.
type ChainOption func(*ChainConfig)

// WithCallTimeout sets the per-call timeout for network providers.
func WithCallTimeout(d time.Duration) ChainOption {
	return func(c *ChainConfig) {
		c.CallTimeout = d
	}
}

// WithChainLogger sets the chain logger.
func WithChainLogger(logger *slog.Logger) ChainOption {
	return func(c *ChainConfig) {
		c.Logger = logger
	}
}

// WithTrace sets the diagnostic trace the chain reports to.
func WithTrace(buf *trace.Buffer) ChainOption {
	return func(c *ChainConfig) {
		c.Trace = buf
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) ChainOption {
	return func(c *ChainConfig) {
		c.Metrics = m
	}
}

// DefaultChainConfig returns the chain defaults.
func DefaultChainConfig() *ChainConfig {
	return &ChainConfig{
		CallTimeout: DefaultCallTimeout,
		Logger:      slog.Default(),
	}
}
