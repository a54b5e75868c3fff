package stt

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-voiceturn/pkg/metrics"
	"github.com/teslashibe/go-voiceturn/pkg/trace"
)

// Config holds STT provider configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Provider credentials
	APIKey  string
	BaseURL string

	// Model and language
	ModelID  string
	Language string
	Prompt   string

	// Local providers
	Command   string
	Args      []string
	Converter string

	// Timeout bounds a single HTTP request. Zero leaves the deadline to the
	// caller's context.
	Timeout time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring STT providers.
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

// WithModel sets the model ID (or model file path for local providers).
func WithModel(modelID string) Option {
	return func(c *Config) {
		c.ModelID = modelID
	}
}

// WithLanguage sets the spoken language hint.
func WithLanguage(lang string) Option {
	return func(c *Config) {
		c.Language = lang
	}
}

// WithPrompt sets a transcription prompt for providers that accept one.
func WithPrompt(prompt string) Option {
	return func(c *Config) {
		c.Prompt = prompt
	}
}

// WithCommand sets the binary and extra arguments of a local provider.
func WithCommand(command string, args ...string) Option {
	return func(c *Config) {
		c.Command = command
		c.Args = args
	}
}

// WithConverter sets the binary used to turn recordings into 16kHz WAV.
func WithConverter(command string) Option {
	return func(c *Config) {
		c.Converter = command
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
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
		Language:  "en",
		Converter: "ffmpeg",
		Logger:    slog.Default(),
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

// Chain defaults.
const (
	DefaultCallTimeout         = 15 * time.Second
	DefaultConfidenceThreshold = 0.5
	DefaultMaxHops             = 1
)

// ChainConfig holds chain behaviour.
type ChainConfig struct {
	// CallTimeout bounds each network provider call.
	CallTimeout time.Duration

	// Threshold is the minimum accepted confidence.
	Threshold float64

	// MaxHops is how many fallbacks one Transcribe may take.
	MaxHops int

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

// WithConfidenceThreshold sets the minimum accepted confidence.
func WithConfidenceThreshold(t float64) ChainOption {
	return func(c *ChainConfig) {
		c.Threshold = t
	}
}

// WithMaxHops sets how many fallbacks one call may take.
func WithMaxHops(n int) ChainOption {
	return func(c *ChainConfig) {
		c.MaxHops = n
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
		Threshold:   DefaultConfidenceThreshold,
		MaxHops:     DefaultMaxHops,
		Logger:      slog.Default(),
	}
}
