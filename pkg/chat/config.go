package chat

import (
	"log/slog"
	"time"
)

// DefaultBaseURL is the NVIDIA NIM OpenAI-compatible endpoint.
const DefaultBaseURL = "https://integrate.api.nvidia.com/v1"

// DefaultModel is the chat model served by NIM.
const DefaultModel = "meta/llama-3.1-70b-instruct"

// DefaultHistoryWindow is how many prior messages are forwarded.
const DefaultHistoryWindow = 10

// Config holds client configuration.
type Config struct {
	// Connection
	BaseURL string // API base URL, or the full endpoint for Remote
	APIKey  string

	// Generation
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	TopP         float64

	// HistoryWindow caps the prior messages sent with a request.
	HistoryWindow int

	// Timeout bounds one HTTP request.
	Timeout time.Duration

	// Retry configuration
	MaxRetries int
	RetryDelay time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring clients.
type Option func(*Config)

// WithBaseURL sets the API base URL.
// Examples: "https://integrate.api.nvidia.com/v1", "http://localhost:11434/v1"
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithSystemPrompt replaces the persona prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *Config) { c.SystemPrompt = prompt }
}

// WithMaxTokens sets the reply length limit.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithTopP sets nucleus sampling.
func WithTopP(p float64) Option {
	return func(c *Config) { c.TopP = p }
}

// WithHistoryWindow sets how many prior messages are forwarded.
func WithHistoryWindow(n int) Option {
	return func(c *Config) { c.HistoryWindow = n }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the NIM defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       DefaultBaseURL,
		Model:         DefaultModel,
		SystemPrompt:  DefaultSystemPrompt,
		MaxTokens:     250,
		Temperature:   0.95,
		TopP:          0.95,
		HistoryWindow: DefaultHistoryWindow,
		Timeout:       30 * time.Second,
		MaxRetries:    1,
		RetryDelay:    250 * time.Millisecond,
		Logger:        slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
