package voice

import (
	"log/slog"

	"github.com/teslashibe/go-voiceturn/pkg/metrics"
	"github.com/teslashibe/go-voiceturn/pkg/trace"
)

// Config holds controller configuration.
type Config struct {
	// SessionID tags emitted events.
	SessionID string

	// Sink observes state changes, notices, transcripts and replies.
	Sink EventSink

	// SpeakPlaceholder makes the controller speak the placeholder reply
	// when the chat collaborator fails. When false the placeholder is only
	// recorded and shown.
	SpeakPlaceholder bool

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Trace   *trace.Buffer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SpeakPlaceholder: true,
		Logger:           slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Option is a functional option for configuring a Controller.
type Option func(*Config)

// WithSessionID sets the id attached to events.
func WithSessionID(id string) Option {
	return func(c *Config) { c.SessionID = id }
}

// WithSink sets the event sink.
func WithSink(s EventSink) Option {
	return func(c *Config) { c.Sink = s }
}

// WithSpeakPlaceholder controls whether the placeholder reply is spoken.
func WithSpeakPlaceholder(speak bool) Option {
	return func(c *Config) { c.SpeakPlaceholder = speak }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithTrace sets the diagnostic trace buffer.
func WithTrace(b *trace.Buffer) Option {
	return func(c *Config) { c.Trace = b }
}
