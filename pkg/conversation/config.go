package conversation

import (
	"log/slog"

	"github.com/teslashibe/go-voiceturn/pkg/chat"
	"github.com/teslashibe/go-voiceturn/pkg/metrics"
	"github.com/teslashibe/go-voiceturn/pkg/trace"
)

// Config holds session configuration.
type Config struct {
	// Window is how many prior messages are forwarded with each request.
	Window int

	// OnClear runs after Clear empties the history.
	OnClear func()

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Trace   *trace.Buffer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Window: chat.DefaultHistoryWindow,
		Logger: slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

// WithWindow sets the forwarded history size. Non-positive values keep
// the default.
func WithWindow(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Window = n
		}
	}
}

// WithClearHook registers fn to run on Clear.
func WithClearHook(fn func()) Option {
	return func(c *Config) { c.OnClear = fn }
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
