package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-voiceturn/internal/httpc"
	"github.com/teslashibe/go-voiceturn/pkg/audioio"
	"github.com/teslashibe/go-voiceturn/pkg/metrics"
)

// Chain synthesizes with the highest-priority healthy provider and plays the
// result. A provider that fails to synthesize, or whose audio fails to play,
// is demoted for the life of the chain, so one chain belongs to one session.
type Chain struct {
	cfg    *ChainConfig
	logger *slog.Logger
	player audioio.Player

	mu      sync.Mutex
	entries []*entry
	cancel  context.CancelFunc
	speakID uint64
}

type entry struct {
	provider Provider
	desc     Descriptor
}

// NewChain creates a chain that plays through player. providers are listed
// highest priority first.
func NewChain(providers []Provider, player audioio.Player, opts ...ChainOption) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	if player == nil {
		return nil, ErrNoPlayer
	}

	cfg := DefaultChainConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	entries := make([]*entry, len(providers))
	for i, p := range providers {
		entries[i] = &entry{
			provider: p,
			desc: Descriptor{
				ID:       p.ID(),
				Kind:     KindTTS,
				Priority: i,
				Healthy:  true,
				Terminal: isOnDevice(p),
			},
		}
	}

	return &Chain{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "tts.chain"),
		player:  player,
		entries: entries,
	}, nil
}

// Speak sanitizes text, synthesizes it and plays it, walking every healthy
// provider until one succeeds. It returns nil once playback finished.
//
// Cancellation, by ctx or by Cancel, returns context.Canceled and demotes
// nothing. When every provider failed the error matches
// ErrSynthesisExhausted.
func (c *Chain) Speak(ctx context.Context, text string) error {
	text = Sanitize(text)
	if text == "" {
		return ErrEmptyText
	}

	ctx, cancel := context.WithCancel(ctx)
	id := c.begin(cancel)
	defer c.end(id)

	tried := make(map[*entry]bool)
	var errs []error

	for attempt := 0; ; attempt++ {
		e := c.next(tried)
		if e == nil {
			break
		}
		tried[e] = true

		err := c.attempt(ctx, e, text)
		if err == nil {
			if attempt > 0 {
				c.cfg.Metrics.Fallback(KindTTS, e.desc.ID)
				c.cfg.Trace.Success("fallback voice succeeded", "provider", e.desc.ID)
			}
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, audioio.ErrPlaybackStopped) {
			c.logger.Debug("speech cancelled", "provider", e.desc.ID)
			return context.Canceled
		}

		errs = append(errs, err)
		c.demote(e, err)
	}

	c.cfg.Trace.Error("speech failed on every provider", "attempts", fmt.Sprint(len(errs)))
	return &ChainError{Errors: errs}
}

// attempt synthesizes with one provider and plays the audio.
func (c *Chain) attempt(ctx context.Context, e *entry, text string) error {
	id := e.desc.ID
	callCtx := ctx
	if !e.desc.Terminal && c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	c.logger.Debug("synthesizing", "provider", id, "chars", len(text))
	start := time.Now()
	res, err := e.provider.Synthesize(callCtx, text)
	elapsed := time.Since(start)

	switch {
	case err == nil && (res == nil || len(res.Audio) == 0):
		c.cfg.Metrics.ProviderCall(KindTTS, id, metrics.OutcomeError, elapsed)
		return WrapError(id, fmt.Errorf("%w: no audio", ErrProviderFailed))
	case err == nil:
	case ctx.Err() != nil:
		c.cfg.Metrics.ProviderCall(KindTTS, id, metrics.OutcomeCanceled, elapsed)
		return ctx.Err()
	case errors.Is(callCtx.Err(), context.DeadlineExceeded), httpc.IsTimeout(err):
		c.cfg.Metrics.ProviderCall(KindTTS, id, metrics.OutcomeTimeout, elapsed)
		return WrapError(id, fmt.Errorf("%w: timed out after %v: %v", ErrProviderFailed, elapsed.Round(time.Millisecond), err))
	default:
		c.cfg.Metrics.ProviderCall(KindTTS, id, metrics.OutcomeError, elapsed)
		if !errors.Is(err, ErrProviderFailed) {
			err = fmt.Errorf("%w: %w", ErrProviderFailed, err)
		}
		return WrapError(id, err)
	}

	if err := c.player.Play(ctx, res.Clip()); err != nil {
		if ctx.Err() != nil || errors.Is(err, audioio.ErrPlaybackStopped) {
			c.cfg.Metrics.ProviderCall(KindTTS, id, metrics.OutcomeCanceled, elapsed)
			return err
		}
		c.cfg.Metrics.ProviderCall(KindTTS, id, metrics.OutcomePlayback, elapsed)
		return WrapError(id, fmt.Errorf("%w: %w", ErrPlayback, err))
	}

	c.cfg.Metrics.ProviderCall(KindTTS, id, metrics.OutcomeSuccess, elapsed)
	c.cfg.Trace.Success("spoke reply",
		"provider", id,
		"latency_ms", fmt.Sprint(elapsed.Milliseconds()),
	)
	return nil
}

// Cancel stops the speech in progress, if any. Safe to call at any time and
// any number of times.
func (c *Chain) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := c.player.Stop(); err != nil {
		c.logger.Debug("stop playback", "error", err)
	}
}

func (c *Chain) begin(cancel context.CancelFunc) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speakID++
	c.cancel = cancel
	return c.speakID
}

func (c *Chain) end(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.speakID == id && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// next returns the highest-priority healthy entry not yet tried.
func (c *Chain) next(tried map[*entry]bool) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.desc.Healthy && !tried[e] {
			return e
		}
	}
	return nil
}

func (c *Chain) demote(e *entry, cause error) {
	c.mu.Lock()
	demoted := false
	if !e.desc.Terminal && e.desc.Healthy {
		e.desc.Healthy = false
		demoted = true
	}
	c.mu.Unlock()

	if demoted {
		c.cfg.Metrics.Demotion(KindTTS, e.desc.ID)
		c.cfg.Trace.Warn("voice provider demoted", "provider", e.desc.ID, "error", cause.Error())
		c.logger.Warn("provider demoted", "provider", e.desc.ID, "error", cause)
		return
	}
	c.cfg.Trace.Warn("voice provider failed", "provider", e.desc.ID, "error", cause.Error())
	c.logger.Warn("provider failed", "provider", e.desc.ID, "error", cause)
}

// Descriptors returns a snapshot of provider health in priority order.
func (c *Chain) Descriptors() []Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Descriptor, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.desc
	}
	return out
}

// Close closes all providers.
func (c *Chain) Close() error {
	var lastErr error
	for _, e := range c.entries {
		if err := e.provider.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
