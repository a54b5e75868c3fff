package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-voiceturn/internal/httpc"
	"github.com/teslashibe/go-voiceturn/pkg/audioio"
	"github.com/teslashibe/go-voiceturn/pkg/metrics"
)

// Chain tries providers in priority order and remembers which of them
// failed. A demoted provider stays unhealthy for the life of the chain, so
// one chain belongs to one session.
type Chain struct {
	cfg    *ChainConfig
	logger *slog.Logger

	mu      sync.Mutex
	entries []*entry
}

type entry struct {
	provider Provider
	desc     Descriptor
}

// NewChain creates a chain. providers are listed highest priority first.
func NewChain(providers []Provider, opts ...ChainOption) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
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
				Kind:     KindSTT,
				Priority: i,
				Healthy:  true,
				Terminal: isOnDevice(p),
			},
		}
	}

	return &Chain{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "stt.chain"),
		entries: entries,
	}, nil
}

// Transcribe runs the recording through the highest-priority healthy
// provider, falling back at most MaxHops times.
//
// A transcript below the confidence threshold is returned together with a
// *LowConfidenceError. An empty transcript yields ErrNoSpeech. Neither
// demotes the provider. Caller cancellation returns ctx.Err() and demotes
// nothing.
func (c *Chain) Transcribe(ctx context.Context, rec *audioio.Recording) (*Utterance, error) {
	if rec.Len() == 0 {
		return nil, ErrEmptyRecording
	}

	start := time.Now()
	tried := make(map[*entry]bool)
	var errs []error

	for attempt := 0; attempt <= c.cfg.MaxHops; attempt++ {
		e := c.next(tried)
		if e == nil {
			break
		}
		tried[e] = true
		id := e.desc.ID

		res, err := c.call(ctx, e, rec)
		if err == nil {
			if attempt > 0 {
				c.cfg.Metrics.Fallback(KindSTT, id)
				c.cfg.Trace.Success("fallback transcription succeeded", "provider", id)
			}
			return c.accept(e, res, start)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		errs = append(errs, err)
		c.demote(e, err)
	}

	c.cfg.Trace.Error("transcription failed on every provider", "attempts", fmt.Sprint(len(errs)))
	return nil, &ChainError{Errors: errs}
}

// call invokes one provider under the chain timeout.
func (c *Chain) call(ctx context.Context, e *entry, rec *audioio.Recording) (*Result, error) {
	id := e.desc.ID
	callCtx := ctx
	if !e.desc.Terminal && c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	c.logger.Debug("transcribing", "provider", id, "bytes", rec.Len(), "mime", rec.MIMEType)
	start := time.Now()
	res, err := e.provider.Transcribe(callCtx, rec)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		if res == nil {
			res = &Result{}
		}
		if res.LatencyMs == 0 {
			res.LatencyMs = elapsed.Milliseconds()
		}
		return res, nil
	case ctx.Err() != nil:
		c.cfg.Metrics.ProviderCall(KindSTT, id, metrics.OutcomeCanceled, elapsed)
		return nil, ctx.Err()
	case errors.Is(callCtx.Err(), context.DeadlineExceeded), httpc.IsTimeout(err):
		c.cfg.Metrics.ProviderCall(KindSTT, id, metrics.OutcomeTimeout, elapsed)
		return nil, WrapError(id, fmt.Errorf("%w after %v: %v", ErrProviderTimeout, elapsed.Round(time.Millisecond), err))
	default:
		c.cfg.Metrics.ProviderCall(KindSTT, id, metrics.OutcomeError, elapsed)
		if !errors.Is(err, ErrProviderFailed) {
			err = fmt.Errorf("%w: %w", ErrProviderFailed, err)
		}
		return nil, WrapError(id, err)
	}
}

// accept applies the empty-transcript and confidence rules to a result.
func (c *Chain) accept(e *entry, res *Result, start time.Time) (*Utterance, error) {
	id := e.desc.ID
	elapsed := time.Since(start)
	text := strings.TrimSpace(res.Text)

	if text == "" {
		c.cfg.Metrics.ProviderCall(KindSTT, id, metrics.OutcomeNoSpeech, elapsed)
		c.cfg.Trace.Warn("no speech detected", "provider", id)
		return nil, WrapError(id, ErrNoSpeech)
	}

	confidence := 1.0
	if res.HasConfidence {
		confidence = res.Confidence
	}
	c.cfg.Metrics.TranscriptConfidence(confidence)

	utt := &Utterance{
		Text:       text,
		Confidence: confidence,
		Provider:   id,
		Latency:    elapsed,
	}

	if confidence < c.cfg.Threshold {
		c.cfg.Metrics.ProviderCall(KindSTT, id, metrics.OutcomeLowConfidence, elapsed)
		c.cfg.Trace.Warn("low confidence transcript",
			"provider", id,
			"confidence", fmt.Sprintf("%.2f", confidence),
		)
		return utt, &LowConfidenceError{
			Text:       text,
			Confidence: confidence,
			Threshold:  c.cfg.Threshold,
			Provider:   id,
		}
	}

	c.cfg.Metrics.ProviderCall(KindSTT, id, metrics.OutcomeSuccess, elapsed)
	c.cfg.Trace.Success("transcribed",
		"provider", id,
		"confidence", fmt.Sprintf("%.2f", confidence),
		"latency_ms", fmt.Sprint(elapsed.Milliseconds()),
	)
	c.logger.Debug("transcribed", "provider", id, "chars", len(text), "confidence", confidence)
	return utt, nil
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
		c.cfg.Metrics.Demotion(KindSTT, e.desc.ID)
		c.cfg.Trace.Warn("transcription provider demoted", "provider", e.desc.ID, "error", cause.Error())
		c.logger.Warn("provider demoted", "provider", e.desc.ID, "error", cause)
		return
	}
	c.cfg.Trace.Warn("transcription provider failed", "provider", e.desc.ID, "error", cause.Error())
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

// Threshold returns the confidence threshold.
func (c *Chain) Threshold() float64 {
	return c.cfg.Threshold
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
