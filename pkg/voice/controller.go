// Package voice drives one conversational voice session: it records the
// user, transcribes the recording through a provider chain, asks the chat
// collaborator for a reply and speaks it through a synthesis chain.
//
// The Controller is a state machine with exactly one active state:
//
//	idle -> recording -> transcribing -> awaiting_reply -> speaking -> idle
//	                          |
//	                          +-> low_confidence -> idle
//
// Commands arrive from the record control (Toggle), typed input
// (SubmitText) and the cancel and clear controls. Everything after the
// recording stops runs on one goroutine per turn. Cancel is legal from
// any state and discards whatever the turn's in-flight requests return.
//
// Example usage:
//
//	ctrl, _ := voice.New(capturer, sttChain, ttsChain, conv,
//	    voice.WithSink(voice.SinkFunc(func(e voice.Event) {
//	        fmt.Println(e.Type, e.State, e.Text)
//	    })),
//	)
//	_ = ctrl.Toggle(ctx) // start recording
//	_ = ctrl.Toggle(ctx) // stop, transcribe, reply, speak
//	_ = ctrl.Wait(ctx)
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
	"github.com/teslashibe/go-voiceturn/pkg/conversation"
	"github.com/teslashibe/go-voiceturn/pkg/metrics"
	"github.com/teslashibe/go-voiceturn/pkg/stt"
	"github.com/teslashibe/go-voiceturn/pkg/tts"
)

// Controller is the turn state machine of one session.
type Controller struct {
	capturer audioio.Capturer
	stt      *stt.Chain
	tts      *tts.Chain
	conv     *conversation.Session
	cfg      *Config
	logger   *slog.Logger
	latency  *LatencyTracker

	mu    sync.Mutex
	state State
	cur   *turn
	gen   uint64
	idle  chan struct{} // closed while no turn is active
}

// turn is one user turn. A turn is current while c.cur points at it;
// results arriving for a turn that is no longer current are discarded.
type turn struct {
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	capture audioio.CaptureSession
	ready   chan struct{} // closed once capture start returned
	started time.Time
}

// New creates a controller. The conversation's clear hook is replaced so
// that clearing the history also cancels the current turn.
func New(capturer audioio.Capturer, sttChain *stt.Chain, ttsChain *tts.Chain, conv *conversation.Session, opts ...Option) (*Controller, error) {
	switch {
	case capturer == nil:
		return nil, fmt.Errorf("%w: capturer", ErrMissingComponent)
	case sttChain == nil:
		return nil, fmt.Errorf("%w: transcription chain", ErrMissingComponent)
	case ttsChain == nil:
		return nil, fmt.Errorf("%w: synthesis chain", ErrMissingComponent)
	case conv == nil:
		return nil, fmt.Errorf("%w: conversation", ErrMissingComponent)
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	logger := cfg.Logger.With("component", "voice.controller")
	if cfg.SessionID != "" {
		logger = logger.With("session", cfg.SessionID)
	}

	idle := make(chan struct{})
	close(idle)

	c := &Controller{
		capturer: capturer,
		stt:      sttChain,
		tts:      ttsChain,
		conv:     conv,
		cfg:      cfg,
		logger:   logger,
		latency:  NewLatencyTracker(),
		state:    StateIdle,
		idle:     idle,
	}
	conv.SetClearHook(c.Cancel)
	return c, nil
}

// Toggle is the record control. From idle it starts recording; while
// recording it stops and hands the audio on; while speaking it cancels the
// reply and starts recording again. Other states reject it with
// ErrTurnInProgress.
func (c *Controller) Toggle(ctx context.Context) error {
	switch c.State() {
	case StateIdle:
		return c.StartRecording(ctx)
	case StateRecording:
		return c.StopRecording(ctx)
	case StateSpeaking:
		c.cfg.Trace.Info("barge-in")
		c.Cancel()
		return c.StartRecording(ctx)
	default:
		return ErrTurnInProgress
	}
}

// StartRecording acquires the microphone. Acquisition failures return the
// capture error, emit the matching notice and leave the session idle.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
	case StateRecording:
		c.mu.Unlock()
		return ErrAlreadyRecording
	default:
		c.mu.Unlock()
		return ErrTurnInProgress
	}
	t := c.begin(ctx)
	t.ready = make(chan struct{})
	c.setState(StateRecording)
	c.mu.Unlock()

	session, err := c.capturer.Start(t.ctx)

	c.mu.Lock()
	close(t.ready)
	if c.cur != t {
		c.mu.Unlock()
		if session != nil {
			session.Abort()
		}
		return context.Canceled
	}
	if err != nil {
		c.failLocked(t, err, metrics.OutcomeError)
		c.mu.Unlock()
		return err
	}
	t.capture = session
	c.cfg.Trace.Info("recording started")
	c.mu.Unlock()
	return nil
}

// StopRecording releases the microphone and moves to transcribing. The
// rest of the turn runs asynchronously; use Wait to block until idle.
func (c *Controller) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return ErrNotRecording
	}
	t := c.cur
	c.mu.Unlock()

	select {
	case <-t.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	if c.cur != t || t.capture == nil {
		c.mu.Unlock()
		return ErrNotRecording
	}
	session := t.capture
	t.capture = nil
	c.setState(StateTranscribing)
	c.latency.MarkTurnStart()
	c.mu.Unlock()

	rec, err := session.Stop()
	if err != nil {
		c.fail(t, err, metrics.OutcomeError)
		return nil
	}
	c.cfg.Trace.Info("recording stopped",
		"bytes", fmt.Sprint(rec.Len()),
		"mime", rec.MIMEType,
	)

	go c.transcribe(t, rec)
	return nil
}

// SubmitText runs a typed turn: awaiting_reply, speaking, idle. It returns
// once the turn has started.
func (c *Controller) SubmitText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return conversation.ErrEmptyMessage
	}

	c.mu.Lock()
	switch c.state {
	case StateIdle:
	case StateRecording:
		c.mu.Unlock()
		return ErrAlreadyRecording
	default:
		c.mu.Unlock()
		return ErrTurnInProgress
	}
	t := c.begin(ctx)
	c.latency.MarkTurnStart()
	c.setState(StateAwaitingReply)
	c.mu.Unlock()

	go c.reply(t, text)
	return nil
}

// Cancel aborts the current turn from any state: the microphone is
// released, playback stops and the session returns to idle. Results of
// requests still in flight are discarded. Cancel is idempotent.
func (c *Controller) Cancel() {
	c.mu.Lock()
	t := c.cur
	var session audioio.CaptureSession
	if t != nil {
		session = t.capture
		t.capture = nil
		c.end(t, metrics.OutcomeCanceled)
		c.cfg.Trace.Info("turn cancelled")
	}
	c.mu.Unlock()

	if session != nil {
		session.Abort()
	}
	c.tts.Cancel()
}

// Clear empties the conversation and cancels any turn, speech included.
func (c *Controller) Clear() {
	c.conv.Clear()
}

// Wait blocks until the session is idle or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.cur == nil {
			c.mu.Unlock()
			return nil
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// State returns the active turn state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the state, history and provider health.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		State:    c.State(),
		Messages: c.conv.Messages(),
		STT:      c.stt.Descriptors(),
		TTS:      c.tts.Descriptors(),
		Latency:  c.latency.Current(),
		Taken:    time.Now(),
	}
}

// Latency returns the controller's latency tracker.
func (c *Controller) Latency() *LatencyTracker {
	return c.latency
}

// transcribe runs the recording through the transcription chain.
func (c *Controller) transcribe(t *turn, rec *audioio.Recording) {
	utt, err := c.stt.Transcribe(t.ctx, rec)
	rec.Release()

	if err != nil {
		var low *stt.LowConfidenceError
		if errors.As(err, &low) {
			c.lowConfidence(t, low)
			return
		}
		outcome := metrics.OutcomeError
		if errors.Is(err, stt.ErrNoSpeech) {
			outcome = metrics.OutcomeNoSpeech
		}
		c.fail(t, err, outcome)
		return
	}

	c.mu.Lock()
	if c.cur != t {
		c.mu.Unlock()
		return
	}
	c.latency.MarkTranscript()
	c.emit(Event{
		Type:       EventTranscript,
		Text:       utt.Text,
		Confidence: utt.Confidence,
		Provider:   utt.Provider,
	})
	c.setState(StateAwaitingReply)
	c.mu.Unlock()

	c.logger.Debug("transcript accepted",
		"provider", utt.Provider,
		"confidence", utt.Confidence,
		"latency", utt.Latency,
	)
	c.reply(t, utt.Text)
}

// lowConfidence passes through low_confidence back to idle. The transcript
// never reaches the conversation.
func (c *Controller) lowConfidence(t *turn, low *stt.LowConfidenceError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != t {
		return
	}
	c.setState(StateLowConfidence)
	c.cfg.Trace.Warn("transcript rejected",
		"confidence", fmt.Sprintf("%.2f", low.Confidence),
		"threshold", fmt.Sprintf("%.2f", low.Threshold),
	)
	n := NewNotice(NoticeLowConfidence)
	c.emit(Event{Type: EventNotice, Notice: &n, Text: low.Text, Confidence: low.Confidence})
	c.end(t, metrics.OutcomeLowConfidence)
}

// reply asks the conversation for an answer and speaks it.
func (c *Controller) reply(t *turn, text string) {
	answer, err := c.conv.Submit(t.ctx, text)
	transport := errors.Is(err, conversation.ErrChatTransport)
	if err != nil && !transport {
		c.fail(t, err, metrics.OutcomeError)
		return
	}

	c.mu.Lock()
	if c.cur != t {
		c.mu.Unlock()
		return
	}
	c.latency.MarkReply()
	c.emit(Event{Type: EventReply, Text: answer})
	if transport && !c.cfg.SpeakPlaceholder {
		c.end(t, metrics.OutcomeError)
		c.mu.Unlock()
		return
	}
	c.setState(StateSpeaking)
	c.mu.Unlock()

	outcome := metrics.OutcomeSuccess
	if transport {
		outcome = metrics.OutcomeError
	}
	err = c.tts.Speak(t.ctx, answer)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		// Playback stopped by the player rather than by Cancel.
		outcome = metrics.OutcomeCanceled
	default:
		// The reply is already in the history; a silent turn is not an error.
		c.logger.Warn("reply not spoken", "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.end(t, outcome)
}

// fail ends t with the notice for err, unless t was cancelled.
func (c *Controller) fail(t *turn, err error, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failLocked(t, err, outcome)
}

func (c *Controller) failLocked(t *turn, err error, outcome string) {
	if c.cur != t || t.ctx.Err() != nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		c.end(t, metrics.OutcomeCanceled)
		return
	}
	n := NoticeFor(err)
	c.cfg.Trace.Error(string(n.Kind), "error", err.Error(), "state", string(c.state))
	c.logger.Warn("turn failed", "turn", t.gen, "state", c.state, "error", err)
	c.emit(Event{Type: EventNotice, Notice: &n})
	c.end(t, outcome)
}

// begin starts a turn. The turn context outlives the caller's request but
// keeps its values. Caller holds c.mu.
func (c *Controller) begin(ctx context.Context) *turn {
	c.gen++
	tctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &turn{gen: c.gen, ctx: tctx, cancel: cancel, started: time.Now()}
	c.cur = t
	c.idle = make(chan struct{})
	return t
}

// end finishes t and returns to idle. Caller holds c.mu.
func (c *Controller) end(t *turn, outcome string) {
	if c.cur != t {
		return
	}
	c.cur = nil
	t.cancel()
	c.setState(StateIdle)
	close(c.idle)
	if outcome != metrics.OutcomeCanceled {
		c.latency.MarkDone()
	}
	c.cfg.Metrics.Turn(outcome, time.Since(t.started))
}

// setState transitions and notifies. Caller holds c.mu.
func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	from := c.state
	c.state = s
	c.cfg.Metrics.Transition(string(s))
	c.emit(Event{Type: EventState, State: s, From: from})
}

// emit stamps and delivers an event. Caller holds c.mu.
func (c *Controller) emit(e Event) {
	if c.cfg.Sink == nil {
		return
	}
	e.Session = c.cfg.SessionID
	e.Time = time.Now()
	c.cfg.Sink.Emit(e)
}
