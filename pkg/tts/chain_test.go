package tts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
	"github.com/teslashibe/go-voiceturn/pkg/trace"
)

func newTestChain(t *testing.T, player audioio.Player, providers ...Provider) *Chain {
	t.Helper()
	c, err := NewChain(providers, player, WithCallTimeout(200*time.Millisecond))
	require.NoError(t, err)
	return c
}

func terminalMock(name string) *Mock {
	m := NewMock(name)
	m.Terminal = true
	return m
}

func TestNewChain_Errors(t *testing.T) {
	_, err := NewChain(nil, audioio.NewMockPlayer())
	require.ErrorIs(t, err, ErrNoProviders)

	_, err = NewChain([]Provider{NewMock("a")}, nil)
	require.ErrorIs(t, err, ErrNoPlayer)
}

func TestChain_PrimarySpeaks(t *testing.T) {
	player := audioio.NewMockPlayer()
	primary, secondary := NewMock("elevenlabs"), NewMock("openai")
	c := newTestChain(t, player, primary, secondary, terminalMock("local"))

	require.NoError(t, c.Speak(context.Background(), "**Hello** there"))

	require.Equal(t, 1, primary.CallCount("Synthesize"))
	require.Equal(t, "Hello there", primary.LastCall().Text)
	require.Zero(t, secondary.CallCount("Synthesize"))
	require.Len(t, player.Clips(), 1)
	require.Equal(t, "pcm", player.Clips()[0].Format)
}

func TestChain_EmptyAfterSanitize(t *testing.T) {
	primary := NewMock("elevenlabs")
	c := newTestChain(t, audioio.NewMockPlayer(), primary)

	require.ErrorIs(t, c.Speak(context.Background(), "** ` #"), ErrEmptyText)
	require.Zero(t, primary.CallCount("Synthesize"))
}

func TestChain_FallbackDemotes(t *testing.T) {
	buf := trace.NewBuffer(0)
	player := audioio.NewMockPlayer()
	primary := WithError("elevenlabs", errors.New("401 unauthorized"))
	secondary := NewMock("openai")

	c, err := NewChain([]Provider{primary, secondary, terminalMock("local")}, player, WithTrace(buf))
	require.NoError(t, err)

	require.NoError(t, c.Speak(context.Background(), "first"))
	require.False(t, c.Descriptors()[0].Healthy)
	require.True(t, c.Descriptors()[1].Healthy)

	// the demoted provider is skipped on later turns
	require.NoError(t, c.Speak(context.Background(), "second"))
	require.Equal(t, 1, primary.CallCount("Synthesize"))
	require.Equal(t, 2, secondary.CallCount("Synthesize"))

	var warned bool
	for _, ev := range buf.Events() {
		if ev.Severity == trace.SeverityWarning && ev.Fields["provider"] == "elevenlabs" {
			warned = true
		}
	}
	require.True(t, warned, "demotion should be traced")
}

func TestChain_TimeoutDemotes(t *testing.T) {
	hanging := &Mock{Name: "elevenlabs", SynthesizeFunc: func(ctx context.Context, text string) (*AudioResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c := newTestChain(t, audioio.NewMockPlayer(), hanging, NewMock("openai"))

	start := time.Now()
	require.NoError(t, c.Speak(context.Background(), "hello"))
	require.Less(t, time.Since(start), 2*time.Second)
	require.False(t, c.Descriptors()[0].Healthy)
}

func TestChain_PlaybackErrorDemotes(t *testing.T) {
	player := &failOncePlayer{MockPlayer: audioio.NewMockPlayer()}
	c := newTestChain(t, player, NewMock("elevenlabs"), NewMock("openai"))

	require.NoError(t, c.Speak(context.Background(), "hello"))
	d := c.Descriptors()
	require.False(t, d[0].Healthy)
	require.True(t, d[1].Healthy)
}

func TestChain_AllFail(t *testing.T) {
	player := audioio.NewMockPlayer()
	failing := errors.New("boom")
	local := WithError("local", failing)
	local.Terminal = true
	c := newTestChain(t, player,
		WithError("elevenlabs", failing),
		WithError("openai", failing),
		local,
	)

	err := c.Speak(context.Background(), "hello")
	require.ErrorIs(t, err, ErrSynthesisExhausted)
	require.ErrorIs(t, err, ErrProviderFailed)

	var ce *ChainError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Errors, 3)

	d := c.Descriptors()
	require.False(t, d[0].Healthy)
	require.False(t, d[1].Healthy)
	require.True(t, d[2].Healthy, "terminal provider is never demoted")
	require.Empty(t, player.Clips())

	// the terminal provider is still tried on the next call
	err = c.Speak(context.Background(), "again")
	require.ErrorIs(t, err, ErrSynthesisExhausted)
	require.Equal(t, 2, local.CallCount("Synthesize"))
}

func TestChain_CancelStopsPlayback(t *testing.T) {
	player := audioio.NewMockPlayer()
	player.Block = true
	primary := NewMock("elevenlabs")
	c := newTestChain(t, player, primary, NewMock("openai"))

	done := make(chan error, 1)
	go func() { done <- c.Speak(context.Background(), "a long reply") }()

	<-player.Started()
	c.Cancel()
	c.Cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("speak did not return after cancel")
	}

	for _, d := range c.Descriptors() {
		require.True(t, d.Healthy, "cancel must not demote %s", d.ID)
	}
	require.Equal(t, 1, primary.CallCount("Synthesize"))
	require.GreaterOrEqual(t, player.Stops(), 1)
}

func TestChain_CancelDuringSynthesis(t *testing.T) {
	started := make(chan struct{})
	slow := &Mock{Name: "elevenlabs", SynthesizeFunc: func(ctx context.Context, text string) (*AudioResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	secondary := NewMock("openai")
	c := newTestChain(t, audioio.NewMockPlayer(), slow, secondary)
	c.cfg.CallTimeout = 0

	done := make(chan error, 1)
	go func() { done <- c.Speak(context.Background(), "hello") }()
	<-started
	c.Cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	require.True(t, c.Descriptors()[0].Healthy)
	require.Zero(t, secondary.CallCount("Synthesize"))
}

func TestChain_CallerContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newTestChain(t, audioio.NewMockPlayer(), WithLatency(NewMock("elevenlabs"), time.Second), NewMock("openai"))

	require.ErrorIs(t, c.Speak(ctx, "hello"), context.Canceled)
	require.True(t, c.Descriptors()[0].Healthy)
}

func TestChain_CancelIdle(t *testing.T) {
	player := audioio.NewMockPlayer()
	c := newTestChain(t, player, NewMock("elevenlabs"))

	require.NotPanics(t, func() {
		c.Cancel()
		c.Cancel()
	})
	require.NoError(t, c.Speak(context.Background(), "still works"))
}

func TestChain_Descriptors(t *testing.T) {
	c := newTestChain(t, audioio.NewMockPlayer(), NewMock("elevenlabs"), NewMock("openai"), terminalMock("local"))

	require.Equal(t, []Descriptor{
		{ID: "elevenlabs", Kind: KindTTS, Priority: 0, Healthy: true},
		{ID: "openai", Kind: KindTTS, Priority: 1, Healthy: true},
		{ID: "local", Kind: KindTTS, Priority: 2, Healthy: true, Terminal: true},
	}, c.Descriptors())
}

// failOncePlayer fails the first clip it is given.
type failOncePlayer struct {
	*audioio.MockPlayer
	once sync.Once
}

func (p *failOncePlayer) Play(ctx context.Context, clip audioio.Clip) error {
	var fail bool
	p.once.Do(func() { fail = true })
	if fail {
		return audioio.ErrPlayback
	}
	return p.MockPlayer.Play(ctx, clip)
}
