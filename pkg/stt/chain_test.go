package stt

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
	"github.com/teslashibe/go-voiceturn/pkg/trace"
)

func testRecording() *audioio.Recording {
	return &audioio.Recording{Data: []byte("OggS fake audio"), MIMEType: "audio/ogg;codecs=opus"}
}

func healthOf(t *testing.T, c *Chain) map[string]bool {
	t.Helper()
	out := make(map[string]bool)
	for _, d := range c.Descriptors() {
		out[d.ID] = d.Healthy
	}
	return out
}

func TestChain_PrimarySucceeds(t *testing.T) {
	primary := NewMock("openai", "how do i say hello", 0.9)
	secondary := NewMock("nim", "unused", 1)

	chain, err := NewChain([]Provider{primary, secondary})
	require.NoError(t, err)

	utt, err := chain.Transcribe(context.Background(), testRecording())
	require.NoError(t, err)
	require.Equal(t, "how do i say hello", utt.Text)
	require.InDelta(t, 0.9, utt.Confidence, 1e-9)
	require.Equal(t, "openai", utt.Provider)
	require.Equal(t, 0, secondary.CallCount("Transcribe"))
}

func TestChain_TimeoutFallsBackAndDemotes(t *testing.T) {
	primary := NewHangingMock("openai")
	secondary := NewMock("nim", "hello there", 1)
	buf := trace.NewBuffer(0)

	chain, err := NewChain([]Provider{primary, secondary},
		WithCallTimeout(50*time.Millisecond),
		WithTrace(buf),
	)
	require.NoError(t, err)

	utt, err := chain.Transcribe(context.Background(), testRecording())
	require.NoError(t, err)
	require.Equal(t, "nim", utt.Provider)
	require.Equal(t, "hello there", utt.Text)
	require.Equal(t, map[string]bool{"openai": false, "nim": true}, healthOf(t, chain))

	// next turn skips the demoted primary
	utt, err = chain.Transcribe(context.Background(), testRecording())
	require.NoError(t, err)
	require.Equal(t, "nim", utt.Provider)
	require.Equal(t, 1, primary.CallCount("Transcribe"))
	require.Equal(t, 2, secondary.CallCount("Transcribe"))

	var warned bool
	for _, ev := range buf.Events() {
		if ev.Severity == trace.SeverityWarning && ev.Fields["provider"] == "openai" {
			warned = true
		}
	}
	require.True(t, warned, "demotion should leave a warning in the trace")
}

func TestChain_TimeoutErrorKind(t *testing.T) {
	primary := NewHangingMock("openai")
	local := NewFailingMock("local", errors.New("model missing"))
	local.Terminal = true

	chain, err := NewChain([]Provider{primary, local}, WithCallTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = chain.Transcribe(context.Background(), testRecording())
	require.ErrorIs(t, err, ErrTranscriptionExhausted)
	require.ErrorIs(t, err, ErrProviderTimeout)
	require.ErrorIs(t, err, ErrProviderFailed)

	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	require.Len(t, chainErr.Errors, 2)
}

func TestChain_AtMostOneHop(t *testing.T) {
	primary := NewFailingMock("openai", errors.New("502 bad gateway"))
	secondary := NewFailingMock("nim", errors.New("connection reset"))
	local := NewMock("local", "from the device", 1)
	local.Terminal = true

	chain, err := NewChain([]Provider{primary, secondary, local})
	require.NoError(t, err)

	_, err = chain.Transcribe(context.Background(), testRecording())
	require.ErrorIs(t, err, ErrTranscriptionExhausted)
	require.Equal(t, 0, local.CallCount("Transcribe"), "a single call may hop once")
	require.Equal(t, map[string]bool{"openai": false, "nim": false, "local": true}, healthOf(t, chain))

	utt, err := chain.Transcribe(context.Background(), testRecording())
	require.NoError(t, err)
	require.Equal(t, "local", utt.Provider)
}

func TestChain_MaxHopsConfigurable(t *testing.T) {
	primary := NewFailingMock("openai", errors.New("boom"))
	secondary := NewFailingMock("nim", errors.New("boom"))
	local := NewMock("local", "ok", 1)
	local.Terminal = true

	chain, err := NewChain([]Provider{primary, secondary, local}, WithMaxHops(2))
	require.NoError(t, err)

	utt, err := chain.Transcribe(context.Background(), testRecording())
	require.NoError(t, err)
	require.Equal(t, "local", utt.Provider)
}

func TestChain_LowConfidence(t *testing.T) {
	primary := NewMock("openai", "how do i say hello", 0.3)
	secondary := NewMock("nim", "unused", 1)

	chain, err := NewChain([]Provider{primary, secondary})
	require.NoError(t, err)

	utt, err := chain.Transcribe(context.Background(), testRecording())
	require.ErrorIs(t, err, ErrLowConfidence)
	require.NotErrorIs(t, err, ErrTranscriptionExhausted)

	var lowErr *LowConfidenceError
	require.ErrorAs(t, err, &lowErr)
	require.Equal(t, "how do i say hello", lowErr.Text)
	require.InDelta(t, 0.3, lowErr.Confidence, 1e-9)
	require.NotNil(t, utt)

	require.Equal(t, map[string]bool{"openai": true, "nim": true}, healthOf(t, chain))
	require.Equal(t, 0, secondary.CallCount("Transcribe"))
}

func TestChain_ThresholdConfigurable(t *testing.T) {
	chain, err := NewChain([]Provider{NewMock("openai", "hi", 0.3)}, WithConfidenceThreshold(0.2))
	require.NoError(t, err)
	require.Equal(t, 0.2, chain.Threshold())

	_, err = chain.Transcribe(context.Background(), testRecording())
	require.NoError(t, err)
}

func TestChain_UnreportedConfidenceIsOne(t *testing.T) {
	p := &Mock{Name: "nim", TranscribeFunc: func(ctx context.Context, rec *audioio.Recording) (*Result, error) {
		return &Result{Text: "yo"}, nil
	}}
	chain, err := NewChain([]Provider{p})
	require.NoError(t, err)

	utt, err := chain.Transcribe(context.Background(), testRecording())
	require.NoError(t, err)
	require.Equal(t, 1.0, utt.Confidence)
}

func TestChain_NoSpeech(t *testing.T) {
	primary := NewMock("openai", "   ", 0.99)
	chain, err := NewChain([]Provider{primary, NewMock("nim", "x", 1)})
	require.NoError(t, err)

	_, err = chain.Transcribe(context.Background(), testRecording())
	require.ErrorIs(t, err, ErrNoSpeech)
	require.True(t, healthOf(t, chain)["openai"])
}

func TestChain_CallerCancelDoesNotDemote(t *testing.T) {
	primary := NewHangingMock("openai")
	secondary := NewMock("nim", "x", 1)
	chain, err := NewChain([]Provider{primary, secondary})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = chain.Transcribe(ctx, testRecording())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, map[string]bool{"openai": true, "nim": true}, healthOf(t, chain))
	require.Equal(t, 0, secondary.CallCount("Transcribe"))
}

func TestChain_TerminalNeverDemoted(t *testing.T) {
	local := NewFailingMock("local", errors.New("whisper crashed"))
	local.Terminal = true

	chain, err := NewChain([]Provider{local})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = chain.Transcribe(context.Background(), testRecording())
		require.ErrorIs(t, err, ErrTranscriptionExhausted)
	}
	d := chain.Descriptors()[0]
	require.True(t, d.Healthy)
	require.True(t, d.Terminal)
	require.Equal(t, 3, local.CallCount("Transcribe"))
}

func TestChain_TerminalHasNoTimeout(t *testing.T) {
	local := &Mock{Name: "local", Terminal: true, TranscribeFunc: func(ctx context.Context, rec *audioio.Recording) (*Result, error) {
		select {
		case <-time.After(60 * time.Millisecond):
			return &Result{Text: "slow but fine"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	chain, err := NewChain([]Provider{local}, WithCallTimeout(10*time.Millisecond))
	require.NoError(t, err)

	utt, err := chain.Transcribe(context.Background(), testRecording())
	require.NoError(t, err)
	require.Equal(t, "slow but fine", utt.Text)
}

func TestChain_HealthIsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	flaky := func(name string) *Mock {
		return &Mock{Name: name, TranscribeFunc: func(ctx context.Context, rec *audioio.Recording) (*Result, error) {
			if rng.Intn(3) == 0 {
				return nil, errors.New("flaky")
			}
			return &Result{Text: "ok", Confidence: rng.Float64(), HasConfidence: true}, nil
		}}
	}
	local := flaky("local")
	local.Terminal = true

	chain, err := NewChain([]Provider{flaky("openai"), flaky("nim"), local})
	require.NoError(t, err)

	prev := healthOf(t, chain)
	for i := 0; i < 50; i++ {
		_, _ = chain.Transcribe(context.Background(), testRecording())
		cur := healthOf(t, chain)
		for id, healthy := range cur {
			if healthy {
				require.True(t, prev[id], "%s came back after demotion", id)
			}
		}
		require.True(t, cur["local"])
		prev = cur
	}
}

func TestChain_Errors(t *testing.T) {
	_, err := NewChain(nil)
	require.ErrorIs(t, err, ErrNoProviders)

	chain, err := NewChain([]Provider{NewMock("openai", "x", 1)})
	require.NoError(t, err)
	_, err = chain.Transcribe(context.Background(), &audioio.Recording{})
	require.ErrorIs(t, err, ErrEmptyRecording)
}

func TestChain_DescriptorsSnapshot(t *testing.T) {
	local := NewMock("local", "x", 1)
	local.Terminal = true
	chain, err := NewChain([]Provider{NewMock("openai", "x", 1), local})
	require.NoError(t, err)

	got := chain.Descriptors()
	require.Equal(t, []Descriptor{
		{ID: "openai", Kind: KindSTT, Priority: 0, Healthy: true},
		{ID: "local", Kind: KindSTT, Priority: 1, Healthy: true, Terminal: true},
	}, got)

	got[0].Healthy = false
	require.True(t, chain.Descriptors()[0].Healthy, "snapshot must not alias chain state")
}
