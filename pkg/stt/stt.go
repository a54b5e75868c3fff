// Package stt provides speech-to-text providers and a failover chain.
//
// Every backend implements Provider. A Chain orders providers by priority,
// enforces a per-call timeout on network providers, gates transcripts on
// confidence and demotes providers that fail for the rest of its lifetime.
//
// Example usage:
//
//	openai, _ := stt.NewOpenAI(stt.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	local, _ := stt.NewLocal(stt.WithModel("ggml-base.en.bin"))
//	chain, _ := stt.NewChain([]stt.Provider{openai, local})
//
//	utt, err := chain.Transcribe(ctx, rec)
//	if errors.Is(err, stt.ErrLowConfidence) {
//	    // ask the user to repeat
//	}
package stt

import (
	"context"
	"time"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
)

// Provider defines the STT provider interface.
type Provider interface {
	// ID names the provider ("openai", "nim", "google", "local").
	ID() string

	// Transcribe converts an encoded recording to text.
	Transcribe(ctx context.Context, rec *audioio.Recording) (*Result, error)

	// Close releases any resources held by the provider.
	Close() error
}

// OnDevice is implemented by providers that run on the host. Their calls are
// not bounded by the chain timeout and they are never demoted.
type OnDevice interface {
	OnDevice() bool
}

// Result is the raw output of one provider call.
type Result struct {
	// Text is the transcript.
	Text string

	// Confidence in [0,1]. Meaningful only when HasConfidence is set.
	Confidence float64

	// HasConfidence reports whether the provider scored the transcript.
	HasConfidence bool

	// LatencyMs is the provider round-trip time in milliseconds.
	LatencyMs int64
}

// Utterance is one accepted user turn.
type Utterance struct {
	// Text is the transcript.
	Text string

	// Confidence in [0,1]; 1.0 when the provider did not report one.
	Confidence float64

	// Provider is the id of the provider that produced the transcript.
	Provider string

	// Latency covers the whole chain call, fallbacks included.
	Latency time.Duration
}

// KindSTT labels transcription descriptors.
const KindSTT = "stt"

// Descriptor is a snapshot of one provider's standing in a chain.
type Descriptor struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Priority int    `json:"priority"`
	Healthy  bool   `json:"healthy"`
	Terminal bool   `json:"terminal"`
}

func isOnDevice(p Provider) bool {
	od, ok := p.(OnDevice)
	return ok && od.OnDevice()
}
