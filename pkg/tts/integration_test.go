//go:build integration

package tts_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
	"github.com/teslashibe/go-voiceturn/pkg/tts"
)

// TestElevenLabsIntegration tests real ElevenLabs API.
// Run with: go test -tags=integration -v ./pkg/tts/...
func TestElevenLabsIntegration(t *testing.T) {
	apiKey := os.Getenv("ELEVENLABS_API_KEY")
	if apiKey == "" {
		t.Skip("ELEVENLABS_API_KEY not set")
	}

	opts := []tts.Option{tts.WithAPIKey(apiKey)}
	if voiceID := os.Getenv("ELEVENLABS_VOICE_ID"); voiceID != "" {
		opts = append(opts, tts.WithVoice(voiceID))
	}
	provider, err := tts.NewElevenLabs(opts...)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer provider.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := provider.Synthesize(ctx, "Yeah, I heard you the first time.")
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	t.Logf("synthesized %d bytes, latency %dms", len(result.Audio), result.LatencyMs)

	if len(result.Audio) < 1000 {
		t.Error("audio too short, expected at least 1KB")
	}
	if result.Format.Encoding != tts.EncodingMP3 {
		t.Errorf("expected MP3 encoding, got %s", result.Format.Encoding)
	}
}

// TestOpenAIIntegration tests real OpenAI TTS API.
// Run with: go test -tags=integration -v ./pkg/tts/...
func TestOpenAIIntegration(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	provider, err := tts.NewOpenAI(tts.WithAPIKey(apiKey))
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer provider.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := provider.Synthesize(ctx, "Hello from OpenAI.")
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	t.Logf("synthesized %d bytes, latency %dms", len(result.Audio), result.LatencyMs)

	if len(result.Audio) < 1000 {
		t.Error("audio too short, expected at least 1KB")
	}
}

// TestChainIntegration speaks through the host player with whatever
// providers are configured, ending with the local synthesizer.
// Run with: go test -tags=integration -v ./pkg/tts/...
func TestChainIntegration(t *testing.T) {
	if os.Getenv("VOICETURN_PLAYBACK_TEST") == "" {
		t.Skip("VOICETURN_PLAYBACK_TEST not set")
	}

	var providers []tts.Provider
	if key := os.Getenv("ELEVENLABS_API_KEY"); key != "" {
		if el, err := tts.NewElevenLabs(tts.WithAPIKey(key)); err == nil {
			providers = append(providers, el)
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if oai, err := tts.NewOpenAI(tts.WithAPIKey(key)); err == nil {
			providers = append(providers, oai)
		}
	}
	local, _ := tts.NewLocal()
	providers = append(providers, local)

	chain, err := tts.NewChain(providers, audioio.NewExecPlayer("", nil))
	if err != nil {
		t.Fatalf("failed to create chain: %v", err)
	}
	defer chain.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := chain.Speak(ctx, "Testing the **provider** chain."); err != nil {
		t.Fatalf("speak failed: %v", err)
	}
	t.Logf("descriptors: %+v", chain.Descriptors())
}
