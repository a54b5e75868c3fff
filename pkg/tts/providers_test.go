package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestElevenLabs_Synthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/text-to-speech/21m00Tcm4TlvDq8ikWAM", r.URL.Path)
		require.Equal(t, string(EncodingMP3), r.URL.Query().Get("output_format"))
		require.Equal(t, "xi-key", r.Header.Get("xi-api-key"))
		require.Equal(t, "audio/mpeg", r.Header.Get("Accept"))

		var body struct {
			Text          string `json:"text"`
			ModelID       string `json:"model_id"`
			VoiceSettings struct {
				Stability       float64 `json:"stability"`
				SimilarityBoost float64 `json:"similarity_boost"`
				Style           float64 `json:"style"`
				SpeakerBoost    bool    `json:"use_speaker_boost"`
			} `json:"voice_settings"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Hello there", body.Text)
		require.Equal(t, ModelMultilingualV2, body.ModelID)
		require.Equal(t, 0.3, body.VoiceSettings.Stability)
		require.Equal(t, 0.75, body.VoiceSettings.SimilarityBoost)
		require.Equal(t, 0.5, body.VoiceSettings.Style)
		require.True(t, body.VoiceSettings.SpeakerBoost)

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(make([]byte, 16000))
	}))
	defer server.Close()

	p, err := NewElevenLabs(WithAPIKey("xi-key"), WithBaseURL(server.URL))
	require.NoError(t, err)
	defer p.Close()

	res, err := p.Synthesize(context.Background(), "Hello there")
	require.NoError(t, err)
	require.Len(t, res.Audio, 16000)
	require.Equal(t, EncodingMP3, res.Format.Encoding)
	require.Equal(t, time.Second, res.Duration)
	require.Equal(t, "mp3", res.Clip().Format)
}

func TestElevenLabs_RequiresKey(t *testing.T) {
	_, err := NewElevenLabs()
	require.ErrorIs(t, err, ErrNoAPIKey)
}

func TestElevenLabs_ResolvesPreset(t *testing.T) {
	p, err := NewElevenLabs(WithAPIKey("k"), WithVoice("adam"))
	require.NoError(t, err)
	require.Equal(t, "pNInz6obpgDQGcFmaJgB", p.VoiceID())
}

func TestElevenLabs_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`))
	}))
	defer server.Close()

	p, err := NewElevenLabs(WithAPIKey("bad"), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = p.Synthesize(context.Background(), "hi")
	require.ErrorIs(t, err, ErrProviderFailed)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.True(t, apiErr.IsUnauthorized())
	require.Equal(t, "Invalid API key", apiErr.Message)
	require.Equal(t, "invalid_api_key", apiErr.Code)
}

func TestElevenLabs_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("mp3"))
	}))
	defer server.Close()

	p, err := NewElevenLabs(WithAPIKey("k"), WithBaseURL(server.URL), WithRetry(1, time.Millisecond))
	require.NoError(t, err)

	res, err := p.Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "mp3", string(res.Audio))
	require.EqualValues(t, 2, calls.Load())
}

func TestOpenAI_Synthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/speech", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, ModelTTS1, body["model"])
		require.Equal(t, VoiceNova, body["voice"])
		require.Equal(t, "hi", body["input"])
		require.Equal(t, DefaultOpenAIInstructions, body["instructions"])

		_, _ = w.Write([]byte("ID3 fake"))
	}))
	defer server.Close()

	p, err := NewOpenAI(WithAPIKey("sk-test"), WithBaseURL(server.URL+"/"))
	require.NoError(t, err)

	res, err := p.Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "ID3 fake", string(res.Audio))
	require.Equal(t, EncodingMP3, res.Format.Encoding)
}

func TestOpenAI_EmptyAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	p, err := NewOpenAI(WithAPIKey("sk-test"), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = p.Synthesize(context.Background(), "hi")
	require.ErrorIs(t, err, ErrProviderFailed)
}

func TestGoogle_Synthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "text:synthesize"), r.URL.Path)
		require.Equal(t, "g-key", r.URL.Query().Get("key"))

		var req struct {
			Input struct {
				Text string `json:"text"`
			} `json:"input"`
			Voice struct {
				LanguageCode string `json:"languageCode"`
				Name         string `json:"name"`
			} `json:"voice"`
			AudioConfig struct {
				AudioEncoding string `json:"audioEncoding"`
			} `json:"audioConfig"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "hello", req.Input.Text)
		require.Equal(t, "en-US", req.Voice.LanguageCode)
		require.Equal(t, "en-US-Neural2-D", req.Voice.Name)
		require.Equal(t, "MP3", req.AudioConfig.AudioEncoding)

		_ = json.NewEncoder(w).Encode(map[string]string{
			"audioContent": base64.StdEncoding.EncodeToString([]byte("mp3 bytes")),
		})
	}))
	defer server.Close()

	p, err := NewGoogle(context.Background(), WithAPIKey("g-key"), WithBaseURL(server.URL+"/"))
	require.NoError(t, err)

	res, err := p.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "mp3 bytes", string(res.Audio))
}

func TestGoogle_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid"}}`))
	}))
	defer server.Close()

	p, err := NewGoogle(context.Background(), WithAPIKey("g-key"), WithBaseURL(server.URL+"/"))
	require.NoError(t, err)

	_, err = p.Synthesize(context.Background(), "hello")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func fakeSynth(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestLocal_EspeakStdout(t *testing.T) {
	// echoes the text it was given on stdin, prefixed with its arguments
	espeak := fakeSynth(t, "espeak-ng", `printf 'RIFF %s ' "$*"; cat`)
	p, err := NewLocal(WithCommand(espeak, "-s", "170"))
	require.NoError(t, err)
	require.True(t, p.OnDevice())

	res, err := p.Synthesize(context.Background(), "-not a flag")
	require.NoError(t, err)
	require.Equal(t, "RIFF --stdout -s 170 -not a flag", string(res.Audio))
	require.Equal(t, EncodingWAV, res.Format.Encoding)
}

func TestLocal_Say(t *testing.T) {
	// writes its stdin into the file named after -o
	say := fakeSynth(t, "say", `while [ $# -gt 0 ]; do if [ "$1" = "-o" ]; then out="$2"; fi; shift; done; cat > "$out"`)
	p, err := NewLocal(WithCommand(say))
	require.NoError(t, err)

	res, err := p.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", string(res.Audio))
}

func TestLocal_Failure(t *testing.T) {
	espeak := fakeSynth(t, "espeak-ng", "echo 'no voice data' 1>&2\nexit 1\n")
	p, err := NewLocal(WithCommand(espeak))
	require.NoError(t, err)

	_, err = p.Synthesize(context.Background(), "hello")
	require.ErrorIs(t, err, ErrProviderFailed)
	require.Contains(t, err.Error(), "no voice data")
}
