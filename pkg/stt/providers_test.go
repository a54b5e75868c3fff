package stt

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
)

func TestOpenAI_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, ModelGPT4oTranscribe, r.FormValue("model"))
		require.Equal(t, "en", r.FormValue("language"))
		require.Equal(t, []string{"logprobs"}, r.MultipartForm.Value["include[]"])

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		require.Equal(t, "recording.ogg", hdr.Filename)
		data, _ := io.ReadAll(f)
		require.Equal(t, "OggS fake audio", string(data))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"text": " how do i say hello ",
			"logprobs": []map[string]any{
				{"token": "how", "logprob": math.Log(0.9)},
				{"token": " do", "logprob": math.Log(0.9)},
			},
		})
	}))
	defer server.Close()

	p, err := NewOpenAI(WithAPIKey("sk-test"), WithBaseURL(server.URL))
	require.NoError(t, err)
	require.Equal(t, "openai", p.ID())

	res, err := p.Transcribe(context.Background(), testRecording())
	require.NoError(t, err)
	require.Equal(t, "how do i say hello", res.Text)
	require.True(t, res.HasConfidence)
	require.InDelta(t, 0.9, res.Confidence, 1e-9)
}

func TestOpenAI_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","code":"rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	p, err := NewOpenAI(WithAPIKey("sk-test"), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = p.Transcribe(context.Background(), testRecording())
	require.ErrorIs(t, err, ErrProviderFailed)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "slow down", apiErr.Message)
	require.Equal(t, "rate_limit_exceeded", apiErr.Code)
	require.True(t, apiErr.IsRateLimited())
	require.True(t, apiErr.IsRetryable())
}

func TestOpenAI_RequiresKey(t *testing.T) {
	_, err := NewOpenAI()
	require.ErrorIs(t, err, ErrNoAPIKey)
}

func TestNIM_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer nv-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, ModelParakeet, r.FormValue("model"))
		require.Equal(t, "json", r.FormValue("response_format"))
		_, _ = w.Write([]byte(`{"text":"hello there"}`))
	}))
	defer server.Close()

	p, err := NewNIM(WithAPIKey("nv-test"), WithBaseURL(server.URL+"/"))
	require.NoError(t, err)

	res, err := p.Transcribe(context.Background(), testRecording())
	require.NoError(t, err)
	require.Equal(t, "hello there", res.Text)
	require.False(t, res.HasConfidence)
}

func TestNIM_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	p, err := NewNIM(WithAPIKey("nv-test"), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = p.Transcribe(context.Background(), testRecording())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	require.True(t, apiErr.IsServerError())
	require.Contains(t, apiErr.Message, "upstream exploded")
}

func TestGoogle_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "speech:recognize"), r.URL.Path)
		require.Equal(t, "g-key", r.URL.Query().Get("key"))

		var req struct {
			Config struct {
				Encoding        string `json:"encoding"`
				SampleRateHertz int    `json:"sampleRateHertz"`
				LanguageCode    string `json:"languageCode"`
			} `json:"config"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "LINEAR16", req.Config.Encoding)
		require.Equal(t, 16000, req.Config.SampleRateHertz)
		require.Equal(t, "en-US", req.Config.LanguageCode)

		_, _ = w.Write([]byte(`{"results":[{"alternatives":[{"transcript":"how do i","confidence":0.8}]},{"alternatives":[{"transcript":"say hello","confidence":0.6}]}]}`))
	}))
	defer server.Close()

	p, err := NewGoogle(context.Background(), WithAPIKey("g-key"), WithBaseURL(server.URL+"/"))
	require.NoError(t, err)

	rec := &audioio.Recording{Data: audioio.EncodeWAV(make([]byte, 320), 16000, 1), MIMEType: "audio/wav"}
	res, err := p.Transcribe(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, "how do i say hello", res.Text)
	require.True(t, res.HasConfidence)
	require.InDelta(t, 0.7, res.Confidence, 1e-9)
}

func TestGoogleEncoding(t *testing.T) {
	ogg, err := audioio.EncodeOggOpus(make([]byte, 3200), 16000, 1)
	require.NoError(t, err)

	tests := []struct {
		name     string
		rec      *audioio.Recording
		encoding string
		rate     int
		wantErr  bool
	}{
		{"wav", &audioio.Recording{Data: audioio.EncodeWAV(make([]byte, 8), 24000, 1), MIMEType: "audio/wav"}, "LINEAR16", 24000, false},
		{"ogg", &audioio.Recording{Data: ogg, MIMEType: "audio/ogg;codecs=opus"}, "OGG_OPUS", 16000, false},
		{"webm", &audioio.Recording{Data: []byte{1}, MIMEType: "audio/webm;codecs=opus"}, "WEBM_OPUS", 48000, false},
		{"mp4", &audioio.Recording{Data: []byte{1}, MIMEType: "audio/mp4"}, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, rate, err := googleEncoding(tt.rec)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.encoding, enc)
			require.Equal(t, tt.rate, rate)
		})
	}
}

func fakeWhisper(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "whisper-cli")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestLocal_Transcribe(t *testing.T) {
	whisper := fakeWhisper(t, `printf '[BLANK_AUDIO]\n how do i\n say hello \n'`)
	p, err := NewLocal(WithCommand(whisper), WithLanguage("en"))
	require.NoError(t, err)
	require.True(t, p.OnDevice())

	rec := &audioio.Recording{Data: audioio.EncodeWAV(make([]byte, 3200), 16000, 1), MIMEType: "audio/wav"}
	res, err := p.Transcribe(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, "how do i say hello", res.Text)
	require.False(t, res.HasConfidence)
}

func TestLocal_ConvertsNonWAV(t *testing.T) {
	converter := fakeWhisper(t, `for last; do :; done; cp /dev/null "$last"`)
	whisper := fakeWhisper(t, `echo converted`)
	p, err := NewLocal(WithCommand(whisper), WithConverter(converter))
	require.NoError(t, err)

	res, err := p.Transcribe(context.Background(), testRecording())
	require.NoError(t, err)
	require.Equal(t, "converted", res.Text)
}

func TestLocal_Failure(t *testing.T) {
	whisper := fakeWhisper(t, "echo 'error: failed to open model' 1>&2\nexit 2\n")
	p, err := NewLocal(WithCommand(whisper))
	require.NoError(t, err)

	rec := &audioio.Recording{Data: audioio.EncodeWAV(make([]byte, 32), 16000, 1), MIMEType: "audio/wav"}
	_, err = p.Transcribe(context.Background(), rec)
	require.ErrorIs(t, err, ErrProviderFailed)
	require.Contains(t, err.Error(), "failed to open model")
}

func TestIsWhisperReady(t *testing.T) {
	require.True(t, isWhisperReady(&audioio.Recording{Data: audioio.EncodeWAV(make([]byte, 4), 16000, 1), MIMEType: "audio/wav"}))
	require.False(t, isWhisperReady(&audioio.Recording{Data: audioio.EncodeWAV(make([]byte, 4), 48000, 1), MIMEType: "audio/wav"}))
	require.False(t, isWhisperReady(&audioio.Recording{Data: audioio.EncodeWAV(make([]byte, 4), 16000, 2), MIMEType: "audio/wav"}))
	require.False(t, isWhisperReady(testRecording()))
}
