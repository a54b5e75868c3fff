package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voiceturn/internal/log"
	"github.com/teslashibe/go-voiceturn/pkg/chat"
	"github.com/teslashibe/go-voiceturn/pkg/metrics"
	"github.com/teslashibe/go-voiceturn/pkg/stt"
	"github.com/teslashibe/go-voiceturn/pkg/tts"
	"github.com/teslashibe/go-voiceturn/pkg/voice"
)

const testReply = "Oh for heaven's sake. Just say 'Hey', yea"

type testServer struct {
	*Server
	stt  *stt.Mock
	tts  *tts.Mock
	chat *chat.Mock
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()

	ts := &testServer{
		stt:  stt.NewMock("openai", "how do i say hello", 0.9),
		tts:  tts.NewMock("elevenlabs"),
		chat: chat.NewMock(testReply),
	}
	reg := prometheus.NewRegistry()
	base := []Option{
		WithLogger(log.Discard()),
		WithMetrics(metrics.New(reg), reg),
		WithPlaybackWait(2 * time.Second),
	}

	srv, err := NewServer(Providers{
		STT:  []stt.Provider{ts.stt},
		TTS:  []tts.Provider{ts.tts},
		Chat: ts.chat,
	}, append(base, opts...)...)
	require.NoError(t, err)
	ts.Server = srv
	t.Cleanup(func() { srv.Registry().closeAll() })
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.App().Test(req, 5000)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, data
}

func (ts *testServer) createSession(t *testing.T) *Session {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	sess, err := ts.Registry().Get(out.ID)
	require.NoError(t, err)
	return sess
}

func waitIdle(t *testing.T, sess *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sess.Controller.Wait(ctx))
}

func TestNewServerRequiresProviders(t *testing.T) {
	_, err := NewServer(Providers{TTS: []tts.Provider{tts.NewMock("x")}, Chat: chat.NewMock("x")})
	require.ErrorIs(t, err, ErrNoProviders)

	_, err = NewServer(Providers{STT: []stt.Provider{stt.NewMock("x", "y", 1)}, TTS: []tts.Provider{tts.NewMock("x")}})
	require.ErrorIs(t, err, ErrNoChatClient)
}

func TestCreateAndGetSession(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)

	resp, body := ts.do(t, http.MethodGet, "/api/sessions/"+sess.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var v SessionView
	require.NoError(t, json.Unmarshal(body, &v))
	require.Equal(t, sess.ID, v.ID)
	require.Equal(t, voice.StateIdle, v.State)
	require.False(t, v.Connected)
	require.Empty(t, v.Messages)
	require.Len(t, v.STT, 1)
	require.Equal(t, "openai", v.STT[0].ID)
	require.True(t, v.TTS[0].Healthy)
}

func TestUnknownSession(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/api/sessions/nope", ""},
		{http.MethodDelete, "/api/sessions/nope", ""},
		{http.MethodPost, "/api/sessions/nope/text", `{"text":"hi"}`},
		{http.MethodPost, "/api/sessions/nope/toggle", ""},
		{http.MethodPost, "/api/sessions/nope/cancel", ""},
		{http.MethodPost, "/api/sessions/nope/clear", ""},
		{http.MethodGet, "/api/sessions/nope/trace", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp, _ := ts.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != http.StatusNotFound {
				t.Errorf("status = %d, want 404", resp.StatusCode)
			}
		})
	}
}

func TestMaxSessions(t *testing.T) {
	ts := newTestServer(t, WithMaxSessions(1))
	ts.createSession(t)

	resp, _ := ts.do(t, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSubmitTextRunsTurn(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)

	resp, body := ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/text", `{"text":"how do i say hello"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	waitIdle(t, sess)

	_, body = ts.do(t, http.MethodGet, "/api/sessions/"+sess.ID, "")
	var v SessionView
	require.NoError(t, json.Unmarshal(body, &v))
	require.Equal(t, []chat.Message{
		chat.NewUserMessage("how do i say hello"),
		chat.NewAssistantMessage(testReply),
	}, v.Messages)

	// No socket attached: synthesis still runs, playback is skipped.
	require.Equal(t, 1, ts.tts.CallCount("Synthesize"))
	require.True(t, v.TTS[0].Healthy)
}

func TestSubmitTextErrors(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)

	resp, _ := ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/text", `{"text":"   "}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	release := make(chan struct{})
	ts.chat.ReplyFunc = func(ctx context.Context, req *chat.Request) (*chat.Reply, error) {
		<-release
		return &chat.Reply{Text: testReply}, nil
	}

	resp, _ = ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/text", `{"text":"first"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/text", `{"text":"second"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/toggle", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	close(release)
	waitIdle(t, sess)
}

func TestToggleWithoutAudio(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)

	resp, body := ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/toggle", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.JSONEq(t, `{"state":"recording"}`, string(body))

	// Nothing was pushed, so stopping fails the turn with a mic notice.
	resp, _ = ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/toggle", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	waitIdle(t, sess)

	require.Equal(t, 0, ts.stt.CallCount("Transcribe"))
	require.Equal(t, voice.StateIdle, sess.Controller.State())
}

func TestCancelAndClear(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)

	ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/toggle", "")
	require.True(t, sess.Capture.Active())

	resp, body := ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/cancel", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"state":"idle"}`, string(body))
	require.False(t, sess.Capture.Active())

	ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/text", `{"text":"hello"}`)
	waitIdle(t, sess)
	require.Len(t, sess.Controller.Snapshot().Messages, 2)

	resp, _ = ts.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/clear", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, sess.Controller.Snapshot().Messages)
}

func TestTrace(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)

	resp, body := ts.do(t, http.MethodGet, "/api/sessions/"+sess.ID+"/trace", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Events []struct {
			Message string `json:"message"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	var messages []string
	for _, e := range out.Events {
		messages = append(messages, e.Message)
	}
	require.Contains(t, messages, "session opened")
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.createSession(t)

	resp, _ := ts.do(t, http.MethodDelete, "/api/sessions/"+sess.ID, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, 0, ts.Registry().Len())

	resp, _ = ts.do(t, http.MethodGet, "/api/sessions/"+sess.ID, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReap(t *testing.T) {
	ts := newTestServer(t)
	idle := ts.createSession(t)
	busy := ts.createSession(t)
	ts.do(t, http.MethodPost, "/api/sessions/"+busy.ID+"/toggle", "")

	n := ts.Registry().Reap(time.Now().Add(time.Hour))
	require.Equal(t, 1, n)

	_, err := ts.Registry().Get(idle.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = ts.Registry().Get(busy.ID)
	require.NoError(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.createSession(t)

	resp, body := ts.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok","sessions":1,"feed_clients":0}`, string(body))

	resp, body = ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "voiceturn_active_sessions 1")
}

func TestWebSocketRoutesRequireUpgrade(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := ts.do(t, http.MethodGet, "/ws/feed", "")
	require.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}
