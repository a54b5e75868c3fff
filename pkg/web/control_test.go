package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voiceturn/pkg/hub"
	"github.com/teslashibe/go-voiceturn/pkg/voice"
)

// serve runs ts on a loopback listener and returns its address.
func (ts *testServer) serve(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

type received struct {
	msg    outbound
	binary []byte
}

// next reads one message, failing the test after a second of silence.
func next(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	if mt == websocket.BinaryMessage {
		return received{binary: data}
	}
	var msg outbound
	require.NoError(t, json.Unmarshal(data, &msg))
	return received{msg: msg}
}

// until reads until match returns true and returns that message.
func until(t *testing.T, conn *websocket.Conn, match func(received) bool) received {
	t.Helper()
	for i := 0; i < 100; i++ {
		r := next(t, conn)
		if match(r) {
			return r
		}
	}
	t.Fatal("message never arrived")
	return received{}
}

func isState(s voice.State) func(received) bool {
	return func(r received) bool {
		return r.msg.Type == msgEvent && r.msg.Event.Type == voice.EventState && r.msg.Event.State == s
	}
}

func send(t *testing.T, conn *websocket.Conn, cmd command) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(cmd))
}

func TestControlSocketVoiceTurn(t *testing.T) {
	ts := newTestServer(t)
	addr := ts.serve(t)
	sess, err := ts.Registry().Create()
	require.NoError(t, err)

	conn := dial(t, fmt.Sprintf("ws://%s/ws/sessions/%s", addr, sess.ID))

	first := next(t, conn)
	require.Equal(t, msgSnapshot, first.msg.Type)
	require.Equal(t, voice.StateIdle, first.msg.Snapshot.State)
	require.Eventually(t, sess.Connected, time.Second, 5*time.Millisecond)

	send(t, conn, command{Type: cmdStart, MIME: "audio/webm;codecs=opus"})
	until(t, conn, isState(voice.StateRecording))

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("webm chunk one ")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("webm chunk two")))
	send(t, conn, command{Type: cmdStop})

	transcript := until(t, conn, func(r received) bool {
		return r.msg.Type == msgEvent && r.msg.Event.Type == voice.EventTranscript
	})
	require.Equal(t, "how do i say hello", transcript.msg.Event.Text)

	reply := until(t, conn, func(r received) bool {
		return r.msg.Type == msgEvent && r.msg.Event.Type == voice.EventReply
	})
	require.Equal(t, testReply, reply.msg.Event.Text)

	header := until(t, conn, func(r received) bool { return r.msg.Type == msgAudio })
	require.NotZero(t, header.msg.ID)
	clip := next(t, conn)
	require.Len(t, clip.binary, header.msg.Bytes)

	require.Equal(t, voice.StateSpeaking, sess.Controller.State())
	send(t, conn, command{Type: cmdPlaybackDone, ID: header.msg.ID})
	until(t, conn, isState(voice.StateIdle))

	calls := ts.stt.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, len("webm chunk one webm chunk two"), calls[0].Bytes)
	require.Len(t, sess.Controller.Snapshot().Messages, 2)
}

func TestControlSocketMicPermission(t *testing.T) {
	ts := newTestServer(t)
	addr := ts.serve(t)
	sess, err := ts.Registry().Create()
	require.NoError(t, err)

	conn := dial(t, fmt.Sprintf("ws://%s/ws/sessions/%s", addr, sess.ID))
	next(t, conn)

	send(t, conn, command{Type: cmdToggle, Error: "NotAllowedError"})
	notice := until(t, conn, func(r received) bool {
		return r.msg.Type == msgEvent && r.msg.Event.Type == voice.EventNotice
	})
	require.Equal(t, voice.NoticeMicPermission, notice.msg.Event.Notice.Kind)
	require.Equal(t, voice.StateIdle, sess.Controller.State())
	require.False(t, sess.Capture.Active())
}

func TestControlSocketCancelStopsAudio(t *testing.T) {
	ts := newTestServer(t)
	addr := ts.serve(t)
	sess, err := ts.Registry().Create()
	require.NoError(t, err)

	conn := dial(t, fmt.Sprintf("ws://%s/ws/sessions/%s", addr, sess.ID))
	next(t, conn)

	send(t, conn, command{Type: cmdText, Text: "how do i say hello"})
	header := until(t, conn, func(r received) bool { return r.msg.Type == msgAudio })
	next(t, conn)

	send(t, conn, command{Type: cmdCancel})
	stop := until(t, conn, func(r received) bool { return r.msg.Type == msgStopAudio })
	require.Equal(t, header.msg.ID, stop.msg.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sess.Controller.Wait(ctx))

	// Cancelling is not a provider failure.
	require.True(t, sess.Controller.Snapshot().TTS[0].Healthy)
}

func TestControlSocketPlaybackErrorDemotesVoice(t *testing.T) {
	ts := newTestServer(t)
	addr := ts.serve(t)
	sess, err := ts.Registry().Create()
	require.NoError(t, err)

	conn := dial(t, fmt.Sprintf("ws://%s/ws/sessions/%s", addr, sess.ID))
	next(t, conn)

	send(t, conn, command{Type: cmdText, Text: "hello"})
	header := until(t, conn, func(r received) bool { return r.msg.Type == msgAudio })
	send(t, conn, command{Type: cmdPlaybackError, ID: header.msg.ID, Error: "NotSupportedError"})
	until(t, conn, isState(voice.StateIdle))

	require.False(t, sess.Controller.Snapshot().TTS[0].Healthy)
	require.Len(t, sess.Controller.Snapshot().Messages, 2)
}

func TestControlSocketRejections(t *testing.T) {
	ts := newTestServer(t)
	addr := ts.serve(t)
	sess, err := ts.Registry().Create()
	require.NoError(t, err)

	conn := dial(t, fmt.Sprintf("ws://%s/ws/sessions/%s", addr, sess.ID))
	next(t, conn)

	send(t, conn, command{Type: "dance"})
	r := until(t, conn, func(r received) bool { return r.msg.Type == msgError })
	require.Contains(t, r.msg.Error, "unknown command")

	send(t, conn, command{Type: cmdStop})
	r = until(t, conn, func(r received) bool { return r.msg.Type == msgError })
	require.Contains(t, r.msg.Error, voice.ErrNotRecording.Error())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	r = until(t, conn, func(r received) bool { return r.msg.Type == msgError })
	require.Equal(t, "invalid command", r.msg.Error)
}

func TestControlSocketUnknownSession(t *testing.T) {
	ts := newTestServer(t)
	addr := ts.serve(t)

	_, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws/sessions/nope", addr), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteClosesControlSocket(t *testing.T) {
	ts := newTestServer(t)
	addr := ts.serve(t)
	sess, err := ts.Registry().Create()
	require.NoError(t, err)

	conn := dial(t, fmt.Sprintf("ws://%s/ws/sessions/%s", addr, sess.ID))
	next(t, conn)

	require.NoError(t, ts.Registry().Remove(sess.ID))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestFeed(t *testing.T) {
	ts := newTestServer(t)
	addr := ts.serve(t)
	sess, err := ts.Registry().Create()
	require.NoError(t, err)
	other, err := ts.Registry().Create()
	require.NoError(t, err)

	feed := dial(t, fmt.Sprintf("ws://%s/ws/feed?session=%s", addr, sess.ID))
	require.Eventually(t, func() bool { return ts.Feed().ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, other.Controller.SubmitText(context.Background(), "not this one"))
	require.NoError(t, sess.Controller.SubmitText(context.Background(), "hello"))

	kinds := map[string]bool{}
	for !kinds[hub.KindSession] || !kinds[hub.KindTrace] {
		feed.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := feed.ReadMessage()
		require.NoError(t, err)

		var ev hub.FeedEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		require.Equal(t, sess.ID, ev.Session)
		kinds[ev.Kind] = true
	}
}
