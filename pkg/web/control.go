package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-voiceturn/pkg/voice"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxFrameSize bounds one inbound audio chunk or command
	maxFrameSize = 1 << 20
)

// Control commands sent by the client.
const (
	cmdToggle        = "toggle"
	cmdStart         = "start"
	cmdStop          = "stop"
	cmdText          = "text"
	cmdCancel        = "cancel"
	cmdClear         = "clear"
	cmdSnapshot      = "snapshot"
	cmdPlaybackDone  = "playback_done"
	cmdPlaybackError = "playback_error"
)

// Messages sent to the client.
const (
	msgEvent     = "event"
	msgSnapshot  = "snapshot"
	msgAudio     = "audio"
	msgStopAudio = "stop_audio"
	msgError     = "error"
)

var errConnClosed = errors.New("web: control socket closed")

// command is one JSON message from the client.
//
// start and toggle may carry the MIME type the browser records with, or the
// DOMException name it got from getUserMedia.
type command struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	MIME  string `json:"mime,omitempty"`
	Error string `json:"error,omitempty"`
	ID    uint64 `json:"id,omitempty"`
}

// outbound is one JSON message to the client. An audio message is followed
// by a binary frame holding the clip.
type outbound struct {
	Type     string          `json:"type"`
	ID       uint64          `json:"id,omitempty"`
	MIME     string          `json:"mime,omitempty"`
	Bytes    int             `json:"bytes,omitempty"`
	Event    *voice.Event    `json:"event,omitempty"`
	Snapshot *voice.Snapshot `json:"snapshot,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type frame struct {
	binary bool
	data   []byte
}

// controlConn owns one session control socket. Only writePump writes to the
// connection.
type controlConn struct {
	conn   *websocket.Conn
	send   chan frame
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	// stopped is closed when writePump returns
	stopped chan struct{}
}

func newControlConn(conn *websocket.Conn, logger *slog.Logger) *controlConn {
	return &controlConn{
		conn:    conn,
		send:    make(chan frame, 64),
		done:    make(chan struct{}),
		logger:  logger,
		stopped: make(chan struct{}),
	}
}

// close stops the write pump. Idempotent.
func (c *controlConn) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *controlConn) enqueue(ctx context.Context, f frame) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *controlConn) sendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, frame{data: data})
}

func (c *controlConn) sendBinary(ctx context.Context, data []byte) error {
	return c.enqueue(ctx, frame{binary: true, data: data})
}

// trySendJSON queues v without blocking. Events are dropped when the client
// cannot keep up.
func (c *controlConn) trySendJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame{data: data}:
		return true
	default:
		c.logger.Warn("control socket backlog full, dropping message")
		return false
	}
}

func (c *controlConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.stopped)
	}()

	for {
		select {
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			wsType := websocket.TextMessage
			if f.binary {
				wsType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(wsType, f.data); err != nil {
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// handleControlWS serves /ws/sessions/:id. Binary frames are recorded audio;
// text frames are commands.
func (s *Server) handleControlWS(c *websocket.Conn) {
	sess, err := s.registry.Get(c.Params("id"))
	if err != nil {
		c.WriteJSON(outbound{Type: msgError, Error: err.Error()})
		c.Close()
		return
	}

	cc := newControlConn(c, s.logger.With("session", sess.ID))
	sess.attach(cc)
	go cc.writePump()
	defer func() {
		sess.detach(cc)
		cc.close()
		<-cc.stopped
	}()

	snap := sess.Controller.Snapshot()
	cc.trySendJSON(outbound{Type: msgSnapshot, Snapshot: &snap})

	c.SetReadLimit(maxFrameSize)
	c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		sess.touch()

		if mt == websocket.BinaryMessage {
			if err := sess.Capture.Push(data); err != nil {
				cc.logger.Debug("audio chunk dropped", "error", err)
			}
			continue
		}

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			cc.trySendJSON(outbound{Type: msgError, Error: "invalid command"})
			continue
		}
		if err := s.dispatch(sess, cc, cmd); err != nil && rejected(err) {
			cc.trySendJSON(outbound{Type: msgError, Error: err.Error()})
		}
	}
}

// dispatch runs one control command. Capture and transcription failures are
// reported to the client as notices by the controller itself.
func (s *Server) dispatch(sess *Session, cc *controlConn, cmd command) error {
	ctx := context.Background()
	ctl := sess.Controller

	switch cmd.Type {
	case cmdToggle:
		if ctl.State() != voice.StateRecording {
			sess.Capture.Announce(cmd.MIME, cmd.Error)
		}
		return ctl.Toggle(ctx)
	case cmdStart:
		sess.Capture.Announce(cmd.MIME, cmd.Error)
		return ctl.StartRecording(ctx)
	case cmdStop:
		return ctl.StopRecording(ctx)
	case cmdText:
		return ctl.SubmitText(ctx, cmd.Text)
	case cmdCancel:
		ctl.Cancel()
	case cmdClear:
		ctl.Clear()
	case cmdSnapshot:
		snap := ctl.Snapshot()
		cc.trySendJSON(outbound{Type: msgSnapshot, Snapshot: &snap})
	case cmdPlaybackDone:
		sess.Player.ack(cmd.ID, "")
	case cmdPlaybackError:
		reason := cmd.Error
		if reason == "" {
			reason = "playback failed"
		}
		sess.Player.ack(cmd.ID, reason)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return nil
}
