package web

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
)

// SocketPlayer plays clips on the browser attached to a session's control
// socket. Each clip goes out as an "audio" header followed by one binary
// frame; Play returns when the client acks with playback_done or
// playback_error.
//
// With no socket attached there is no one to play to, and Play returns nil
// at once so a REST-only session does not demote its voices.
type SocketPlayer struct {
	wait   time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	conn    *controlConn
	seq     uint64
	pending *playback
}

type playback struct {
	id   uint64
	done chan error
}

var _ audioio.Player = (*SocketPlayer)(nil)

// NewSocketPlayer creates a player that waits at most wait for each ack.
// A non-positive wait waits until the context ends.
func NewSocketPlayer(wait time.Duration, logger *slog.Logger) *SocketPlayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SocketPlayer{wait: wait, logger: logger.With("component", "web.player")}
}

// Play sends clip to the attached client and waits for its ack.
func (p *SocketPlayer) Play(ctx context.Context, clip audioio.Clip) error {
	p.mu.Lock()
	conn := p.conn
	if conn == nil {
		p.mu.Unlock()
		p.logger.Debug("no control socket, skipping playback", "bytes", len(clip.Data))
		return nil
	}
	p.seq++
	pb := &playback{id: p.seq, done: make(chan error, 1)}
	p.pending = pb
	p.mu.Unlock()
	defer p.clear(pb)

	header := outbound{Type: msgAudio, ID: pb.id, MIME: clip.MIMEType(), Bytes: len(clip.Data)}
	if err := conn.sendJSON(ctx, header); err != nil {
		return fmt.Errorf("%w: %v", audioio.ErrPlayback, err)
	}
	if err := conn.sendBinary(ctx, clip.Data); err != nil {
		return fmt.Errorf("%w: %v", audioio.ErrPlayback, err)
	}

	var timeout <-chan time.Time
	if p.wait > 0 {
		timer := time.NewTimer(p.wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-pb.done:
		return err
	case <-ctx.Done():
		conn.trySendJSON(outbound{Type: msgStopAudio, ID: pb.id})
		return ctx.Err()
	case <-timeout:
		p.logger.Warn("no playback ack, assuming finished", "id", pb.id, "wait", p.wait)
		return nil
	}
}

// Stop interrupts the clip in progress and tells the client to stop.
func (p *SocketPlayer) Stop() error {
	p.mu.Lock()
	pb, conn := p.pending, p.conn
	p.mu.Unlock()

	if pb == nil {
		return nil
	}
	if conn != nil {
		conn.trySendJSON(outbound{Type: msgStopAudio, ID: pb.id})
	}
	p.finish(pb.id, audioio.ErrPlaybackStopped)
	return nil
}

// ack completes playback id. A non-empty reason reports a client-side
// playback failure.
func (p *SocketPlayer) ack(id uint64, reason string) {
	if reason == "" {
		p.finish(id, nil)
		return
	}
	p.finish(id, fmt.Errorf("%w: client: %s", audioio.ErrPlayback, reason))
}

func (p *SocketPlayer) finish(id uint64, err error) {
	p.mu.Lock()
	pb := p.pending
	p.mu.Unlock()
	if pb == nil || (id != 0 && pb.id != id) {
		return
	}
	select {
	case pb.done <- err:
	default:
	}
}

func (p *SocketPlayer) clear(pb *playback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == pb {
		p.pending = nil
	}
}

func (p *SocketPlayer) attach(conn *controlConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = conn
}

// detach drops conn. A clip still playing on it is stopped.
func (p *SocketPlayer) detach(conn *controlConn) {
	p.mu.Lock()
	if p.conn != conn {
		p.mu.Unlock()
		return
	}
	p.conn = nil
	pb := p.pending
	p.mu.Unlock()

	if pb != nil {
		p.finish(pb.id, audioio.ErrPlaybackStopped)
	}
}

// Attached reports whether a control socket is attached.
func (p *SocketPlayer) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}
