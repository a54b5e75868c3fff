// Package hub fans session activity out to dashboard WebSocket clients.
//
// The server runs one hub as its feed: every session's state changes,
// notices and trace events are encoded once as FeedEvent JSON and queued to
// each subscriber whose filter matches.
package hub

import (
	"encoding/json"

	"github.com/teslashibe/go-voiceturn/pkg/trace"
	"github.com/teslashibe/go-voiceturn/pkg/voice"
)

// Feed event kinds.
const (
	KindSession = "session"
	KindTrace   = "trace"
)

// FeedEvent is the JSON envelope broadcast on the feed.
type FeedEvent struct {
	Kind    string       `json:"kind"`
	Session string       `json:"session,omitempty"`
	Event   *voice.Event `json:"event,omitempty"`
	Trace   *trace.Event `json:"trace,omitempty"`
}

// frame is an encoded FeedEvent waiting to be fanned out.
type frame struct {
	session string
	data    []byte
}

func encode(ev FeedEvent) (frame, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return frame{}, err
	}
	return frame{session: ev.Session, data: data}, nil
}

// wants reports whether a subscriber filtered to session should get f.
// An empty filter matches every session.
func (f frame) wants(session string) bool {
	return session == "" || session == f.session
}
