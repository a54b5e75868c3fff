package voice

import (
	"errors"
	"time"

	"github.com/teslashibe/go-voiceturn/pkg/chat"
	"github.com/teslashibe/go-voiceturn/pkg/stt"
	"github.com/teslashibe/go-voiceturn/pkg/tts"
)

// Common errors returned by the controller.
var (
	// ErrTurnInProgress is returned when a command arrives while a turn is
	// being transcribed, answered or spoken.
	ErrTurnInProgress = errors.New("voice: turn in progress")

	// ErrAlreadyRecording is returned by StartRecording while recording.
	ErrAlreadyRecording = errors.New("voice: already recording")

	// ErrNotRecording is returned by StopRecording when no capture is open.
	ErrNotRecording = errors.New("voice: not recording")

	// ErrMissingComponent is returned by New when a collaborator is nil.
	ErrMissingComponent = errors.New("voice: missing component")
)

// State is the turn state of one session. Exactly one is active.
type State string

const (
	StateIdle          State = "idle"
	StateRecording     State = "recording"
	StateTranscribing  State = "transcribing"
	StateLowConfidence State = "low_confidence"
	StateAwaitingReply State = "awaiting_reply"
	StateSpeaking      State = "speaking"
)

func (s State) String() string { return string(s) }

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	State    State            `json:"state"`
	Messages []chat.Message   `json:"messages"`
	STT      []stt.Descriptor `json:"stt"`
	TTS      []tts.Descriptor `json:"tts"`
	Latency  Latency          `json:"latency"`
	Taken    time.Time        `json:"taken"`
}
