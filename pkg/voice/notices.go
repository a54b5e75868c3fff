package voice

import (
	"errors"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
	"github.com/teslashibe/go-voiceturn/pkg/stt"
)

// NoticeKind classifies a user-facing notice.
type NoticeKind string

const (
	NoticeMicPermission NoticeKind = "mic_permission"
	NoticeMicNotFound   NoticeKind = "mic_not_found"
	NoticeMicError      NoticeKind = "mic_error"
	NoticeLowConfidence NoticeKind = "low_confidence"
	NoticeNoSpeech      NoticeKind = "no_speech"
	NoticeTranscription NoticeKind = "transcription_failed"
	NoticeGeneric       NoticeKind = "generic"
)

// Notice is the in-character text shown instead of a technical error.
type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
}

var noticeText = map[NoticeKind]string{
	NoticeMicPermission: "Enable mic access, yea",
	NoticeMicNotFound:   "No mic found on this device",
	NoticeMicError:      "Mic failed, try again",
	NoticeLowConfidence: "Ugh, didn't catch that",
	NoticeNoSpeech:      "Didn't hear anything, try again",
	NoticeTranscription: "Ugh, didn't catch that",
	NoticeGeneric:       "Something broke, try again",
}

// NewNotice returns the notice for kind.
func NewNotice(kind NoticeKind) Notice {
	text, ok := noticeText[kind]
	if !ok {
		kind, text = NoticeGeneric, noticeText[NoticeGeneric]
	}
	return Notice{Kind: kind, Text: text}
}

// NoticeFor maps a turn error onto its notice.
func NoticeFor(err error) Notice {
	switch {
	case errors.Is(err, audioio.ErrPermissionDenied):
		return NewNotice(NoticeMicPermission)
	case errors.Is(err, audioio.ErrDeviceNotFound):
		return NewNotice(NoticeMicNotFound)
	case errors.Is(err, audioio.ErrDeviceError), errors.Is(err, audioio.ErrCaptureClosed):
		return NewNotice(NoticeMicError)
	case errors.Is(err, stt.ErrLowConfidence):
		return NewNotice(NoticeLowConfidence)
	case errors.Is(err, stt.ErrNoSpeech), errors.Is(err, stt.ErrEmptyRecording):
		return NewNotice(NoticeNoSpeech)
	case errors.Is(err, stt.ErrTranscriptionExhausted):
		return NewNotice(NoticeTranscription)
	default:
		return NewNotice(NoticeGeneric)
	}
}
