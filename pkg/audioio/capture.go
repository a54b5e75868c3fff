package audioio

import (
	"context"
	"strings"
	"time"
)

// Capturer acquires the microphone and opens a capture session.
type Capturer interface {
	// Start acquires the input device. It fails with an error matching
	// ErrPermissionDenied, ErrDeviceNotFound or ErrDeviceError.
	Start(ctx context.Context) (CaptureSession, error)
}

// CaptureSession is one open microphone recording.
//
// Stop and Abort are idempotent and release the device on every path. Only
// the first of them decides the outcome.
type CaptureSession interface {
	// Stop finalizes the buffer and releases the device.
	Stop() (*Recording, error)

	// Abort releases the device and discards audio.
	Abort()
}

// Recording is a finished, encoded capture.
type Recording struct {
	// Data holds the encoded audio.
	Data []byte

	// MIMEType tags the container and codec of Data.
	MIMEType string

	// Duration of the captured audio, zero when unknown.
	Duration time.Duration
}

// Len returns the size of the encoded audio in bytes.
func (r *Recording) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Data)
}

// Release drops the audio buffer once a consumer is done with it.
func (r *Recording) Release() {
	if r != nil {
		r.Data = nil
	}
}

// Filename returns an upload filename whose extension matches the MIME type.
func (r *Recording) Filename() string {
	return "recording." + ExtensionFor(r.MIMEType)
}

// PreferredMIMETypes is the recording codec preference, Opus first.
var PreferredMIMETypes = []string{
	"audio/ogg;codecs=opus",
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/mp4",
	"audio/aac",
	"audio/wav",
}

// ChooseMIMEType returns the first preferred type the recorder supports.
// It returns "" when supported accepts none of them.
func ChooseMIMEType(supported func(string) bool) string {
	for _, mime := range PreferredMIMETypes {
		if supported(mime) {
			return mime
		}
	}
	return ""
}

// BaseMIMEType strips codec parameters: "audio/webm;codecs=opus" -> "audio/webm".
func BaseMIMEType(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.TrimSpace(strings.ToLower(mime))
}

// ExtensionFor maps a MIME type onto a file extension.
func ExtensionFor(mime string) string {
	switch BaseMIMEType(mime) {
	case "audio/ogg", "audio/opus":
		return "ogg"
	case "audio/webm":
		return "webm"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/aac":
		return "aac"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/flac":
		return "flac"
	default:
		return "wav"
	}
}
