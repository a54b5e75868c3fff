package audioio

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for microphone acquisition and playback.
var (
	// ErrPermissionDenied is returned when the user or OS refused microphone access.
	ErrPermissionDenied = errors.New("audioio: microphone permission denied")

	// ErrDeviceNotFound is returned when no input device is available.
	ErrDeviceNotFound = errors.New("audioio: no microphone found")

	// ErrDeviceError covers every other acquisition failure.
	ErrDeviceError = errors.New("audioio: microphone error")

	// ErrNotCapturing is returned when audio is pushed with no open capture.
	ErrNotCapturing = errors.New("audioio: no capture in progress")

	// ErrCaptureClosed is returned by Stop after Abort.
	ErrCaptureClosed = errors.New("audioio: capture session closed")

	// ErrPlayback is returned when a clip could not be played.
	ErrPlayback = errors.New("audioio: playback failed")

	// ErrPlaybackStopped is returned by Play when Stop interrupted it.
	ErrPlaybackStopped = errors.New("audioio: playback stopped")

	// ErrUnsupportedEncoding is returned for an unknown output encoding.
	ErrUnsupportedEncoding = errors.New("audioio: unsupported encoding")
)

// DeviceError carries the acquisition failure kind together with the backend
// detail that produced it. errors.Is matches both Kind and Err.
type DeviceError struct {
	// Kind is ErrPermissionDenied, ErrDeviceNotFound or ErrDeviceError.
	Kind error

	// Backend names the capturer ("ffmpeg", "stream").
	Backend string

	// Detail is the raw text reported by the device layer.
	Detail string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	msg := fmt.Sprintf("audioio [%s]: %v", e.Backend, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the kind and the underlying error.
func (e *DeviceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ClassifyStderr maps capture tool diagnostics onto an acquisition error kind.
func ClassifyStderr(stderr string) error {
	s := strings.ToLower(stderr)
	switch {
	case strings.Contains(s, "permission denied"),
		strings.Contains(s, "not authorized"),
		strings.Contains(s, "operation not permitted"):
		return ErrPermissionDenied
	case strings.Contains(s, "no such file or directory"),
		strings.Contains(s, "no such device"),
		strings.Contains(s, "no such entity"),
		strings.Contains(s, "device not found"),
		strings.Contains(s, "no input devices"),
		strings.Contains(s, "connection refused"):
		return ErrDeviceNotFound
	default:
		return ErrDeviceError
	}
}

// ClassifyClientError maps a browser media error name onto an acquisition
// error kind.
func ClassifyClientError(name string) error {
	switch name {
	case "NotAllowedError", "PermissionDeniedError", "SecurityError":
		return ErrPermissionDenied
	case "NotFoundError", "DevicesNotFoundError", "OverconstrainedError":
		return ErrDeviceNotFound
	default:
		return ErrDeviceError
	}
}
