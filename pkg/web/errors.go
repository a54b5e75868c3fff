package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-voiceturn/pkg/conversation"
	"github.com/teslashibe/go-voiceturn/pkg/voice"
)

// Sentinel errors for the web package.
var (
	// ErrSessionNotFound is returned for an unknown or expired session id.
	ErrSessionNotFound = errors.New("web: session not found")

	// ErrTooManySessions is returned when MaxSessions are already open.
	ErrTooManySessions = errors.New("web: too many sessions")

	// ErrNoProviders is returned when the server has no provider to build
	// a chain from.
	ErrNoProviders = errors.New("web: no providers configured")

	// ErrNoChatClient is returned when Providers.Chat is nil.
	ErrNoChatClient = errors.New("web: no chat client configured")

	// ErrUnknownCommand is returned for a control message with an unknown type.
	ErrUnknownCommand = errors.New("web: unknown command")
)

// statusFor maps a session error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrTooManySessions):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, voice.ErrTurnInProgress),
		errors.Is(err, voice.ErrAlreadyRecording),
		errors.Is(err, voice.ErrNotRecording):
		return fiber.StatusConflict
	case errors.Is(err, conversation.ErrEmptyMessage),
		errors.Is(err, ErrUnknownCommand):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// rejected reports whether err is a command the controller refused, as
// opposed to a failure it already reported with a notice.
func rejected(err error) bool {
	return statusFor(err) != fiber.StatusInternalServerError
}

func errorJSON(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}
