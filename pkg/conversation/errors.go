package conversation

import "errors"

// Sentinel errors for the conversation package.
var (
	// ErrNoClient indicates a session was created without a chat client.
	ErrNoClient = errors.New("conversation: chat client is required")

	// ErrEmptyMessage indicates the submitted text was blank.
	ErrEmptyMessage = errors.New("conversation: empty message")

	// ErrChatTransport indicates the chat collaborator failed and the
	// placeholder reply was recorded instead.
	ErrChatTransport = errors.New("conversation: chat request failed")
)
