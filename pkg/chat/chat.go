// Package chat talks to the text-generation service that writes the
// assistant's replies.
//
// Two clients implement Client:
//
//   - Completions calls an OpenAI-compatible /chat/completions endpoint
//     (NVIDIA NIM by default) with the persona system prompt.
//   - Remote posts {message, history} to a service that answers
//     {response}, which is the contract the web server's /api/chat
//     endpoint itself exposes.
//
// Example usage:
//
//	client, _ := chat.NewCompletions(chat.WithAPIKey(os.Getenv("NVIDIA_API_KEY")))
//	reply, err := client.Reply(ctx, &chat.Request{
//	    Message: "how do i say hello",
//	    History: history,
//	})
package chat

import "context"

// Role identifies who wrote a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Request is one chat turn: the new user message and the prior history,
// oldest first.
type Request struct {
	Message string    `json:"message"`
	History []Message `json:"history"`
}

// Reply is the assistant's answer.
type Reply struct {
	// Text is the reply content.
	Text string

	// Model that produced the reply, when known.
	Model string

	// LatencyMs is the round-trip time in milliseconds.
	LatencyMs int64
}

// Client produces assistant replies.
type Client interface {
	// Reply answers req.Message given req.History.
	Reply(ctx context.Context, req *Request) (*Reply, error)

	// Close releases any resources held by the client.
	Close() error
}

// Recent returns the last n messages of history, oldest first. A
// non-positive n returns nil.
func Recent(history []Message, n int) []Message {
	if n <= 0 {
		return nil
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]Message, len(history))
	copy(out, history)
	return out
}
