// Package conversation keeps the message history of one voice session and
// runs the request/response cycle against a chat collaborator.
//
// Only the most recent Window messages are forwarded with each request, so
// the payload stays bounded no matter how long the session runs.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-voiceturn/pkg/chat"
	"github.com/teslashibe/go-voiceturn/pkg/metrics"
)

// PlaceholderReply is recorded as the assistant's answer when the chat
// collaborator fails.
const PlaceholderReply = "What the hell happened. Try again, yeh"

// Session is an ordered conversation history bound to a chat client.
// It is safe for concurrent use.
type Session struct {
	client chat.Client
	config *Config
	logger *slog.Logger

	mu       sync.Mutex
	messages []chat.Message
	epoch    uint64 // bumped by Clear
	onClear  func()
}

// New creates an empty session.
func New(client chat.Client, opts ...Option) (*Session, error) {
	if client == nil {
		return nil, ErrNoClient
	}
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Session{
		client:  client,
		config:  cfg,
		logger:  cfg.Logger.With("component", "conversation.session"),
		onClear: cfg.OnClear,
	}, nil
}

// Submit appends text as a user message and asks the chat client for a
// reply, forwarding at most Window prior messages.
//
// On success the reply is appended and returned. When the client fails,
// PlaceholderReply is appended and returned together with an error
// matching ErrChatTransport. When ctx is cancelled, or the session is
// cleared while the request is in flight, nothing is appended after the
// user message and ctx's error (or context.Canceled) is returned.
func (s *Session) Submit(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	s.mu.Lock()
	history := chat.Recent(s.messages, s.config.Window)
	s.messages = append(s.messages, chat.NewUserMessage(text))
	epoch := s.epoch
	s.mu.Unlock()

	s.config.Trace.Info("sending to chat", "history", fmt.Sprint(len(history)))

	start := time.Now()
	reply, err := s.client.Reply(ctx, &chat.Request{Message: text, History: history})
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		s.config.Metrics.Chat(metrics.OutcomeCanceled, elapsed)
		s.logger.Debug("turn cancelled during chat", "elapsed", elapsed)
		return "", ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		s.config.Metrics.Chat(metrics.OutcomeCanceled, elapsed)
		return "", context.Canceled
	}

	if err != nil {
		s.messages = append(s.messages, chat.NewAssistantMessage(PlaceholderReply))
		s.config.Metrics.Chat(metrics.OutcomeError, elapsed)
		s.config.Trace.Error("chat failed", "error", err.Error())
		s.logger.Warn("chat request failed", "error", err, "elapsed", elapsed)
		return PlaceholderReply, fmt.Errorf("%w: %w", ErrChatTransport, err)
	}

	s.messages = append(s.messages, chat.NewAssistantMessage(reply.Text))
	s.config.Metrics.Chat(metrics.OutcomeSuccess, elapsed)
	s.config.Trace.Success("reply received", "chars", fmt.Sprint(len(reply.Text)))
	s.logger.Debug("reply received", "chars", len(reply.Text), "elapsed", elapsed)
	return reply.Text, nil
}

// Clear empties the history and runs the clear hook. Replies to requests
// already in flight are discarded.
func (s *Session) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.epoch++
	hook := s.onClear
	s.mu.Unlock()

	s.config.Trace.Info("conversation cleared")
	if hook != nil {
		hook()
	}
}

// SetClearHook replaces the hook run by Clear.
func (s *Session) SetClearHook(fn func()) {
	s.mu.Lock()
	s.onClear = fn
	s.mu.Unlock()
}

// Messages returns a copy of the history, oldest first.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the history.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Window returns the forwarded history size.
func (s *Session) Window() int {
	return s.config.Window
}
