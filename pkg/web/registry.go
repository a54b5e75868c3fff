package web

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
	"github.com/teslashibe/go-voiceturn/pkg/chat"
	"github.com/teslashibe/go-voiceturn/pkg/conversation"
	"github.com/teslashibe/go-voiceturn/pkg/hub"
	"github.com/teslashibe/go-voiceturn/pkg/metrics"
	"github.com/teslashibe/go-voiceturn/pkg/stt"
	"github.com/teslashibe/go-voiceturn/pkg/trace"
	"github.com/teslashibe/go-voiceturn/pkg/tts"
	"github.com/teslashibe/go-voiceturn/pkg/voice"
)

// Providers are the collaborators every session is built from. Providers
// are shared; each session wraps them in its own chains, so provider health
// is tracked per session.
type Providers struct {
	// STT lists transcription providers, highest priority first.
	STT []stt.Provider

	// TTS lists synthesis providers, highest priority first.
	TTS []tts.Provider

	// Chat writes the replies.
	Chat chat.Client

	// Extra options applied to every session's chains and conversation.
	STTOptions          []stt.ChainOption
	TTSOptions          []tts.ChainOption
	ConversationOptions []conversation.Option
}

// Close closes every provider.
func (p *Providers) Close() error {
	var lastErr error
	for _, sp := range p.STT {
		if err := sp.Close(); err != nil {
			lastErr = err
		}
	}
	for _, tp := range p.TTS {
		if err := tp.Close(); err != nil {
			lastErr = err
		}
	}
	if p.Chat != nil {
		if err := p.Chat.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Session is one remote client's pipeline.
type Session struct {
	ID         string
	Controller *voice.Controller
	Capture    *audioio.StreamCapture
	Player     *SocketPlayer
	Trace      *trace.Buffer
	Created    time.Time

	lastSeen    atomic.Int64
	unsubscribe func()

	mu   sync.Mutex
	conn *controlConn
}

// Emit forwards controller events to the attached control socket. Session
// implements voice.EventSink.
func (s *Session) Emit(e voice.Event) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.trySendJSON(outbound{Type: msgEvent, Event: &e})
	}
}

// Connected reports whether a control socket is attached.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// LastSeen returns the time of the last request or socket message.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// attach makes conn the session's control socket, closing any previous one.
func (s *Session) attach(conn *controlConn) {
	s.mu.Lock()
	prev := s.conn
	s.conn = conn
	s.mu.Unlock()

	if prev != nil {
		s.Player.detach(prev)
		prev.close()
	}
	s.Player.attach(conn)
	s.touch()
}

func (s *Session) detach(conn *controlConn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	s.Player.detach(conn)
	s.touch()
}

// close cancels the turn in progress and drops the socket.
func (s *Session) close() {
	s.Controller.Cancel()
	s.unsubscribe()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		s.Player.detach(conn)
		conn.close()
	}
}

// Registry holds the open sessions.
type Registry struct {
	providers    Providers
	feed         *hub.Hub
	metrics      *metrics.Metrics
	logger       *slog.Logger
	maxSessions  int
	idleTimeout  time.Duration
	playbackWait time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. feed may be nil.
func NewRegistry(p Providers, feed *hub.Hub, cfg *Config) (*Registry, error) {
	if len(p.STT) == 0 || len(p.TTS) == 0 {
		return nil, ErrNoProviders
	}
	if p.Chat == nil {
		return nil, ErrNoChatClient
	}
	return &Registry{
		providers:    p,
		feed:         feed,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With("component", "web.registry"),
		maxSessions:  cfg.MaxSessions,
		idleTimeout:  cfg.IdleTimeout,
		playbackWait: cfg.PlaybackWait,
		sessions:     make(map[string]*Session),
	}, nil
}

// Create opens a new session.
func (r *Registry) Create() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		return nil, ErrTooManySessions
	}

	id := uuid.NewString()
	logger := r.logger.With("session", id)
	buf := trace.NewBuffer(0)

	sess := &Session{
		ID:          id,
		Capture:     audioio.NewStreamCapture(logger),
		Player:      NewSocketPlayer(r.playbackWait, logger),
		Trace:       buf,
		Created:     time.Now(),
		unsubscribe: func() {},
	}
	sess.touch()

	sttOpts := append([]stt.ChainOption{
		stt.WithChainLogger(logger),
		stt.WithTrace(buf),
		stt.WithMetrics(r.metrics),
	}, r.providers.STTOptions...)
	sttChain, err := stt.NewChain(r.providers.STT, sttOpts...)
	if err != nil {
		return nil, fmt.Errorf("stt chain: %w", err)
	}

	ttsOpts := append([]tts.ChainOption{
		tts.WithChainLogger(logger),
		tts.WithTrace(buf),
		tts.WithMetrics(r.metrics),
	}, r.providers.TTSOptions...)
	ttsChain, err := tts.NewChain(r.providers.TTS, sess.Player, ttsOpts...)
	if err != nil {
		return nil, fmt.Errorf("tts chain: %w", err)
	}

	convOpts := append([]conversation.Option{
		conversation.WithLogger(logger),
		conversation.WithTrace(buf),
		conversation.WithMetrics(r.metrics),
	}, r.providers.ConversationOptions...)
	conv, err := conversation.New(r.providers.Chat, convOpts...)
	if err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}

	sinks := voice.MultiSink{sess}
	if r.feed != nil {
		sinks = append(sinks, r.feed)
		sess.unsubscribe = buf.Subscribe(r.feed.TraceSink(id))
	}

	ctl, err := voice.New(sess.Capture, sttChain, ttsChain, conv,
		voice.WithSessionID(id),
		voice.WithSink(sinks),
		voice.WithLogger(logger),
		voice.WithTrace(buf),
		voice.WithMetrics(r.metrics),
	)
	if err != nil {
		sess.unsubscribe()
		return nil, err
	}
	sess.Controller = ctl

	r.sessions[id] = sess
	r.metrics.SessionOpened()
	buf.Info("session opened")
	r.logger.Info("session opened", "session", id, "sessions", len(r.sessions))
	return sess, nil
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.touch()
	return sess, nil
}

// Remove closes and forgets the session with id.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.close()
	r.metrics.SessionClosed()
	r.logger.Info("session closed", "session", id, "sessions", count)
	return nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Reap closes idle sessions without a control socket that have not been
// seen since before cutoff. It returns how many were closed.
func (r *Registry) Reap(cutoff time.Time) int {
	r.mu.RLock()
	var stale []string
	for id, sess := range r.sessions {
		if sess.Connected() || sess.Controller.State() != voice.StateIdle {
			continue
		}
		if sess.LastSeen().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	n := 0
	for _, id := range stale {
		if r.Remove(id) == nil {
			n++
		}
	}
	if n > 0 {
		r.logger.Info("reaped idle sessions", "count", n)
	}
	return n
}

// Run reaps idle sessions until ctx is done, then closes every session.
func (r *Registry) Run(ctx context.Context) {
	if r.idleTimeout <= 0 {
		<-ctx.Done()
		r.closeAll()
		return
	}

	interval := r.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case now := <-ticker.C:
			r.Reap(now.Add(-r.idleTimeout))
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Remove(id)
	}
}
