// Package web serves voice sessions to remote clients.
//
// Every session owns its own pipeline: a stream capturer fed by the browser,
// transcription and synthesis chains with their own provider health, a
// conversation and a turn controller. Clients drive a session over REST or
// over its control socket:
//
//	POST   /api/sessions              -> {id}
//	GET    /api/sessions/:id          state, messages, providers
//	DELETE /api/sessions/:id
//	POST   /api/sessions/:id/text     {text}
//	POST   /api/sessions/:id/toggle
//	POST   /api/sessions/:id/cancel
//	POST   /api/sessions/:id/clear
//	GET    /api/sessions/:id/trace
//	GET    /ws/sessions/:id           control socket
//	GET    /ws/feed                   state and trace events (?session=<id> to filter)
//
// /api/chat, /api/asr and /api/tts are stateless proxies to the chat,
// transcription and voice services.
package web

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	feedws "github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-voiceturn/pkg/hub"
	"github.com/teslashibe/go-voiceturn/pkg/metrics"
	"github.com/teslashibe/go-voiceturn/pkg/stt"
	"github.com/teslashibe/go-voiceturn/pkg/tts"
)

// Config holds server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080").
	Address string

	// AllowOrigins is the CORS allow list.
	AllowOrigins string

	// MaxSessions caps concurrently open sessions.
	MaxSessions int

	// IdleTimeout closes sessions that have had no traffic and no socket
	// for this long. Zero disables reaping.
	IdleTimeout time.Duration

	// PlaybackWait bounds how long the server waits for a client to ack a
	// clip.
	PlaybackWait time.Duration

	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// ASR backs /api/asr. Nil answers "No API key".
	ASR stt.Provider

	// Speech backs /api/tts. Nil answers with the missing key error.
	Speech tts.Provider
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:      ":8080",
		AllowOrigins: "*",
		MaxSessions:  64,
		IdleTimeout:  30 * time.Minute,
		PlaybackWait: 2 * time.Minute,
		Logger:       slog.Default(),
		Gatherer:     prometheus.DefaultGatherer,
	}
}

// Option is a functional option for configuring a Server.
type Option func(*Config)

// WithAddress sets the listen address.
func WithAddress(addr string) Option {
	return func(c *Config) { c.Address = addr }
}

// WithAllowOrigins sets the CORS allow list.
func WithAllowOrigins(origins string) Option {
	return func(c *Config) { c.AllowOrigins = origins }
}

// WithMaxSessions caps open sessions.
func WithMaxSessions(n int) Option {
	return func(c *Config) { c.MaxSessions = n }
}

// WithIdleTimeout sets the idle session timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.IdleTimeout = d }
}

// WithPlaybackWait sets the playback ack timeout.
func WithPlaybackWait(d time.Duration) Option {
	return func(c *Config) { c.PlaybackWait = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics records session and pipeline metrics on m and serves g at
// /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(c *Config) {
		c.Metrics = m
		if g != nil {
			c.Gatherer = g
		}
	}
}

// WithASR sets the provider behind /api/asr.
func WithASR(p stt.Provider) Option {
	return func(c *Config) { c.ASR = p }
}

// WithSpeech sets the provider behind /api/tts.
func WithSpeech(p tts.Provider) Option {
	return func(c *Config) { c.Speech = p }
}

// Server is the session server.
type Server struct {
	app       *fiber.App
	cfg       *Config
	logger    *slog.Logger
	providers Providers
	registry  *Registry
	feed      *hub.Hub
}

// NewServer creates a server for sessions built from p.
func NewServer(p Providers, opts ...Option) (*Server, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	feed := hub.New(cfg.Logger)
	registry, err := NewRegistry(p, feed, cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "web"),
		providers: p,
		registry:  registry,
		feed:      feed,
	}

	app := fiber.New(fiber.Config{
		AppName:               "voiceturn",
		DisableStartupMessage: true,
	})

	app.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowOrigins}))

	app.Get("/healthz", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))

	// API routes
	api := app.Group("/api")
	api.Post("/chat", s.handleChat)
	api.Post("/asr", s.handleASR)
	api.Post("/tts", s.handleTTS)

	api.Post("/sessions", s.handleCreateSession)
	api.Get("/sessions/:id", s.handleGetSession)
	api.Delete("/sessions/:id", s.handleDeleteSession)
	api.Post("/sessions/:id/text", s.handleSubmitText)
	api.Post("/sessions/:id/toggle", s.handleToggle)
	api.Post("/sessions/:id/cancel", s.handleCancel)
	api.Post("/sessions/:id/clear", s.handleClear)
	api.Get("/sessions/:id/trace", s.handleTrace)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/feed", feedws.New(s.handleFeedWS))
	app.Get("/ws/sessions/:id", s.requireSession, websocket.New(s.handleControlWS))

	s.app = app
	return s, nil
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Registry returns the session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Feed returns the broadcast feed hub.
func (s *Server) Feed() *hub.Hub {
	return s.feed
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. Every session is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.feed.Run(ctx)
	go s.registry.Run(ctx)
	go func() {
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}()

	s.logger.Info("listening", "address", ln.Addr().String())
	return s.app.Listener(ln)
}

// Close releases the providers. Call after Serve returned.
func (s *Server) Close() error {
	return s.providers.Close()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":       "ok",
		"sessions":     s.registry.Len(),
		"feed_clients": s.feed.ClientCount(),
	})
}

// handleFeedWS subscribes a dashboard to the feed. ?session=<id> limits it
// to one session.
func (s *Server) handleFeedWS(c *feedws.Conn) {
	hub.NewClient(s.feed, c, c.Query("session")).Serve()
}

// requireSession rejects upgrades for unknown sessions before the socket
// is opened.
func (s *Server) requireSession(c *fiber.Ctx) error {
	if _, err := s.registry.Get(c.Params("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.Next()
}
