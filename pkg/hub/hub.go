package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-voiceturn/pkg/trace"
	"github.com/teslashibe/go-voiceturn/pkg/voice"
)

const (
	queueSize  = 256
	clientSize = 128
)

// Hub owns the set of feed subscribers. A single Run goroutine mutates the
// set; publishers only ever touch the queue.
type Hub struct {
	logger *slog.Logger

	subscribers map[*Client]struct{}
	mu          sync.RWMutex // guards subscribers for Count

	queue      chan frame
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	running atomic.Bool
	dropped atomic.Int64
	evicted atomic.Int64
}

// New creates a hub. Call Run before clients connect.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:      logger.With("component", "hub.feed"),
		subscribers: make(map[*Client]struct{}),
		queue:       make(chan frame, queueSize),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
	}
}

// Run fans queued events out until ctx is done, then disconnects every
// subscriber.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.subscribers {
				h.drop(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.subscribers[c] = struct{}{}
			n := len(h.subscribers)
			h.mu.Unlock()
			h.logger.Debug("subscriber joined", "session", c.session, "subscribers", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subscribers[c]; ok {
				h.drop(c)
			}
			n := len(h.subscribers)
			h.mu.Unlock()
			h.logger.Debug("subscriber left", "subscribers", n)

		case f := <-h.queue:
			h.mu.Lock()
			for c := range h.subscribers {
				if !f.wants(c.session) {
					continue
				}
				select {
				case c.send <- f.data:
				default:
					h.drop(c)
					h.logger.Warn("evicted slow subscriber", "evicted", h.evicted.Add(1))
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes c and closes its queue. Caller holds mu.
func (h *Hub) drop(c *Client) {
	delete(h.subscribers, c)
	close(c.send)
}

// Publish queues ev for every matching subscriber. It never blocks; events
// are dropped while the queue is full.
func (h *Hub) Publish(ev FeedEvent) {
	f, err := encode(ev)
	if err != nil {
		h.logger.Warn("encode feed event", "kind", ev.Kind, "error", err)
		return
	}
	select {
	case h.queue <- f:
	default:
		if n := h.dropped.Add(1); n%100 == 1 {
			h.logger.Warn("feed queue full", "dropped", n)
		}
	}
}

// Emit publishes a session event. Hub implements voice.EventSink.
func (h *Hub) Emit(e voice.Event) {
	h.Publish(FeedEvent{Kind: KindSession, Session: e.Session, Event: &e})
}

// TraceSink returns a trace subscriber that publishes events for session.
func (h *Hub) TraceSink(session string) func(trace.Event) {
	return func(e trace.Event) {
		h.Publish(FeedEvent{Kind: KindTrace, Session: session, Trace: &e})
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns how many events were discarded on a full queue.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

var _ voice.EventSink = (*Hub)(nil)
