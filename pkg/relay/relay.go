// Package relay fans frames written by writers out to the streamers subscribed to
// their channels.
package relay

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/framer"
)

// ErrStopped is returned once the hub's Run loop has exited.
var ErrStopped = errors.New("relay stopped")

// Subscription receives the frames published for its keys.
type Subscription struct {
	frames  chan framer.Frame
	mu      sync.RWMutex
	keys    channel.Keys
	dropped atomic.Int64
}

// Frames is closed when the subscription is removed or the hub stops.
func (s *Subscription) Frames() <-chan framer.Frame { return s.frames }

// SetKeys replaces the channels the subscription receives.
func (s *Subscription) SetKeys(keys channel.Keys) {
	s.mu.Lock()
	s.keys = keys.Unique()
	s.mu.Unlock()
}

// Keys returns the channels the subscription receives.
func (s *Subscription) Keys() channel.Keys {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys
}

// Dropped returns the number of frames discarded because the subscriber was slow.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Hub routes published frames to subscriptions.
type Hub struct {
	broadcast  chan framer.Frame
	register   chan *Subscription
	unregister chan *Subscription
	subs       map[*Subscription]struct{}
	clientBuf  int
	done       chan struct{}
	logger     *zap.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithBroadcastBuffer sets how many published frames may wait for Run. Default 256.
func WithBroadcastBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan framer.Frame, size)
		}
	}
}

// WithClientBuffer sets the default frame buffer of subscriptions that request none.
// Default 100.
func WithClientBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

// WithLogger sets the hub logger. Nil keeps the no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub creates a hub. Frames are delivered only while Run is running.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		broadcast:  make(chan framer.Frame, 256),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		subs:       make(map[*Subscription]struct{}),
		clientBuf:  100,
		done:       make(chan struct{}),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run delivers frames until ctx is cancelled, then closes every subscription.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for sub := range h.subs {
				close(sub.frames)
			}
			h.subs = nil
			return
		case sub := <-h.register:
			h.subs[sub] = struct{}{}
		case sub := <-h.unregister:
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.frames)
			}
		case frame := <-h.broadcast:
			h.deliver(frame)
		}
	}
}

func (h *Hub) deliver(frame framer.Frame) {
	for sub := range h.subs {
		filtered := frame.FilterKeys(sub.Keys())
		if filtered.Empty() {
			continue
		}
		select {
		case sub.frames <- filtered:
		default:
			if sub.dropped.Add(1) == 1 {
				h.logger.Warn("streamer too slow, dropping frames", zap.Stringers("keys", sub.Keys()))
			}
		}
	}
}

// Subscribe registers a subscription for keys. A size of zero uses the hub's client
// buffer.
func (h *Hub) Subscribe(ctx context.Context, keys channel.Keys, size int) (*Subscription, error) {
	if size <= 0 {
		size = h.clientBuf
	}
	sub := &Subscription{frames: make(chan framer.Frame, size)}
	sub.SetKeys(keys)
	select {
	case h.register <- sub:
		return sub, nil
	case <-h.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe removes sub and closes its frame channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Publish queues frame for delivery.
func (h *Hub) Publish(ctx context.Context, frame framer.Frame) error {
	select {
	case <-h.done:
		return ErrStopped
	default:
	}
	select {
	case h.broadcast <- frame:
		return nil
	case <-h.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
