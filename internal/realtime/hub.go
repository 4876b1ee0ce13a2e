// Package realtime fans broadcast events out to every live subscriber of a
// channel. Delivery is best-effort: nothing is persisted and a subscriber
// only sees events sent while it is subscribed.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/sharetube/watchparty/internal/domain"
)

// Transport carries envelopes between processes. Without one the hub only
// reaches subscribers in its own process.
type Transport interface {
	Publish(ctx context.Context, channel string, msg []byte) error
	Run(ctx context.Context, ready func(), deliver func(channel string, msg []byte)) error
}

type Callback func(payload json.RawMessage)

// DefaultQueueSize is the queue length used by SubscribeQueued for a
// non-positive size.
const DefaultQueueSize = 64

type envelope struct {
	Kind    domain.EventKind `json:"kind"`
	Payload json.RawMessage  `json:"payload"`
	// subscription id of the sender, empty for server-originated events
	Origin string `json:"origin,omitempty"`
}

type Hub struct {
	channels  map[string]map[string]*Subscription
	mu        sync.RWMutex
	transport Transport
	logger    *slog.Logger
}

func NewHub(transport Transport, logger *slog.Logger) *Hub {
	return &Hub{
		channels:  make(map[string]map[string]*Subscription),
		transport: transport,
		logger:    logger,
	}
}

// Run pumps events from the transport into local subscribers until ctx is
// done. ready is called once the transport is listening.
func (h *Hub) Run(ctx context.Context, ready func()) error {
	if h.transport == nil {
		if ready != nil {
			ready()
		}
		<-ctx.Done()
		return nil
	}

	return h.transport.Run(ctx, ready, func(channel string, msg []byte) {
		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			h.logger.Warn("dropping undecodable broadcast", "channel", channel, "error", err)
			return
		}

		h.deliver(channel, &env)
	})
}

// Subscribe registers a new, independent subscription on channel. Callbacks
// run on the goroutine that delivers the event.
func (h *Hub) Subscribe(channel string) *Subscription {
	return h.subscribe(channel, 0)
}

// SubscribeQueued is like Subscribe but callbacks run on a goroutine owned
// by the subscription, fed by a queue of size events. Events that do not fit
// are dropped, so a slow subscriber never holds up delivery to others.
func (h *Hub) SubscribeQueued(channel string, size int) *Subscription {
	if size <= 0 {
		size = DefaultQueueSize
	}

	return h.subscribe(channel, size)
}

func (h *Hub) subscribe(channel string, queueSize int) *Subscription {
	sub := &Subscription{
		id:        uuid.NewString(),
		channel:   channel,
		callbacks: make(map[domain.EventKind][]Callback),
		hub:       h,
	}
	if queueSize > 0 {
		sub.queue = make(chan event, queueSize)
		go sub.drain()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[string]*Subscription)
		h.channels[channel] = subs
	}
	subs[sub.id] = sub

	h.logger.Debug("subscribed", "channel", channel, "subscription_id", sub.id)
	return sub
}

// Unsubscribe drops every callback of sub; later sends do not reach it.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[sub.channel]
	if !ok {
		return
	}

	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(h.channels, sub.channel)
	}

	sub.mu.Lock()
	if !sub.closed && sub.queue != nil {
		close(sub.queue)
	}
	sub.closed = true
	sub.callbacks = nil
	sub.mu.Unlock()

	h.logger.Debug("unsubscribed", "channel", sub.channel, "subscription_id", sub.id)
}

// Publish broadcasts a server-originated event to every subscriber of channel.
func (h *Hub) Publish(ctx context.Context, channel string, kind domain.EventKind, payload any) error {
	return h.send(ctx, channel, "", kind, payload)
}

func (h *Hub) send(ctx context.Context, channel, origin string, kind domain.EventKind, payload any) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown event kind %q", domain.ErrValidation, kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	env := envelope{Kind: kind, Payload: raw, Origin: origin}
	if h.transport == nil {
		h.deliver(channel, &env)
		return nil
	}

	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	// local subscribers get it back through the transport
	if err := h.transport.Publish(ctx, channel, msg); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}

	return nil
}

func (h *Hub) deliver(channel string, env *envelope) {
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.channels[channel]))
	for id, sub := range h.channels[channel] {
		if id == env.Origin {
			continue
		}
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		sub.dispatch(env.Kind, env.Payload)
	}
}

// Subscribers reports how many live subscriptions channel has.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.channels[channel])
}
