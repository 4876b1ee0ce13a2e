package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sharetube/watchparty/internal/domain"
)

type event struct {
	kind    domain.EventKind
	payload json.RawMessage
}

type Subscription struct {
	id        string
	channel   string
	callbacks map[domain.EventKind][]Callback
	// nil for subscriptions whose callbacks run inline
	queue     chan event
	closed    bool
	mu        sync.RWMutex
	hub       *Hub
}

func (s *Subscription) Id() string {
	return s.id
}

func (s *Subscription) Channel() string {
	return s.channel
}

// On registers cb for kind for as long as the subscription is active.
func (s *Subscription) On(kind domain.EventKind, cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.callbacks[kind] = append(s.callbacks[kind], cb)
}

// Send broadcasts payload to every other subscriber of the channel; the
// sending subscription never receives its own event.
func (s *Subscription) Send(ctx context.Context, kind domain.EventKind, payload any) error {
	return s.hub.send(ctx, s.channel, s.id, kind, payload)
}

func (s *Subscription) Unsubscribe() {
	s.hub.Unsubscribe(s)
}

func (s *Subscription) dispatch(kind domain.EventKind, payload json.RawMessage) {
	if s.queue == nil {
		s.run(kind, payload)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}

	select {
	case s.queue <- event{kind: kind, payload: payload}:
	default:
		s.hub.logger.Warn("subscriber queue full, dropping event", "channel", s.channel, "subscription_id", s.id, "kind", kind)
	}
}

// drain runs queued events until the subscription is closed.
func (s *Subscription) drain() {
	for ev := range s.queue {
		s.run(ev.kind, ev.payload)
	}
}

func (s *Subscription) run(kind domain.EventKind, payload json.RawMessage) {
	s.mu.RLock()
	callbacks := append([]Callback(nil), s.callbacks[kind]...)
	s.mu.RUnlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.hub.logger.Error("subscriber callback panicked", "channel", s.channel, "kind", kind, "panic", r)
				}
			}()
			cb(payload)
		}()
	}
}
