// Package exchange routes messages between the runners of a room.
//
// Delivery is best effort: every subscription owns a bounded queue and a
// message for a full queue is dropped. A single publisher sees FIFO order per
// routing key at each subscriber.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/metrics"
)

// Message is the envelope carried between runners.
type Message struct {
	Module    string          `json:"module"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewMessage encodes payload into a message of module.
func NewMessage(module string, ts time.Time, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s exchange payload: %w", module, err)
	}
	return Message{Module: module, Timestamp: ts, Payload: raw}, nil
}

// Delivery is a message together with the key it was published on.
type Delivery struct {
	Key     string
	Message Message
}

// Publisher is what runners and the HTTP layer publish through.
type Publisher interface {
	Publish(ctx context.Context, key string, msg Message) error
}

// Forwarder relays locally published messages to other processes.
type Forwarder interface {
	Forward(ctx context.Context, key string, msg Message) error
}

const DefaultQueueSize = 256

type Hub struct {
	mu        sync.RWMutex
	subs      map[string]map[*Subscription]struct{}
	queueSize int
	forwarder Forwarder
}

func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		subs:      make(map[string]map[*Subscription]struct{}),
		queueSize: queueSize,
	}
}

// SetForwarder installs the cross-process relay. Call before serving.
func (h *Hub) SetForwarder(f Forwarder) {
	h.mu.Lock()
	h.forwarder = f
	h.mu.Unlock()
}

// Subscription is one runner's view of the hub.
type Subscription struct {
	hub  *Hub
	ch   chan Delivery
	keys map[string]struct{}

	closed bool
}

// Subscribe registers a new subscription listening on keys.
func (h *Hub) Subscribe(keys ...string) *Subscription {
	s := &Subscription{
		hub:  h,
		ch:   make(chan Delivery, h.queueSize),
		keys: make(map[string]struct{}),
	}
	s.Add(keys...)
	return s
}

// C yields deliveries until the subscription is closed.
func (s *Subscription) C() <-chan Delivery { return s.ch }

// Add starts listening on more keys.
func (s *Subscription) Add(keys ...string) {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	for _, k := range keys {
		set, ok := h.subs[k]
		if !ok {
			set = make(map[*Subscription]struct{})
			h.subs[k] = set
		}
		set[s] = struct{}{}
		s.keys[k] = struct{}{}
	}
}

// Remove stops listening on keys.
func (s *Subscription) Remove(keys ...string) {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range keys {
		h.unlink(k, s)
		delete(s.keys, k)
	}
}

// Keys returns the keys currently listened on.
func (s *Subscription) Keys() []string {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	return out
}

// Close unsubscribes from everything and closes C.
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for k := range s.keys {
		h.unlink(k, s)
	}
	s.keys = nil
	close(s.ch)
}

func (h *Hub) unlink(key string, s *Subscription) {
	set, ok := h.subs[key]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, key)
	}
}

// Publish delivers msg to local subscribers of key and hands it to the
// forwarder, if any.
func (h *Hub) Publish(ctx context.Context, key string, msg Message) error {
	h.Deliver(key, msg)
	metrics.ExchangePublished.Inc()

	h.mu.RLock()
	f := h.forwarder
	h.mu.RUnlock()
	if f == nil {
		return nil
	}
	return f.Forward(ctx, key, msg)
}

// Deliver fans msg out to local subscribers only. The relay uses it for
// messages that arrive from other processes.
func (h *Hub) Deliver(key string, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[key] {
		select {
		case s.ch <- Delivery{Key: key, Message: msg}:
		default:
			metrics.ExchangeDropped.Inc()
			log.Warn().Str("module", "exchange").Str("key", key).Str("from", msg.Module).Msg("subscriber queue full, dropping")
		}
	}
}

// Subscribers reports how many subscriptions listen on key.
func (h *Hub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}
