// Package events is the in-process pub/sub fabric between the simulator,
// the tournament engine, the season scheduler and the websocket relay.
// Delivery is best effort: publishers never block, and a subscriber that
// falls behind loses its oldest buffered event first.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultBuffer is used when a subscriber does not size its own buffer.
const DefaultBuffer = 64

// Event is the envelope carried on every topic. Payload holds the
// topic-specific body (tick envelope, lifecycle change, phase change).
type Event struct {
	Topic     string      `json:"topic"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscription
}

func NewBus() *Bus {
	return &Bus{
		topics: make(map[string]map[string]*Subscription),
	}
}

// Subscription is one consumer's bounded view of a topic. Read from C;
// call Close when done. Dropped reports how many events overflowed.
type Subscription struct {
	ID    string
	Topic string
	C     <-chan Event

	ch      chan Event
	dropped atomic.Uint64
	bus     *Bus
	once    sync.Once
}

// Subscribe registers a consumer on a topic with a bounded buffer.
func (b *Bus) Subscribe(topic string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscription{
		ID:    uuid.NewString(),
		Topic: topic,
		ch:    make(chan Event, buffer),
		bus:   b,
	}
	sub.C = sub.ch

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[string]*Subscription)
	}
	b.topics[topic][sub.ID] = sub
	return sub
}

// Publish fans an event out to the topic's subscribers without blocking.
// The zero Timestamp is stamped here so emitters can leave it unset.
func (b *Bus) Publish(topic string, ev Event) {
	ev.Topic = topic
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.topics[topic] {
		sub.deliver(ev)
	}
}

// SubscriberCount reports the live subscriptions on a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// deliver tries a direct send, then evicts the oldest buffered event and
// retries. Sends stay non-blocking in every branch.
func (s *Subscription) deliver(ev Event) {
	select {
	case s.ch <- ev:
		return
	default:
	}

	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}

	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many events this subscription has lost to overflow.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close removes the subscription and closes its channel. Safe to call more
// than once; publishers running concurrently are excluded by the bus lock,
// so no send can race the close.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if subs := s.bus.topics[s.Topic]; subs != nil {
			delete(subs, s.ID)
			if len(subs) == 0 {
				delete(s.bus.topics, s.Topic)
			}
		}
		s.bus.mu.Unlock()
		close(s.ch)
	})
}
