// Package taskstore is the gateway's in-memory task record store and its
// per-task pub/sub broadcaster (spec §4.C, §4.D). It is grounded on the
// teacher's server/a2a taskBroadcaster (channel-per-subscriber fan-out),
// generalized with the lag-counting and terminal-event-preemption
// backpressure policy spec §4.D and §9 require, which the teacher's plain
// drop-newest channel send does not implement.
package taskstore

import (
	"context"
	"sync"

	"github.com/AltairaLabs/agentgw/wire"
)

// DefaultSubscriberQueueSize is the default per-subscriber buffer capacity
// (configuration key subscriber.queueSize, spec §6).
const DefaultSubscriberQueueSize = 64

// Update is one task-update event delivered to subscribers.
type Update struct {
	Task wire.Task
}

func (u Update) terminal() bool { return u.Task.Status.State.IsTerminal() }

// subscriber is a single subscriber's bounded, non-blocking inbox. Unlike a
// plain buffered channel, it can evict its own oldest entry on overflow
// (a channel only allows removal from the receiving goroutine), which is
// what lets Send enforce "terminal events are never dropped" from the
// sender's side.
type subscriber struct {
	mu       sync.Mutex
	buf      []Update
	capacity int
	lag      int
	notify   chan struct{}
	closed   bool
}

func newSubscriber(capacity int) *subscriber {
	return &subscriber{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// send enqueues u, evicting the oldest buffered update if full. Eviction of
// a non-terminal update increments lag; the incoming update itself is never
// dropped, so terminal updates are always eventually delivered.
func (s *subscriber) send(u Update) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.buf) >= s.capacity {
		s.lag++
		s.buf = s.buf[1:]
	}
	s.buf = append(s.buf, u)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// next blocks until an update is available, the context is canceled, or the
// subscriber is closed. ok is false only in the latter two cases.
func (s *subscriber) next(ctx context.Context) (Update, bool) {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			u := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return u, true
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Update{}, false
		}

		select {
		case <-s.notify:
			continue
		case <-ctx.Done():
			return Update{}, false
		}
	}
}

// lagCount returns the number of updates dropped for this subscriber so far.
func (s *subscriber) lagCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lag
}

func (s *subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Broadcaster fans task updates out to every current subscriber of one task
// id (spec §4.D). Delivery is non-blocking per subscriber.
type Broadcaster struct {
	mu       sync.Mutex
	subs     map[*subscriber]struct{}
	capacity int
}

// NewBroadcaster creates a Broadcaster with the given per-subscriber queue
// capacity.
func NewBroadcaster(capacity int) *Broadcaster {
	if capacity <= 0 {
		capacity = DefaultSubscriberQueueSize
	}
	return &Broadcaster{
		subs:     make(map[*subscriber]struct{}),
		capacity: capacity,
	}
}

// Subscription is a handle returned by Broadcaster.Subscribe.
type Subscription struct {
	sub *subscriber
	b   *Broadcaster
}

// Next blocks for the next update (see subscriber.next).
func (s *Subscription) Next(ctx context.Context) (Update, bool) {
	return s.sub.next(ctx)
}

// Lag returns the number of updates dropped for this subscription so far.
func (s *Subscription) Lag() int { return s.sub.lagCount() }

// Close unsubscribes and releases the subscription's queue.
func (s *Subscription) Close() { s.b.unsubscribe(s.sub) }

// Subscribe attaches a new subscriber to the broadcaster.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := newSubscriber(b.capacity)
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return &Subscription{sub: sub, b: b}
}

func (b *Broadcaster) unsubscribe(sub *subscriber) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	sub.close()
}

// Broadcast delivers u to every current subscriber (spec §4.D).
func (b *Broadcaster) Broadcast(u Update) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.send(u)
	}
}

// SubscriberCount returns the number of currently attached subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// CloseAll closes every subscriber's queue, signaling egress loops to stop.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[*subscriber]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
