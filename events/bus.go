// Package events provides a lightweight pub/sub event bus used by the
// gateway for observability: breaker transitions, admission decisions,
// dispatch outcomes, stream lifecycle, and webhook delivery attempts all
// flow through here so that telemetry and logging listeners can be wired
// independently of the components that raise them.
package events

import "sync"

// Listener is a function that handles events.
type Listener func(*Event)

const (
	defaultWorkerPoolSize  = 4
	defaultEventBufferSize = 256
)

// Option configures an EventBus.
type Option func(*busConfig)

type busConfig struct {
	workerPoolSize  int
	eventBufferSize int
}

// WithWorkerPoolSize sets the number of goroutines draining the publish
// queue. Values <= 0 are ignored and the default is kept.
func WithWorkerPoolSize(n int) Option {
	return func(c *busConfig) {
		if n > 0 {
			c.workerPoolSize = n
		}
	}
}

// WithEventBufferSize sets the capacity of the internal publish queue.
// Values <= 0 are ignored and the default is kept.
func WithEventBufferSize(n int) Option {
	return func(c *busConfig) {
		if n > 0 {
			c.eventBufferSize = n
		}
	}
}

type subscription struct {
	id       uint64
	listener Listener
}

// EventBus manages event distribution to listeners via a bounded worker
// pool, so listeners run off the caller's goroutine. Publish blocks while
// the pool's queue is full, so listeners that stop returning eventually
// block it.
type EventBus struct {
	mu              sync.RWMutex
	listeners       map[EventType][]subscription
	globalListeners []subscription
	nextID          uint64

	queue  chan *Event
	wg     sync.WaitGroup
	closed bool
	closeMu sync.Mutex
}

// NewEventBus creates a new event bus and starts its worker pool.
func NewEventBus(opts ...Option) *EventBus {
	cfg := busConfig{
		workerPoolSize:  defaultWorkerPoolSize,
		eventBufferSize: defaultEventBufferSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	eb := &EventBus{
		listeners: make(map[EventType][]subscription),
		queue:     make(chan *Event, cfg.eventBufferSize),
	}

	eb.wg.Add(cfg.workerPoolSize)
	for range cfg.workerPoolSize {
		go eb.drain()
	}

	return eb
}

func (eb *EventBus) drain() {
	defer eb.wg.Done()
	for event := range eb.queue {
		eb.dispatch(event)
	}
}

func (eb *EventBus) dispatch(event *Event) {
	eb.mu.RLock()
	typeListeners := append([]subscription(nil), eb.listeners[event.Type]...)
	globalListeners := append([]subscription(nil), eb.globalListeners...)
	eb.mu.RUnlock()

	for _, sub := range typeListeners {
		safeInvoke(sub.listener, event)
	}
	for _, sub := range globalListeners {
		safeInvoke(sub.listener, event)
	}
}

// Subscribe registers a listener for a specific event type and returns a
// function that removes it.
func (eb *EventBus) Subscribe(eventType EventType, listener Listener) func() {
	eb.mu.Lock()
	eb.nextID++
	id := eb.nextID
	eb.listeners[eventType] = append(eb.listeners[eventType], subscription{id: id, listener: listener})
	eb.mu.Unlock()

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		subs := eb.listeners[eventType]
		for i, sub := range subs {
			if sub.id == id {
				eb.listeners[eventType] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers a listener for all event types and returns a
// function that removes it.
func (eb *EventBus) SubscribeAll(listener Listener) func() {
	eb.mu.Lock()
	eb.nextID++
	id := eb.nextID
	eb.globalListeners = append(eb.globalListeners, subscription{id: id, listener: listener})
	eb.mu.Unlock()

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		for i, sub := range eb.globalListeners {
			if sub.id == id {
				eb.globalListeners = append(eb.globalListeners[:i], eb.globalListeners[i+1:]...)
				return
			}
		}
	}
}

// Publish enqueues an event for asynchronous delivery to all registered
// listeners. It returns false if the bus has been closed; the caller is
// then responsible for deciding whether to drop or log the event.
func (eb *EventBus) Publish(event *Event) bool {
	eb.closeMu.Lock()
	defer eb.closeMu.Unlock()
	if eb.closed {
		return false
	}
	eb.queue <- event
	return true
}

// Clear removes all listeners (primarily for tests).
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.listeners = make(map[EventType][]subscription)
	eb.globalListeners = nil
}

// Close stops accepting new events, drains whatever is already queued, and
// waits for the worker pool to exit. Close is idempotent.
func (eb *EventBus) Close() {
	eb.closeMu.Lock()
	if eb.closed {
		eb.closeMu.Unlock()
		return
	}
	eb.closed = true
	close(eb.queue)
	eb.closeMu.Unlock()

	eb.wg.Wait()
}

func safeInvoke(listener Listener, event *Event) {
	defer func() { _ = recover() }()
	listener(event)
}
