package event

import (
	"sync"
)

// Handler is an event handler for a typed event stream.
type Handler[Key comparable, Event any] interface {
	// OnEvent is called when an event is observed for a key.
	OnEvent(key Key, e Event)
}

// HandlerFunc is a function that implements Handler.
type HandlerFunc[Key comparable, Event any] func(key Key, e Event)

func (f HandlerFunc[Key, Event]) OnEvent(key Key, e Event) {
	f(key, e)
}

const queueSize = 64

type dispatch[Key comparable, Event any] struct {
	key   Key
	event Event
}

// Bus is an in-process fan-out bus for typed events. Delivery is
// asynchronous with respect to the producer. Events are handed to
// handlers one at a time in publish order.
type Bus[Key comparable, Event any] struct {
	handlersMu sync.RWMutex
	handlers   []Handler[Key, Event]

	queueOnce sync.Once
	queue     chan dispatch[Key, Event]
}

// NewBus returns a new Bus.
func NewBus[Key comparable, Event any]() *Bus[Key, Event] {
	return &Bus[Key, Event]{}
}

// AddHandler adds a handler for events published to this bus. Handlers
// added after the first publish only observe subsequent events.
func (b *Bus[Key, Event]) AddHandler(handler Handler[Key, Event]) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()

	b.handlers = append(b.handlers, handler)
}

// OnEvent publishes an event to all registered handlers. Bus itself
// implements Handler, so buses can be chained. Publishing blocks only
// when the dispatch queue is full.
func (b *Bus[Key, Event]) OnEvent(key Key, e Event) {
	b.queueOnce.Do(func() {
		b.queue = make(chan dispatch[Key, Event], queueSize)
		go b.dispatchLoop()
	})

	b.queue <- dispatch[Key, Event]{key: key, event: e}
}

func (b *Bus[Key, Event]) dispatchLoop() {
	for next := range b.queue {
		b.handlersMu.RLock()
		handlers := make([]Handler[Key, Event], len(b.handlers))
		copy(handlers, b.handlers)
		b.handlersMu.RUnlock()

		for _, handler := range handlers {
			handler.OnEvent(next.key, next.event)
		}
	}
}
