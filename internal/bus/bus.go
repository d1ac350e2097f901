// Package bus implements the cross-component notification contract:
// multiple independent listeners, invoked in registration order, where a
// failing listener must not prevent the rest from running.
package bus

import (
	"sync"

	"github.com/merkelview/merkel-server/internal/logger"
)

// Bus fans events out to registered listeners.
type Bus[T any] struct {
	mu        sync.Mutex
	listeners []func(T)
	logger    *logger.Logger
}

// New creates an empty bus.
func New[T any](logger *logger.Logger) *Bus[T] {
	return &Bus[T]{logger: logger}
}

// Subscribe registers a listener. Listeners are invoked in registration order.
func (b *Bus[T]) Subscribe(fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Publish delivers event to every listener. A panic in one listener is
// recovered and logged so the remaining listeners still run.
func (b *Bus[T]) Publish(event T) {
	b.mu.Lock()
	listeners := make([]func(T), len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	for _, fn := range listeners {
		b.invoke(fn, event)
	}
}

func (b *Bus[T]) invoke(fn func(T), event T) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked", "panic", r)
		}
	}()
	fn(event)
}
