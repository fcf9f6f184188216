// Package eventbus provides the process-wide publish/subscribe channel for
// cross-module messaging.
//
// Delivery is synchronous, at-most-once per emit, in registration order.
// The bus carries no persistence and enforces no payload schema; payloads
// are opaque to the bus itself. A handler that panics is recovered and
// logged without affecting the emitter or subsequent handlers.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mfeshell/internal/logging"
)

// Standard event names emitted by the shell and its modules.
const (
	EventNotificationShow   = "notification:show"
	EventAuthChanged        = "auth:changed"
	EventNavigationChanged  = "navigation:changed"
	EventRoutesRegistered   = "navigation:routes-registered"
	EventRoutesUnregistered = "navigation:routes-unregistered"
)

// Handler receives an emitted event. Payloads are free-form.
type Handler func(event string, payload any)

// subscription tracks one registered handler. The active flag lets an
// unsubscribe that races an in-progress emit take effect for handlers not
// yet invoked, without disturbing the rest of the fan-out.
type subscription struct {
	handler Handler
	active  atomic.Bool
}

// Bus is the in-process event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]*subscription
	logger   *logging.Logger
	metrics  *Metrics
}

// New creates an event bus. logger must not be nil.
func New(logger *logging.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]*subscription),
		logger:   logger.Named("eventbus"),
	}
}

// SetMetrics attaches Prometheus metrics. Optional.
func (b *Bus) SetMetrics(m *Metrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics = m
}

// On registers a handler for the named event and returns its unsubscribe
// function. Unsubscribing during an emit is safe and affects only the
// removed handler.
func (b *Bus) On(event string, handler Handler) (unsubscribe func()) {
	sub := &subscription{handler: handler}
	sub.active.Store(true)

	b.mu.Lock()
	b.handlers[event] = append(b.handlers[event], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			b.mu.Lock()
			subs := b.handlers[event]
			for i, s := range subs {
				if s == sub {
					b.handlers[event] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(b.handlers[event]) == 0 {
				delete(b.handlers, event)
			}
			b.mu.Unlock()
		})
	}
}

// Emit synchronously invokes every handler registered for event, in
// registration order. A handler that panics is recovered and logged and
// does not prevent subsequent handlers from running.
func (b *Bus) Emit(event string, payload any) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.handlers[event]))
	copy(subs, b.handlers[event])
	metrics := b.metrics
	b.mu.RUnlock()

	if metrics != nil {
		metrics.RecordEmit(event)
	}

	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		b.invoke(event, payload, sub.handler)
	}
}

// invoke runs one handler, converting a panic into a log entry.
func (b *Bus) invoke(event string, payload any, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			if b.metrics != nil {
				b.metrics.RecordHandlerPanic(event)
			}
			b.logger.Error(context.Background(), "event handler panicked",
				zap.String("event", event),
				zap.Any("panic", r))
		}
	}()
	handler(event, payload)
}

// HandlerCount returns the number of handlers registered for event.
func (b *Bus) HandlerCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event])
}
