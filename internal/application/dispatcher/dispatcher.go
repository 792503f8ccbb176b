package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/tutor-matching/internal/domain/event"
)

// Dispatcher fans relayed workflow events out to named subscribers
type Dispatcher interface {
	// SubscribeNamed registers handler under name for an event type, or for
	// every type with AllEvents. Subscribing an existing name replaces it.
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// Unsubscribe removes a handler by name
	Unsubscribe(eventType event.Type, name string)

	// Dispatch runs every matching handler, type-specific ones first.
	// All handlers run even when one fails; failures come back as a *DeliveryError.
	Dispatch(ctx context.Context, evt *event.Event) error

	// ListHandlers returns the subscriptions for an event type
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close rejects new dispatches and waits for running ones
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	closed   bool
	inflight sync.WaitGroup

	logger Logger
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{handlers: make(map[event.Type][]HandlerInfo)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info := HandlerInfo{Name: name, EventType: eventType, Handler: handler}
	subs := d.handlers[eventType]
	replaced := false
	for i := range subs {
		if subs[i].Name == name {
			subs[i] = info
			replaced = true
			break
		}
	}
	if !replaced {
		d.handlers[eventType] = append(subs, info)
	}

	d.info("Handler subscribed",
		"event_type", eventType,
		"handler_name", name,
		"replaced", replaced,
	)
}

func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.handlers[eventType]
	kept := subs[:0]
	for _, h := range subs {
		if h.Name != name {
			kept = append(kept, h)
		}
	}
	d.handlers[eventType] = kept
}

// route snapshots the handlers for an event and registers the dispatch as
// in flight, under the same lock Close takes.
func (d *eventDispatcher) route(eventType event.Type) ([]HandlerInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, fmt.Errorf("dispatcher is closed")
	}
	d.inflight.Add(1)

	specific := d.handlers[eventType]
	wildcard := d.handlers[AllEvents]
	out := make([]HandlerInfo, 0, len(specific)+len(wildcard))
	out = append(out, specific...)
	if eventType != AllEvents {
		out = append(out, wildcard...)
	}
	return out, nil
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	handlers, err := d.route(evt.Type)
	if err != nil {
		return err
	}
	defer d.inflight.Done()

	var failures map[string]error
	for _, h := range handlers {
		if err := d.invoke(ctx, evt, h); err != nil {
			if failures == nil {
				failures = make(map[string]error)
			}
			failures[h.Name] = err
			d.logError("Event handler failed",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"handler_name", h.Name,
				"error", err,
			)
		}
	}
	if failures != nil {
		return &DeliveryError{EventID: evt.ID, Failures: failures}
	}
	return nil
}

func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	subs := d.handlers[eventType]
	out := make([]HandlerInfo, len(subs))
	for i, h := range subs {
		out[i] = HandlerInfo{Name: h.Name, EventType: h.EventType}
	}
	return out
}

func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	d.mu.Unlock()

	d.inflight.Wait()
	d.info("Dispatcher closed")
	return nil
}

// invoke runs one handler, turning a panic into an error
func (d *eventDispatcher) invoke(ctx context.Context, evt *event.Event, h HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handler(ctx, evt)
}

func (d *eventDispatcher) info(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, kv...)
	}
}

func (d *eventDispatcher) logError(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, kv...)
	}
}
