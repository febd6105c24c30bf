package event_bus

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

type EventType string

// Event carries an untyped payload together with the publisher's context.
type Event struct {
	ctx       context.Context
	Type      EventType
	Timestamp time.Time
	Data      any
}

func NewEvent(ctx context.Context, eventType EventType, data any) Event {
	if ctx == nil {
		ctx = context.Background()
	}
	return Event{ctx: ctx, Type: eventType, Timestamp: time.Now(), Data: data}
}

func (e Event) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// EventT is what SubscribeTyped handlers receive.
type EventT[T any] struct {
	Event
	Data T
}

type handlerFunc func(Event) error

// EventBus delivers events synchronously, handlers of one type run in subscription order.
type EventBus struct {
	mu     sync.RWMutex
	order  map[EventType][]uint64
	byId   map[uint64]handlerFunc
	lastId atomic.Uint64
}

func NewEventBus() *EventBus {
	return &EventBus{
		order: make(map[EventType][]uint64),
		byId:  make(map[uint64]handlerFunc),
	}
}

// Subscribe registers h and returns a function removing it again. Calling it twice is a no-op.
func (eb *EventBus) Subscribe(eventType EventType, h func(Event) error) (unsubscribe func()) {
	id := eb.lastId.Add(1)

	eb.mu.Lock()
	eb.byId[id] = h
	eb.order[eventType] = append(eb.order[eventType], id)
	eb.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			eb.mu.Lock()
			defer eb.mu.Unlock()
			delete(eb.byId, id)
			ids := slices.DeleteFunc(eb.order[eventType], func(other uint64) bool { return other == id })
			if len(ids) == 0 {
				delete(eb.order, eventType)
				return
			}
			eb.order[eventType] = ids
		})
	}
}

// SubscribeTyped registers a handler for payloads of type T, other payloads are skipped.
func SubscribeTyped[T any](eb *EventBus, eventType EventType, h func(EventT[T]) error) (unsubscribe func()) {
	return eb.Subscribe(eventType, func(e Event) error {
		payload, ok := e.Data.(T)
		if !ok {
			log.Debugf("EventBus: skipping %s, payload is %T", eventType, e.Data)
			return nil
		}
		return h(EventT[T]{Event: e, Data: payload})
	})
}

// Publish calls every handler of e.Type, even after one of them failed or panicked.
// The failures are joined into the returned error.
func (eb *EventBus) Publish(e Event) error {
	ctx := e.Context()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("event %s not published: %w", e.Type, err)
	}

	eb.mu.RLock()
	handlers := make([]handlerFunc, 0, len(eb.order[e.Type]))
	for _, id := range eb.order[e.Type] {
		handlers = append(handlers, eb.byId[id])
	}
	eb.mu.RUnlock()

	var errs []error
	for i, h := range handlers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("stopped after %d of %d handlers: %w", i, len(handlers), err))
			break
		}
		if err := safeCall(h, e); err != nil {
			log.Errorf("EventBus: handler for %s failed: %v", e.Type, err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("event %s: %w", e.Type, err)
	}
	return nil
}

func safeCall(h handlerFunc, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(e)
}
