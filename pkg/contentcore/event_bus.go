package contentcore

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// EventType tags one phase of one CRUD operation.
type EventType string

// Lifecycle event types.
const (
	EventGetItemStart   EventType = "getItemStart"
	EventGetItemSuccess EventType = "getItemSuccess"
	EventGetItemError   EventType = "getItemError"

	EventBulkGetItemStart   EventType = "bulkGetItemStart"
	EventBulkGetItemSuccess EventType = "bulkGetItemSuccess"
	EventBulkGetItemError   EventType = "bulkGetItemError"

	EventCreateItemStart   EventType = "createItemStart"
	EventCreateItemSuccess EventType = "createItemSuccess"
	EventCreateItemError   EventType = "createItemError"

	EventUpdateItemStart   EventType = "updateItemStart"
	EventUpdateItemSuccess EventType = "updateItemSuccess"
	EventUpdateItemError   EventType = "updateItemError"

	EventDeleteItemStart   EventType = "deleteItemStart"
	EventDeleteItemSuccess EventType = "deleteItemSuccess"
	EventDeleteItemError   EventType = "deleteItemError"

	EventSearchItemStart   EventType = "searchItemStart"
	EventSearchItemSuccess EventType = "searchItemSuccess"
	EventSearchItemError   EventType = "searchItemError"
)

// Operation names used to build event types.
const (
	OpGet     = "get"
	OpBulkGet = "bulkGet"
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpSearch  = "search"
)

// Event phases.
const (
	PhaseStart   = "Start"
	PhaseSuccess = "Success"
	PhaseError   = "Error"
)

// NewEventType builds the event type for an operation and phase, e.g.
// ("get", "Start") -> "getItemStart".
func NewEventType(op, phase string) EventType {
	return EventType(op + "Item" + phase)
}

var eventTypeParts = func() map[EventType][2]string {
	parts := make(map[EventType][2]string)
	for _, op := range []string{OpGet, OpBulkGet, OpCreate, OpUpdate, OpDelete, OpSearch} {
		for _, phase := range []string{PhaseStart, PhaseSuccess, PhaseError} {
			parts[NewEventType(op, phase)] = [2]string{op, phase}
		}
	}
	return parts
}()

// Operation returns the operation part of a known event type.
func (t EventType) Operation() string {
	return eventTypeParts[t][0]
}

// Phase returns the phase part of a known event type.
func (t EventType) Phase() string {
	return eventTypeParts[t][1]
}

// Event describes one phase of one CRUD call. Events are not persisted and
// carry no acknowledgement.
type Event struct {
	Type        EventType
	ContentType string
	ContentID   string
	ContentIDs  []string
	Data        any
	Error       error
	Timestamp   time.Time
}

// Handler receives events synchronously on the emitting goroutine.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// EventBus fans events out to the handlers subscribed at emit time. There is
// no buffering and no replay for late subscribers.
type EventBus struct {
	mu     sync.RWMutex
	nextID uint64
	byType map[EventType][]subscription
	all    []subscription
	logger *slog.Logger
}

// NewEventBus creates an empty bus. A nil logger falls back to slog.Default.
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		byType: make(map[EventType][]subscription),
		logger: logger,
	}
}

// On subscribes handler to one event type and returns its unsubscribe func.
func (b *EventBus) On(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.byType[eventType] = append(b.byType[eventType], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byType[eventType] = without(b.byType[eventType], id)
		if len(b.byType[eventType]) == 0 {
			delete(b.byType, eventType)
		}
	}
}

// Subscribe registers handler for every event type.
func (b *EventBus) Subscribe(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = without(b.all, id)
	}
}

// Emit delivers the event to all current subscribers in subscription order.
func (b *EventBus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]subscription, 0, len(b.byType[event.Type])+len(b.all))
	subs = append(subs, b.byType[event.Type]...)
	subs = append(subs, b.all...)
	b.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })

	for _, sub := range subs {
		b.dispatch(sub.handler, event)
	}
}

// HandlerCount reports the number of handlers that would receive eventType.
func (b *EventBus) HandlerCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byType[eventType]) + len(b.all)
}

func (b *EventBus) dispatch(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				"event_type", string(event.Type),
				"content_type", event.ContentType,
				"content_id", event.ContentID,
				"panic", r)
		}
	}()
	handler(event)
}

func without(subs []subscription, id uint64) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
