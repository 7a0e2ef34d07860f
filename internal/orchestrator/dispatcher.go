package orchestrator

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultMaxHistorySize = 1000

// DispatchedEvent is a dispatcher-level record: an AgentEvent plus the id
// and timestamp the dispatcher itself stamps on arrival.
type DispatchedEvent struct {
	ID        string
	Event     AgentEvent
}

// HandlerFunc receives a dispatched event.
type HandlerFunc func(DispatchedEvent)

// TimeoutError is returned by WaitFor when no matching event arrives in
// time.
type TimeoutError struct {
	Type AgentEventType
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for event type %q", e.Type)
}

type registration struct {
	id      uint64
	handler HandlerFunc
	once    bool
}

// EventDispatcher is a typed pub/sub for agent lifecycle events, with a
// bounded history ring and a waitFor suspension primitive. Handlers run
// sequentially, in registration order, each isolated from the others'
// panics; global handlers run after type-specific ones.
type EventDispatcher struct {
	mu             sync.Mutex
	byType         map[AgentEventType][]*registration
	global         []*registration
	history        []DispatchedEvent
	maxHistory     int
	nextID         uint64
	logger         *log.Logger
}

// NewEventDispatcher builds a dispatcher with the default history bound.
func NewEventDispatcher(logger *log.Logger) *EventDispatcher {
	if logger == nil {
		logger = log.New(os.Stdout, "[DISPATCHER] ", log.LstdFlags)
	}
	return &EventDispatcher{
		byType:     make(map[AgentEventType][]*registration),
		maxHistory: defaultMaxHistorySize,
		logger:     logger,
	}
}

// unsubscribeFunc, returned by On/Once, detaches the handler.
type unsubscribeFunc func()

// On registers a handler for eventType, returning an unsubscribe function.
func (d *EventDispatcher) On(eventType AgentEventType, handler HandlerFunc) unsubscribeFunc {
	return d.register(eventType, handler, false)
}

// Once registers a handler that self-unsubscribes after its first
// invocation.
func (d *EventDispatcher) Once(eventType AgentEventType, handler HandlerFunc) unsubscribeFunc {
	return d.register(eventType, handler, true)
}

func (d *EventDispatcher) register(eventType AgentEventType, handler HandlerFunc, once bool) unsubscribeFunc {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	reg := &registration{id: d.nextID, handler: handler, once: once}
	d.byType[eventType] = append(d.byType[eventType], reg)

	return func() { d.unregister(eventType, reg.id) }
}

func (d *EventDispatcher) unregister(eventType AgentEventType, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byType[eventType] = removeByID(d.byType[eventType], id)
}

// OnGlobal registers a handler invoked for every event, after any
// type-specific handlers have run.
func (d *EventDispatcher) OnGlobal(handler HandlerFunc) unsubscribeFunc {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	reg := &registration{id: d.nextID, handler: handler}
	d.global = append(d.global, reg)
	id := reg.id
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.global = removeByID(d.global, id)
	}
}

// Off removes every handler for eventType.
func (d *EventDispatcher) Off(eventType AgentEventType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byType, eventType)
}

// RemoveAll is an alias for Off kept for readability at call sites that
// talk about history vs. handlers in the same breath.
func (d *EventDispatcher) RemoveAll(eventType AgentEventType) {
	d.Off(eventType)
}

func removeByID(regs []*registration, id uint64) []*registration {
	out := regs[:0:0]
	for _, r := range regs {
		if r.id != id {
			out = append(out, r)
		}
	}
	return out
}

// Dispatch delivers event to every matching handler, sequentially, in
// registration order, with per-handler panic isolation, then appends it to
// history.
func (d *EventDispatcher) Dispatch(event AgentEvent) DispatchedEvent {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	de := DispatchedEvent{ID: uuid.New().String(), Event: event}

	d.mu.Lock()
	typeRegs := append([]*registration(nil), d.byType[event.Type]...)
	globalRegs := append([]*registration(nil), d.global...)
	d.mu.Unlock()

	var firedOnce []uint64
	for _, r := range typeRegs {
		d.invoke(r, de)
		if r.once {
			firedOnce = append(firedOnce, r.id)
		}
	}
	for _, id := range firedOnce {
		d.unregister(event.Type, id)
	}

	for _, r := range globalRegs {
		d.invoke(r, de)
	}

	d.appendHistory(de)
	return de
}

func (d *EventDispatcher) invoke(r *registration, de DispatchedEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Printf("handler panic recovered: event=%s session=%s panic=%v", de.Event.Type, de.Event.SessionID, rec)
		}
	}()
	r.handler(de)
}

// DispatchBatch dispatches each event in order.
func (d *EventDispatcher) DispatchBatch(events []AgentEvent) {
	for _, e := range events {
		d.Dispatch(e)
	}
}

func (d *EventDispatcher) appendHistory(de DispatchedEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = append(d.history, de)
	if len(d.history) > d.maxHistory {
		d.history = d.history[len(d.history)-d.maxHistory:]
	}
}

// HistoryFilter narrows GetHistory results.
type HistoryFilter struct {
	Type      AgentEventType
	SessionID string
}

// GetHistory returns history entries matching filter (zero-value fields
// are wildcards), oldest first.
func (d *EventDispatcher) GetHistory(filter HistoryFilter) []DispatchedEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]DispatchedEvent, 0, len(d.history))
	for _, de := range d.history {
		if filter.Type != "" && de.Event.Type != filter.Type {
			continue
		}
		if filter.SessionID != "" && de.Event.SessionID != filter.SessionID {
			continue
		}
		out = append(out, de)
	}
	return out
}

// ClearHistory empties the history ring.
func (d *EventDispatcher) ClearHistory() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = nil
}

// WaitFor blocks until an event of eventType matching filter arrives, or
// timeout elapses. filter fields left at their zero value are wildcards.
func (d *EventDispatcher) WaitFor(eventType AgentEventType, filter HistoryFilter, timeout time.Duration) (DispatchedEvent, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ch := make(chan DispatchedEvent, 1)
	unsub := d.On(eventType, func(de DispatchedEvent) {
		if filter.SessionID != "" && de.Event.SessionID != filter.SessionID {
			return
		}
		select {
		case ch <- de:
		default:
		}
	})

	select {
	case de := <-ch:
		unsub()
		return de, nil
	case <-time.After(timeout):
		unsub()
		return DispatchedEvent{}, &TimeoutError{Type: eventType}
	}
}
