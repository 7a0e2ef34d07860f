package orchestrator

import (
	"testing"
	"time"
)

func TestDispatchInvokesTypeThenGlobalHandlers(t *testing.T) {
	d := NewEventDispatcher(nil)
	var order []string

	d.On(EventCompletion, func(DispatchedEvent) { order = append(order, "type") })
	d.OnGlobal(func(DispatchedEvent) { order = append(order, "global") })

	d.Dispatch(AgentEvent{Type: EventCompletion, SessionID: "s1"})

	if len(order) != 2 || order[0] != "type" || order[1] != "global" {
		t.Fatalf("expected type handler before global, got %v", order)
	}
}

func TestOnceHandlerFiresOnlyOnce(t *testing.T) {
	d := NewEventDispatcher(nil)
	count := 0
	d.Once(EventError, func(DispatchedEvent) { count++ })

	d.Dispatch(AgentEvent{Type: EventError})
	d.Dispatch(AgentEvent{Type: EventError})

	if count != 1 {
		t.Fatalf("expected handler to fire exactly once, fired %d times", count)
	}
}

func TestPanicInHandlerDoesNotStopOthers(t *testing.T) {
	d := NewEventDispatcher(nil)
	ran := false

	d.On(EventToolCall, func(DispatchedEvent) { panic("boom") })
	d.On(EventToolCall, func(DispatchedEvent) { ran = true })

	d.Dispatch(AgentEvent{Type: EventToolCall})

	if !ran {
		t.Fatalf("expected second handler to run despite first handler's panic")
	}
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	d := NewEventDispatcher(nil)
	count := 0
	unsub := d.On(EventBlocker, func(DispatchedEvent) { count++ })

	d.Dispatch(AgentEvent{Type: EventBlocker})
	unsub()
	d.Dispatch(AgentEvent{Type: EventBlocker})

	if count != 1 {
		t.Fatalf("expected 1 delivery before unsubscribe, got %d", count)
	}
}

func TestHistoryBoundedAndFilterable(t *testing.T) {
	d := NewEventDispatcher(nil)
	d.maxHistory = 2

	d.Dispatch(AgentEvent{Type: EventQuestion, SessionID: "s1"})
	d.Dispatch(AgentEvent{Type: EventQuestion, SessionID: "s2"})
	d.Dispatch(AgentEvent{Type: EventCompletion, SessionID: "s3"})

	all := d.GetHistory(HistoryFilter{})
	if len(all) != 2 {
		t.Fatalf("expected history bounded to 2, got %d", len(all))
	}
	if all[0].Event.SessionID != "s2" {
		t.Fatalf("expected oldest entry evicted, got %s first", all[0].Event.SessionID)
	}

	filtered := d.GetHistory(HistoryFilter{Type: EventCompletion})
	if len(filtered) != 1 || filtered[0].Event.SessionID != "s3" {
		t.Fatalf("expected filter to isolate completion event")
	}
}

func TestClearHistoryEmpties(t *testing.T) {
	d := NewEventDispatcher(nil)
	d.Dispatch(AgentEvent{Type: EventQuestion})
	d.ClearHistory()
	if len(d.GetHistory(HistoryFilter{})) != 0 {
		t.Fatalf("expected empty history after clear")
	}
}

func TestWaitForReturnsMatchingEvent(t *testing.T) {
	d := NewEventDispatcher(nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		d.Dispatch(AgentEvent{Type: EventCompletion, SessionID: "target"})
	}()

	de, err := d.WaitFor(EventCompletion, HistoryFilter{SessionID: "target"}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if de.Event.SessionID != "target" {
		t.Fatalf("expected target session, got %s", de.Event.SessionID)
	}
}

func TestWaitForTimesOut(t *testing.T) {
	d := NewEventDispatcher(nil)
	_, err := d.WaitFor(EventCompletion, HistoryFilter{}, 20*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("expected *TimeoutError, got %T", err)
	}
}
