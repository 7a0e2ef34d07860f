package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestLoop(t *testing.T, am AgentManager, q *TaskQueue) *MainLoop {
	t.Helper()
	ct := NewCapacityTracker(CapacityConfig{OpusLimit: 1, SonnetLimit: 2}, nil)
	sm := NewStateManager(filepath.Join(t.TempDir(), "state.json"), nil)
	d := NewEventDispatcher(nil)
	breaker := NewCircuitBreaker(BreakerConfig{FailureThreshold: 5, ResetTimeout: time.Hour}, nil)
	spend := NewSpendMonitor(BudgetConfig{}, nil)
	productivity := NewProductivityMonitor(nil)
	scheduler := NewScheduler(am, ct, q, nil)

	cfg := LoopConfig{PollIntervalMs: 10, GracefulShutdownTimeoutMs: 200}
	return NewMainLoop(cfg, scheduler, am, ct, sm, d, breaker, spend, productivity, nil, nil, nil)
}

// eventCapturingAgentManager records OnEvent registrations so tests can
// confirm MainLoop.Start actually subscribes the dispatcher, then drive a
// synthesized event through exactly the path a real AgentManager would.
type eventCapturingAgentManager struct {
	fakeAgentManager
	handlers map[AgentEventType][]func(AgentEvent)
}

func (f *eventCapturingAgentManager) OnEvent(eventType AgentEventType, h func(AgentEvent)) {
	if f.handlers == nil {
		f.handlers = make(map[AgentEventType][]func(AgentEvent))
	}
	f.handlers[eventType] = append(f.handlers[eventType], h)
}

func (f *eventCapturingAgentManager) emit(evt AgentEvent) {
	for _, h := range f.handlers[evt.Type] {
		h(evt)
	}
}

func TestMainLoopForwardsAgentManagerEventsToDispatcher(t *testing.T) {
	am := &eventCapturingAgentManager{}
	l := newTestLoop(t, am, NewTaskQueue())

	l.Start(context.Background())
	defer l.Stop()

	received := make(chan DispatchedEvent, 1)
	l.dispatcher.On(EventCompletion, func(de DispatchedEvent) { received <- de })

	am.emit(AgentEvent{Type: EventCompletion, SessionID: "s1", Model: ModelSonnetPool})

	select {
	case de := <-received:
		if de.Event.SessionID != "s1" {
			t.Fatalf("unexpected forwarded event: %+v", de.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("expected agent manager event to reach the dispatcher via OnEvent wiring")
	}
}

func TestMainLoopStartTransitionsToRunning(t *testing.T) {
	l := newTestLoop(t, &fakeAgentManager{}, NewTaskQueue())
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.GetState() != LoopRunning {
		t.Fatalf("expected running, got %s", l.GetState())
	}
	l.Stop()
}

func TestMainLoopStartTwiceRejected(t *testing.T) {
	l := newTestLoop(t, &fakeAgentManager{}, NewTaskQueue())
	l.Start(context.Background())
	defer l.Stop()

	if err := l.Start(context.Background()); err == nil {
		t.Fatalf("expected error starting an already-running loop")
	}
}

func TestMainLoopPauseResumeTogglesState(t *testing.T) {
	l := newTestLoop(t, &fakeAgentManager{}, NewTaskQueue())
	l.Start(context.Background())
	defer l.Stop()

	l.Pause()
	if !l.IsPaused() {
		t.Fatalf("expected paused")
	}
	l.Resume()
	if !l.IsRunning() {
		t.Fatalf("expected running after resume")
	}
}

func TestMainLoopTicksScheduleQueuedTasks(t *testing.T) {
	q := NewTaskQueue()
	q.Enqueue(&Task{ID: "t1", Priority: 5})
	am := &fakeAgentManager{}
	l := newTestLoop(t, am, q)

	l.Start(context.Background())
	defer l.Stop()

	deadline := time.After(time.Second)
	for q.Has("t1") {
		select {
		case <-deadline:
			t.Fatalf("expected task to be scheduled within deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestMainLoopTickRecordsActiveAgentForSpawnedTask(t *testing.T) {
	q := NewTaskQueue()
	q.Enqueue(&Task{ID: "t1", Priority: 5})
	am := &fakeAgentManager{}
	l := newTestLoop(t, am, q)

	l.Start(context.Background())
	defer l.Stop()

	deadline := time.After(time.Second)
	for {
		if len(l.stateManager.Snapshot().ActiveAgents) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected spawned task to show up as an active agent within deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestMainLoopHalfOpenProbeFiresAfterResetTimeout(t *testing.T) {
	q := NewTaskQueue()
	am := &fakeAgentManager{}
	ct := NewCapacityTracker(CapacityConfig{OpusLimit: 1, SonnetLimit: 2}, nil)
	sm := NewStateManager(filepath.Join(t.TempDir(), "state.json"), nil)
	d := NewEventDispatcher(nil)
	breaker := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Millisecond}, nil)
	spend := NewSpendMonitor(BudgetConfig{}, nil)
	productivity := NewProductivityMonitor(nil)
	scheduler := NewScheduler(am, ct, q, nil)

	breaker.RecordFailure()
	if breaker.State() != BreakerOpen {
		t.Fatalf("expected breaker to trip open")
	}
	time.Sleep(2 * time.Millisecond)

	cfg := LoopConfig{PollIntervalMs: 10, GracefulShutdownTimeoutMs: 200}
	l := NewMainLoop(cfg, scheduler, am, ct, sm, d, breaker, spend, productivity, nil, nil, nil)

	q.Enqueue(&Task{ID: "probe", Priority: 5})
	l.Start(context.Background())
	defer l.Stop()

	deadline := time.After(time.Second)
	for q.Has("probe") {
		select {
		case <-deadline:
			t.Fatalf("expected half-open probe task to be scheduled within deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if breaker.State() != BreakerHalfOpen {
		t.Fatalf("expected breaker to be half_open after probe spawn, got %s", breaker.State())
	}
}

func TestMainLoopStopIsIdempotent(t *testing.T) {
	l := newTestLoop(t, &fakeAgentManager{}, NewTaskQueue())
	l.Start(context.Background())

	if err := l.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Stop(); err != nil {
		t.Fatalf("expected second stop to be a no-op, got error: %v", err)
	}
	if l.GetState() != LoopStopped {
		t.Fatalf("expected stopped, got %s", l.GetState())
	}
}
