package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestCompletionHandlerReleasesCapacityAndRecordsSpend(t *testing.T) {
	ct := NewCapacityTracker(CapacityConfig{OpusLimit: 1, SonnetLimit: 2}, nil)
	ct.ReserveCapacity(ModelOpus, "s1")

	sm := NewStateManager(filepath.Join(t.TempDir(), "state.json"), nil)
	sm.Load()
	sm.SetActiveAgents([]*AgentState{{SessionID: "s1", Model: ModelOpus, Status: AgentRunning}})

	breaker := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}, nil)
	spend := NewSpendMonitor(BudgetConfig{}, nil)
	productivity := NewProductivityMonitor(nil)

	d := NewEventDispatcher(nil)
	usage := &fakeUsageLogRepository{}
	WireEventHandlers(d, ct, sm, breaker, spend, productivity, usage, nil)

	d.Dispatch(AgentEvent{Type: EventCompletion, SessionID: "s1", Model: ModelOpus, Data: CompletionData{CostUSD: 1.5}})

	if len(usage.entries) != 1 || usage.entries[0].EventType != UsageCompletion {
		t.Fatalf("expected one completion usage log entry, got %+v", usage.entries)
	}

	if ct.CurrentCount(ModelOpus) != 0 {
		t.Fatalf("expected capacity released after completion")
	}
	if spend.SpentToday(time.Now()) != 1.5 {
		t.Fatalf("expected spend recorded")
	}
	snap := sm.Snapshot()
	if len(snap.ActiveAgents) != 0 {
		t.Fatalf("expected agent removed from state, got %+v", snap.ActiveAgents)
	}
}

func TestErrorHandlerTripsBreakerAndSkipsSuccessRecording(t *testing.T) {
	ct := NewCapacityTracker(CapacityConfig{OpusLimit: 1, SonnetLimit: 2}, nil)
	ct.ReserveCapacity(ModelSonnetPool, "s2")

	sm := NewStateManager(filepath.Join(t.TempDir(), "state.json"), nil)
	sm.Load()

	breaker := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}, nil)
	productivity := NewProductivityMonitor(nil)

	d := NewEventDispatcher(nil)
	usage := &fakeUsageLogRepository{}
	WireEventHandlers(d, ct, sm, breaker, nil, productivity, usage, nil)

	d.Dispatch(AgentEvent{Type: EventError, SessionID: "s2", Model: ModelSonnetPool})

	if len(usage.entries) != 1 || usage.entries[0].EventType != UsageError {
		t.Fatalf("expected one error usage log entry, got %+v", usage.entries)
	}

	if ct.CurrentCount(ModelSonnetPool) != 0 {
		t.Fatalf("expected capacity released after error")
	}
	if breaker.State() != BreakerOpen {
		t.Fatalf("expected breaker to trip open after recorded failure")
	}

	snap := productivity.Snapshot(time.Now())
	if snap.FailureCount != 1 || snap.SuccessCount != 0 {
		t.Fatalf("expected one failure recorded, got %+v", snap)
	}
}

func TestSessionEndEmptySessionIDIsSafeNoop(t *testing.T) {
	ct := NewCapacityTracker(CapacityConfig{OpusLimit: 1, SonnetLimit: 2}, nil)
	sm := NewStateManager(filepath.Join(t.TempDir(), "state.json"), nil)
	sm.Load()

	d := NewEventDispatcher(nil)
	WireEventHandlers(d, ct, sm, nil, nil, nil, nil, nil)

	d.Dispatch(AgentEvent{Type: EventCompletion, SessionID: ""})
}

type fakeUsageLogRepository struct {
	mu      sync.Mutex
	entries []UsageLogEntry
}

func (f *fakeUsageLogRepository) Create(ctx context.Context, entry UsageLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}
