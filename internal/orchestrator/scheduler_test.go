package orchestrator

import (
	"context"
	"errors"
	"testing"
)

type fakeAgentManager struct {
	sessions  []AgentSession
	spawnErr  error
	spawnFunc func(ctx context.Context, taskID string, opts SpawnOptions) (string, error)
	nextID    int
}

func (f *fakeAgentManager) SpawnAgent(ctx context.Context, taskID string, opts SpawnOptions) (string, error) {
	if f.spawnFunc != nil {
		return f.spawnFunc(ctx, taskID, opts)
	}
	if f.spawnErr != nil {
		return "", f.spawnErr
	}
	f.nextID++
	return "session-" + taskID, nil
}
func (f *fakeAgentManager) InjectMessage(string, string) error                { return nil }
func (f *fakeAgentManager) TerminateSession(string) error                     { return nil }
func (f *fakeAgentManager) GetActiveSessions() []AgentSession                 { return f.sessions }
func (f *fakeAgentManager) GetSession(id string) (AgentSession, bool)         { return AgentSession{}, false }
func (f *fakeAgentManager) OnEvent(eventType AgentEventType, h func(AgentEvent)) {}
func (f *fakeAgentManager) StopAcceptingSessions()                            {}

func TestDetermineModelPrefersExplicitOpusEstimate(t *testing.T) {
	if got := DetermineModel(&Task{EstSessionsOpus: 1}); got != ModelOpus {
		t.Fatalf("expected opus, got %s", got)
	}
}

func TestDetermineModelFallsBackToComplexity(t *testing.T) {
	if got := DetermineModel(&Task{Complexity: ComplexityComplex}); got != ModelOpus {
		t.Fatalf("expected opus for complex task with no explicit estimate, got %s", got)
	}
	if got := DetermineModel(&Task{Complexity: ComplexityLow}); got != ModelSonnetPool {
		t.Fatalf("expected sonnet default, got %s", got)
	}
}

func TestScheduleNextOnEmptyQueueIsIdle(t *testing.T) {
	s := NewScheduler(&fakeAgentManager{}, NewCapacityTracker(CapacityConfig{OpusLimit: 1, SonnetLimit: 2}, nil), NewTaskQueue(), nil)
	r := s.ScheduleNext(context.Background(), nil, nil)
	if r.Status != StatusIdle {
		t.Fatalf("expected idle, got %s", r.Status)
	}
}

func TestScheduleNextNoCapacityWhenBothFull(t *testing.T) {
	ct := NewCapacityTracker(CapacityConfig{OpusLimit: 1, SonnetLimit: 1}, nil)
	ct.ReserveCapacity(ModelOpus, "existing-opus")
	ct.ReserveCapacity(ModelSonnetPool, "existing-sonnet")

	q := NewTaskQueue()
	q.Enqueue(&Task{ID: "t1", Priority: 1})

	s := NewScheduler(&fakeAgentManager{}, ct, q, nil)
	r := s.ScheduleNext(context.Background(), nil, nil)
	if r.Status != StatusNoCapacity {
		t.Fatalf("expected no_capacity, got %s", r.Status)
	}
}

func TestScheduleNextSchedulesAndReservesAndRemoves(t *testing.T) {
	ct := NewCapacityTracker(CapacityConfig{OpusLimit: 1, SonnetLimit: 2}, nil)
	q := NewTaskQueue()
	q.Enqueue(&Task{ID: "t1", Priority: 1, EstSessionsSonnet: 1})

	am := &fakeAgentManager{}
	s := NewScheduler(am, ct, q, nil)
	r := s.ScheduleNext(context.Background(), nil, nil)

	if r.Status != StatusScheduled {
		t.Fatalf("expected scheduled, got %s (%v)", r.Status, r.Err)
	}
	if q.Has("t1") {
		t.Fatalf("expected scheduled task removed from queue")
	}
	if ct.CurrentCount(ModelSonnetPool) != 1 {
		t.Fatalf("expected capacity reserved for sonnet")
	}
}

func TestScheduleNextFilterRejectionSkipsWithoutRemoving(t *testing.T) {
	ct := NewCapacityTracker(CapacityConfig{OpusLimit: 1, SonnetLimit: 2}, nil)
	q := NewTaskQueue()
	q.Enqueue(&Task{ID: "t1", Priority: 1})

	s := NewScheduler(&fakeAgentManager{}, ct, q, nil)
	r := s.ScheduleNext(context.Background(), nil, func(*Task) bool { return false })

	if r.Status != StatusIdle {
		t.Fatalf("expected idle on filter rejection, got %s", r.Status)
	}
	if !q.Has("t1") {
		t.Fatalf("expected task to remain queued after filter rejection")
	}
}

func TestScheduleNextFilterPanicIsIsolated(t *testing.T) {
	ct := NewCapacityTracker(CapacityConfig{OpusLimit: 1, SonnetLimit: 2}, nil)
	q := NewTaskQueue()
	q.Enqueue(&Task{ID: "t1", Priority: 1})

	s := NewScheduler(&fakeAgentManager{}, ct, q, nil)
	r := s.ScheduleNext(context.Background(), nil, func(*Task) bool { panic("boom") })

	if r.Status != StatusIdle {
		t.Fatalf("expected idle on filter panic, got %s", r.Status)
	}
	if !q.Has("t1") {
		t.Fatalf("expected task to remain queued after filter panic")
	}
}

func TestScheduleNextSpawnErrorLeavesTaskQueuedAndNoReservation(t *testing.T) {
	ct := NewCapacityTracker(CapacityConfig{OpusLimit: 1, SonnetLimit: 2}, nil)
	q := NewTaskQueue()
	q.Enqueue(&Task{ID: "t1", Priority: 1})

	am := &fakeAgentManager{spawnErr: errors.New("boom")}
	s := NewScheduler(am, ct, q, nil)
	r := s.ScheduleNext(context.Background(), nil, nil)

	if r.Status != StatusError {
		t.Fatalf("expected error, got %s", r.Status)
	}
	if !q.Has("t1") {
		t.Fatalf("expected task to remain queued after spawn error")
	}
	if ct.CurrentCount(ModelOpus)+ct.CurrentCount(ModelSonnetPool) != 0 {
		t.Fatalf("expected no capacity reserved after spawn error")
	}
}

func TestScheduleAllDrainsQueueUntilNoCapacity(t *testing.T) {
	ct := NewCapacityTracker(CapacityConfig{OpusLimit: 1, SonnetLimit: 1}, nil)
	q := NewTaskQueue()
	q.Enqueue(&Task{ID: "t1", Priority: 5})
	q.Enqueue(&Task{ID: "t2", Priority: 4})
	q.Enqueue(&Task{ID: "t3", Priority: 3})

	s := NewScheduler(&fakeAgentManager{}, ct, q, nil)
	results := s.ScheduleAll(context.Background(), nil, nil)

	scheduled := 0
	for _, r := range results {
		if r.Status == StatusScheduled {
			scheduled++
		}
	}
	if scheduled != 2 {
		t.Fatalf("expected 2 scheduled tasks (opus+sonnet capacity), got %d", scheduled)
	}
	if results[len(results)-1].Status != StatusNoCapacity {
		t.Fatalf("expected final result no_capacity, got %s", results[len(results)-1].Status)
	}
}

func TestDowngradeToSonnetWhenOnlySonnetCapacityRemains(t *testing.T) {
	ct := NewCapacityTracker(CapacityConfig{OpusLimit: 1, SonnetLimit: 1}, nil)
	ct.ReserveCapacity(ModelOpus, "already-running")

	q := NewTaskQueue()
	q.Enqueue(&Task{ID: "t1", Priority: 1, EstSessionsOpus: 1})

	s := NewScheduler(&fakeAgentManager{}, ct, q, nil)
	r := s.ScheduleNext(context.Background(), nil, nil)

	if r.Status != StatusScheduled {
		t.Fatalf("expected scheduled via downgrade, got %s", r.Status)
	}
	if r.Tasks[0].Model != ModelSonnetPool {
		t.Fatalf("expected downgrade to sonnet, got %s", r.Tasks[0].Model)
	}
}
