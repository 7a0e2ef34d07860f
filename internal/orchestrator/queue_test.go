package orchestrator

import (
	"testing"
	"time"
)

func TestQueueFIFOOnEqualPriority(t *testing.T) {
	q := NewTaskQueue()
	a := &Task{ID: "A", Priority: 5}
	q.Enqueue(a)

	b := &Task{ID: "B", Priority: 5}
	q.items["B"] = &QueuedTask{Task: b, EnqueuedAt: time.Now().Add(time.Hour)}

	sorted := q.GetAllSorted()
	if sorted[0].ID != "A" {
		t.Fatalf("expected A first (older), got %s", sorted[0].ID)
	}
}

func TestQueueAgeBoostDoesNotOvercomeFullPriorityGap(t *testing.T) {
	q := NewTaskQueue()
	a := &Task{ID: "A", Priority: 4}
	q.items["A"] = &QueuedTask{Task: a, EnqueuedAt: time.Now().Add(-time.Hour)}

	b := &Task{ID: "B", Priority: 5}
	q.items["B"] = &QueuedTask{Task: b, EnqueuedAt: time.Now()}

	sorted := q.GetAllSorted()
	if sorted[0].ID != "B" {
		t.Fatalf("expected B first (4 + 0.1 < 5), got %s", sorted[0].ID)
	}
}

func TestQueueEnqueuePreservesEnqueuedAt(t *testing.T) {
	q := NewTaskQueue()
	q.Enqueue(&Task{ID: "A", Priority: 1, Title: "first"})
	originalAt := q.items["A"].EnqueuedAt

	q.Enqueue(&Task{ID: "A", Priority: 9, Title: "second"})
	if q.items["A"].EnqueuedAt != originalAt {
		t.Fatalf("re-enqueue must preserve EnqueuedAt")
	}
	if q.items["A"].Task.Title != "second" {
		t.Fatalf("re-enqueue must overwrite task fields")
	}
}

func TestQueueRemoveAbsentIsNoop(t *testing.T) {
	q := NewTaskQueue()
	q.Remove("nope")
	if q.Size() != 0 {
		t.Fatalf("expected empty queue")
	}
}

func TestQueueDequeueOrderAndSize(t *testing.T) {
	q := NewTaskQueue()
	q.Enqueue(&Task{ID: "low", Priority: 1})
	q.Enqueue(&Task{ID: "high", Priority: 9})

	if got := q.Dequeue(); got.ID != "high" {
		t.Fatalf("expected high first, got %s", got.ID)
	}
	if q.Size() != 1 {
		t.Fatalf("expected size 1 after one dequeue, got %d", q.Size())
	}
}

func TestGetNextForModelPrefersMatchingThenFallsBack(t *testing.T) {
	q := NewTaskQueue()
	q.Enqueue(&Task{ID: "sonnet-task", Priority: 5, EstSessionsSonnet: 1})
	q.Enqueue(&Task{ID: "opus-task", Priority: 1, EstSessionsOpus: 1})

	if got := q.GetNextForModel(ModelOpus); got.ID != "opus-task" {
		t.Fatalf("expected opus-task preferred for Opus, got %s", got.ID)
	}

	q2 := NewTaskQueue()
	q2.Enqueue(&Task{ID: "only-sonnet", Priority: 1, EstSessionsSonnet: 1})
	if got := q2.GetNextForModel(ModelOpus); got.ID != "only-sonnet" {
		t.Fatalf("expected fallback to overall top task, got %s", got.ID)
	}
}

func TestQueueSizeTracksInsertsAndRemoves(t *testing.T) {
	q := NewTaskQueue()
	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		q.Enqueue(&Task{ID: id, Priority: 1})
	}
	q.Remove("b")
	if q.Size() != 2 {
		t.Fatalf("expected size 2, got %d", q.Size())
	}
	if q.Has("b") {
		t.Fatalf("expected b removed")
	}
}
