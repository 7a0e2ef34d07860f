// Package orchestrator implements the scheduling and agent-lifecycle engine:
// a priority task queue, per-model capacity tracking, an event dispatcher,
// durable orchestration state, safety gates (circuit breaker, spend/budget,
// productivity, approval), a scheduler, and the tick-driven main loop that
// wires all of it together.
package orchestrator

import (
	"fmt"
	"time"
)

// ModelClass is the coarse bucket capacity and pricing is keyed on.
type ModelClass string

const (
	ModelOpus       ModelClass = "opus"
	ModelSonnetPool ModelClass = "sonnet"
)

// NormalizeModel maps a raw model label (as reported by the agent manager,
// e.g. "haiku") onto the two capacity classes.
func NormalizeModel(raw string) ModelClass {
	switch raw {
	case "opus":
		return ModelOpus
	default:
		return ModelSonnetPool
	}
}

// Complexity classifies a task's estimated difficulty.
type Complexity string

const (
	ComplexityLow      Complexity = "low"
	ComplexityMedium   Complexity = "medium"
	ComplexityHigh     Complexity = "high"
	ComplexityComplex  Complexity = "complex"
	ComplexityUnset    Complexity = ""
)

// TaskStatus is the lifecycle status of a Task as recorded by the task repository.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskComplete   TaskStatus = "complete"
	TaskFailed     TaskStatus = "failed"
)

// Task is a unit of work the scheduler may assign to an agent session.
type Task struct {
	ID                string
	ProjectID         string
	Title             string
	Description       string
	Priority          int
	Complexity        Complexity
	EstSessionsOpus   int
	EstSessionsSonnet int
	Status            TaskStatus
	PriorityConfirmed bool
	Tags              []string
	CreatedAt         time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
}

// RequiresApproval reports whether this task lacks the priority-confirmed
// signal the approval manager relies on to bypass its gate.
func (t *Task) RequiresApproval() bool {
	return !t.PriorityConfirmed
}

// QueuedTask wraps a Task with queue bookkeeping.
type QueuedTask struct {
	Task        *Task
	EnqueuedAt  time.Time
}

// EffectivePriority is priority boosted by 0.1 per hour of queue age, to
// keep older low-priority work from starving behind a stream of fresh
// high-priority work.
func (q *QueuedTask) EffectivePriority(now time.Time) float64 {
	hours := now.Sub(q.EnqueuedAt).Hours()
	return float64(q.Task.Priority) + hours*0.1
}

// AgentStatus is the lifecycle status of a running agent session.
type AgentStatus string

const (
	AgentRunning          AgentStatus = "running"
	AgentBlocked          AgentStatus = "blocked"
	AgentWaitingApproval  AgentStatus = "waiting_approval"
	AgentComplete         AgentStatus = "complete"
	AgentFailed           AgentStatus = "failed"
)

// AgentState is the orchestrator's record of one active agent session.
type AgentState struct {
	SessionID   string
	TaskID      string
	Model       ModelClass
	StartedAt   time.Time
	Status      AgentStatus
	TokensUsed  int64
	LastEventAt *time.Time
}

// Clone returns a defensive copy safe to hand to callers outside the lock.
func (a *AgentState) Clone() *AgentState {
	cp := *a
	if a.LastEventAt != nil {
		t := *a.LastEventAt
		cp.LastEventAt = &t
	}
	return &cp
}

// SpendRecord is one completed (or failed) session's cost accounting.
type SpendRecord struct {
	SessionID    string
	TaskID       string
	Model        ModelClass
	CostUSD      float64
	InputTokens  int64
	OutputTokens int64
	Timestamp    time.Time
}

// CompletionRecord feeds the productivity monitor's sliding window.
type CompletionRecord struct {
	SessionID  string
	TaskID     string
	Model      ModelClass
	Success    bool
	DurationMs int64
	TokensUsed int64
	CostUSD    float64
	Timestamp  time.Time
}

// ScheduleStatus is the outcome of one scheduleNext attempt.
type ScheduleStatus string

const (
	StatusIdle       ScheduleStatus = "idle"
	StatusScheduled  ScheduleStatus = "scheduled"
	StatusNoCapacity ScheduleStatus = "no_capacity"
	StatusError      ScheduleStatus = "error"
)

// ScheduledAssignment records one spawned task/session/model triple.
type ScheduledAssignment struct {
	TaskID    string
	SessionID string
	Model     ModelClass
}

// ScheduleResult is returned by Scheduler.ScheduleNext.
type ScheduleResult struct {
	Status ScheduleStatus
	Tasks  []ScheduledAssignment
	Err    error
}

// ErrCapacityExhausted is a sentinel describing an unschedulable tick.
var ErrCapacityExhausted = fmt.Errorf("no model class has free capacity")
