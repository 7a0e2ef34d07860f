package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
)

// SpawnFunc overrides how the scheduler spawns a chosen task, defaulting to
// agentManager.SpawnAgent. Tests substitute a fake to avoid a real
// AgentManager.
type SpawnFunc func(ctx context.Context, task *Task, model ModelClass) (sessionID string, err error)

// FilterFunc vets a candidate task immediately before it is spawned. A
// false return, or a panic, skips the task for this attempt without
// removing it from the queue.
type FilterFunc func(task *Task) bool

// SchedulerStats is a snapshot for observability/status endpoints.
type SchedulerStats struct {
	QueueSize int
	Capacity  map[ModelClass]CapacityStats
}

// Scheduler matches queued tasks to model classes with free capacity and
// drives the agent manager to spawn them.
type Scheduler struct {
	agentManager AgentManager
	capacity     *CapacityTracker
	queue        *TaskQueue
	logger       *log.Logger
}

// NewScheduler builds a scheduler over the given collaborators.
func NewScheduler(agentManager AgentManager, capacity *CapacityTracker, queue *TaskQueue, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(os.Stdout, "[SCHEDULER] ", log.LstdFlags)
	}
	return &Scheduler{agentManager: agentManager, capacity: capacity, queue: queue, logger: logger}
}

// AddTask enqueues a task.
func (s *Scheduler) AddTask(task *Task) { s.queue.Enqueue(task) }

// RemoveTask drops a task from the queue without scheduling it.
func (s *Scheduler) RemoveTask(taskID string) { s.queue.Remove(taskID) }

// ReleaseCapacity frees a reserved slot, normally called from the
// completion/error event wiring once a session ends.
func (s *Scheduler) ReleaseCapacity(m ModelClass, sessionID string) {
	s.capacity.ReleaseCapacity(m, sessionID)
}

// SyncCapacity reconciles tracked reservations against the agent manager's
// live session list, used on startup.
func (s *Scheduler) SyncCapacity() {
	s.capacity.SyncWith(s.agentManager.GetActiveSessions())
}

// CanSchedule reports whether either model class currently has capacity.
func (s *Scheduler) CanSchedule() bool {
	return s.capacity.HasCapacity(ModelOpus) || s.capacity.HasCapacity(ModelSonnetPool)
}

// GetStats returns a point-in-time snapshot.
func (s *Scheduler) GetStats() SchedulerStats {
	return SchedulerStats{QueueSize: s.queue.Size(), Capacity: s.capacity.Stats()}
}

// DetermineModel picks the model class a task should run under, from its
// explicit session estimates, falling back to complexity, and finally
// defaulting to the sonnet pool.
func DetermineModel(task *Task) ModelClass {
	switch {
	case task.EstSessionsOpus > 0:
		return ModelOpus
	case task.EstSessionsSonnet > 0:
		return ModelSonnetPool
	case task.Complexity == ComplexityHigh || task.Complexity == ComplexityComplex:
		return ModelOpus
	default:
		return ModelSonnetPool
	}
}

// ScheduleNext attempts to schedule exactly one task. spawnCb and
// filterCb default to the agent manager's SpawnAgent and an always-true
// filter, respectively, when nil.
func (s *Scheduler) ScheduleNext(ctx context.Context, spawnCb SpawnFunc, filterCb FilterFunc) ScheduleResult {
	if s.queue.IsEmpty() {
		return ScheduleResult{Status: StatusIdle}
	}

	opusFree := s.capacity.HasCapacity(ModelOpus)
	sonnetFree := s.capacity.HasCapacity(ModelSonnetPool)
	if !opusFree && !sonnetFree {
		return ScheduleResult{Status: StatusNoCapacity}
	}

	task, model := s.pickCandidate(opusFree, sonnetFree)
	if task == nil {
		return ScheduleResult{Status: StatusNoCapacity}
	}

	if filterCb != nil {
		passed, panicked := s.runFilter(filterCb, task)
		if panicked {
			s.logger.Printf("filter callback panicked for task=%s, skipping this attempt", task.ID)
			return ScheduleResult{Status: StatusIdle}
		}
		if !passed {
			return ScheduleResult{Status: StatusIdle}
		}
	}

	// Re-verify capacity: state may have shifted between the initial check
	// and now (a concurrent completion/reserve), so pick again defensively.
	if !s.capacity.HasCapacity(model) {
		alt := otherModel(model)
		if !s.capacity.HasCapacity(alt) {
			return ScheduleResult{Status: StatusNoCapacity}
		}
		model = alt
	}

	if spawnCb == nil {
		spawnCb = s.defaultSpawn
	}

	sessionID, err := spawnCb(ctx, task, model)
	if err != nil {
		s.logger.Printf("spawn failed for task=%s model=%s: %v", task.ID, model, err)
		return ScheduleResult{Status: StatusError, Err: fmt.Errorf("spawn task %s: %w", task.ID, err)}
	}

	s.capacity.ReserveCapacity(model, sessionID)
	s.queue.Remove(task.ID)

	return ScheduleResult{
		Status: StatusScheduled,
		Tasks:  []ScheduledAssignment{{TaskID: task.ID, SessionID: sessionID, Model: model}},
	}
}

func (s *Scheduler) runFilter(filterCb FilterFunc, task *Task) (passed bool, panicked bool) {
	defer func() {
		if recover() != nil {
			panicked = true
		}
	}()
	return filterCb(task), false
}

// pickCandidate implements step 3 of scheduleNext: prefer an
// Opus-capable candidate when Opus has room, but hand it to Sonnet instead
// if it doesn't actually need Opus and Sonnet has room; otherwise fall
// back to whichever class has capacity, downgrading an Opus-preferring
// task to Sonnet if that is all that's free.
func (s *Scheduler) pickCandidate(opusFree, sonnetFree bool) (*Task, ModelClass) {
	var candidate *Task
	var model ModelClass

	if opusFree {
		candidate = s.queue.GetNextForModel(ModelOpus)
		if candidate != nil {
			model = ModelOpus
			if DetermineModel(candidate) != ModelOpus && sonnetFree {
				if alt := s.queue.GetNextForModel(ModelSonnetPool); alt != nil {
					candidate, model = alt, ModelSonnetPool
				}
			}
		}
	}

	if candidate == nil && sonnetFree {
		candidate = s.queue.GetNextForModel(ModelSonnetPool)
		model = ModelSonnetPool
	}

	if candidate == nil {
		return nil, ""
	}

	if model == ModelOpus && !opusFree {
		model = ModelSonnetPool
	}

	return candidate, model
}

func otherModel(m ModelClass) ModelClass {
	if m == ModelOpus {
		return ModelSonnetPool
	}
	return ModelOpus
}

func (s *Scheduler) defaultSpawn(ctx context.Context, task *Task, model ModelClass) (string, error) {
	return s.agentManager.SpawnAgent(ctx, task.ID, SpawnOptions{Model: model, ProjectPath: task.ProjectID})
}

// ScheduleAll repeats ScheduleNext until it returns idle, no_capacity, or
// error, collecting every result along the way, including the final
// non-scheduled one that ended the run. This is
// the unit the MainLoop's tick drives.
func (s *Scheduler) ScheduleAll(ctx context.Context, spawnCb SpawnFunc, filterCb FilterFunc) []ScheduleResult {
	var results []ScheduleResult
	for {
		r := s.ScheduleNext(ctx, spawnCb, filterCb)
		results = append(results, r)
		if r.Status != StatusScheduled {
			break
		}
	}
	return results
}
