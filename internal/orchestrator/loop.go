package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// LoopState is one of the MainLoop's lifecycle states.
type LoopState string

const (
	LoopStopped  LoopState = "stopped"
	LoopStarting LoopState = "starting"
	LoopRunning  LoopState = "running"
	LoopPaused   LoopState = "paused"
	LoopStopping LoopState = "stopping"
)

const (
	defaultPollIntervalMs            = 2000
	defaultGracefulShutdownTimeoutMs = 30000
)

// LoopConfig mirrors the MainLoop configuration contract.
type LoopConfig struct {
	PollIntervalMs            int    `yaml:"poll_interval_ms"`
	GracefulShutdownTimeoutMs int    `yaml:"graceful_shutdown_timeout_ms"`
	StateFilePath             string `yaml:"state_file_path"`
	EnableTaskApproval        bool   `yaml:"enable_task_approval"`
}

// LoopConfigFromEnv reads POLL_INTERVAL_MS / GRACEFUL_SHUTDOWN_TIMEOUT_MS /
// STATE_FILE_PATH.
func LoopConfigFromEnv() LoopConfig {
	return LoopConfig{
		PollIntervalMs:            envInt("POLL_INTERVAL_MS", defaultPollIntervalMs),
		GracefulShutdownTimeoutMs: envInt("GRACEFUL_SHUTDOWN_TIMEOUT_MS", defaultGracefulShutdownTimeoutMs),
		StateFilePath:             stateFilePathFromEnv(),
	}
}

// LoopStats is returned by GetStats.
type LoopStats struct {
	State     LoopState
	Scheduler SchedulerStats
	TickCount int64
}

// MainLoop is the tick-driven driver: every PollIntervalMs it composes a
// task filter from the safety gates and asks the Scheduler to drain as
// much of the queue as capacity allows.
type MainLoop struct {
	cfg LoopConfig

	scheduler    *Scheduler
	agentManager AgentManager
	capacity     *CapacityTracker
	stateManager *StateManager
	dispatcher   *EventDispatcher
	breaker      *CircuitBreaker
	spend        *SpendMonitor
	productivity *ProductivityMonitor
	approval     *TaskApprovalManager
	usageLog     UsageLogRepository

	logger *log.Logger

	mu        sync.Mutex
	state     LoopState
	tickCount int64

	cancel   context.CancelFunc
	done     chan struct{}
	tickLock sync.Mutex
}

// NewMainLoop wires every collaborator into a MainLoop. approval may be nil
// when cfg.EnableTaskApproval is false; usageLog may be nil, in which case
// completion/error events simply skip cost-accounting persistence.
func NewMainLoop(cfg LoopConfig, scheduler *Scheduler, agentManager AgentManager, capacity *CapacityTracker,
	stateManager *StateManager, dispatcher *EventDispatcher, breaker *CircuitBreaker, spend *SpendMonitor,
	productivity *ProductivityMonitor, approval *TaskApprovalManager, usageLog UsageLogRepository, logger *log.Logger) *MainLoop {

	if cfg.PollIntervalMs <= 0 {
		cfg.PollIntervalMs = defaultPollIntervalMs
	}
	if cfg.GracefulShutdownTimeoutMs <= 0 {
		cfg.GracefulShutdownTimeoutMs = defaultGracefulShutdownTimeoutMs
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[MAINLOOP] ", log.LstdFlags)
	}

	return &MainLoop{
		cfg:          cfg,
		scheduler:    scheduler,
		agentManager: agentManager,
		capacity:     capacity,
		stateManager: stateManager,
		dispatcher:   dispatcher,
		breaker:      breaker,
		spend:        spend,
		productivity: productivity,
		approval:     approval,
		usageLog:     usageLog,
		logger:       logger,
		state:        LoopStopped,
	}
}

// GetState returns the current lifecycle state.
func (l *MainLoop) GetState() LoopState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// IsRunning reports whether the loop is actively ticking (Running, not
// Paused).
func (l *MainLoop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == LoopRunning
}

// IsPaused reports whether the loop is started but paused.
func (l *MainLoop) IsPaused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == LoopPaused
}

// GetStats returns a snapshot for status endpoints.
func (l *MainLoop) GetStats() LoopStats {
	l.mu.Lock()
	tc := l.tickCount
	state := l.state
	l.mu.Unlock()
	return LoopStats{State: state, Scheduler: l.scheduler.GetStats(), TickCount: tc}
}

// Start transitions Stopped -> Starting -> Running, reconciles state from
// disk, wires the completion/error handlers, and schedules the first
// tick. Calling Start in any state other than Stopped returns an error.
func (l *MainLoop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state != LoopStopped {
		l.mu.Unlock()
		return fmt.Errorf("cannot start loop in state %s", l.state)
	}
	l.state = LoopStarting
	l.mu.Unlock()

	if _, err := l.stateManager.Load(); err != nil {
		l.mu.Lock()
		l.state = LoopStopped
		l.mu.Unlock()
		return fmt.Errorf("load state: %w", err)
	}
	l.scheduler.SyncCapacity()

	WireEventHandlers(l.dispatcher, l.capacity, l.stateManager, l.breaker, l.spend, l.productivity, l.usageLog, l.logger)

	// The agent manager only knows how to synthesize raw completion/error
	// events; nothing consumes them until they are forwarded into the
	// dispatcher the handlers above were just wired onto.
	l.agentManager.OnEvent(EventCompletion, func(evt AgentEvent) { l.dispatcher.Dispatch(evt) })
	l.agentManager.OnEvent(EventError, func(evt AgentEvent) { l.dispatcher.Dispatch(evt) })

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	l.mu.Lock()
	l.state = LoopRunning
	l.mu.Unlock()

	go l.run(loopCtx)
	return nil
}

func (l *MainLoop) run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(time.Duration(l.cfg.PollIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick runs exactly one scheduling pass. tickLock ensures a slow tick
// never overlaps with the next timer fire.
func (l *MainLoop) tick(ctx context.Context) {
	if !l.tickLock.TryLock() {
		return
	}
	defer l.tickLock.Unlock()

	l.mu.Lock()
	state := l.state
	l.mu.Unlock()
	if state != LoopRunning {
		return
	}

	if l.spend != nil && l.spend.IsOverBudget(time.Now()) {
		return
	}

	filter := l.buildFilter()
	results := l.scheduler.ScheduleAll(ctx, l.spawnAndTrack, filter)

	l.mu.Lock()
	l.tickCount++
	l.mu.Unlock()

	for _, r := range results {
		if r.Status == StatusError {
			l.logger.Printf("tick error: %v", r.Err)
		}
	}
}

// spawnAndTrack is the scheduler's SpawnFunc: it spawns the chosen task via
// the agent manager and records the resulting session in StateManager in
// the same tick the task leaves the queue, so activeAgents never lags the
// queue.
func (l *MainLoop) spawnAndTrack(ctx context.Context, task *Task, model ModelClass) (string, error) {
	sessionID, err := l.agentManager.SpawnAgent(ctx, task.ID, SpawnOptions{Model: model, ProjectPath: task.ProjectID})
	if err != nil {
		return "", err
	}
	l.stateManager.AddAgent(&AgentState{
		SessionID: sessionID,
		TaskID:    task.ID,
		Model:     model,
		StartedAt: time.Now(),
		Status:    AgentRunning,
	})
	return sessionID, nil
}

// buildFilter composes the AND of the circuit breaker, budget hard stop,
// and task approval gates; the productivity monitor is not consulted. The breaker
// check goes through ShouldAllow rather than the passive State getter so a
// tripped breaker actually attempts its timeout-driven half-open probe
// instead of staying open forever; it is only consulted here, once per
// real candidate task, so the single probe slot is never wasted on a tick
// with nothing to schedule.
func (l *MainLoop) buildFilter() FilterFunc {
	return func(task *Task) bool {
		if l.breaker != nil && !l.breaker.ShouldAllow() {
			return false
		}
		if l.spend != nil && l.spend.IsOverBudget(time.Now()) {
			return false
		}
		if l.approval != nil && l.cfg.EnableTaskApproval {
			if l.approval.RequiresApproval(task) {
				l.approval.RequestApproval(task)
				return false
			}
		}
		return true
	}
}

// Pause suspends tick work without tearing down the loop. Takes effect
// before the next tick.
func (l *MainLoop) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == LoopRunning {
		l.state = LoopPaused
	}
}

// Resume reverses Pause.
func (l *MainLoop) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == LoopPaused {
		l.state = LoopRunning
	}
}

// Stop transitions Running/Paused -> Stopping, asks the agent manager to
// stop accepting new sessions, waits up to GracefulShutdownTimeoutMs for
// the in-flight tick to finish, persists state, and transitions to
// Stopped.
func (l *MainLoop) Stop() error {
	l.mu.Lock()
	if l.state == LoopStopped || l.state == LoopStopping {
		l.mu.Unlock()
		return nil
	}
	l.state = LoopStopping
	l.mu.Unlock()

	l.agentManager.StopAcceptingSessions()
	if l.cancel != nil {
		l.cancel()
	}

	select {
	case <-l.done:
	case <-time.After(time.Duration(l.cfg.GracefulShutdownTimeoutMs) * time.Millisecond):
		l.logger.Printf("graceful shutdown timed out after %dms; remaining sessions are orphaned but recoverable via SyncCapacity on restart", l.cfg.GracefulShutdownTimeoutMs)
	}

	err := l.stateManager.Flush()

	l.mu.Lock()
	l.state = LoopStopped
	l.mu.Unlock()

	return err
}
