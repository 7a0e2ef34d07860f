package orchestrator

import (
	"log"
	"os"
	"sync"
	"time"
)

const defaultApprovalTimeout = 5 * time.Minute

// ApprovalDecision is the outcome of a resolved approval request.
type ApprovalDecision string

const (
	ApprovalApproved       ApprovalDecision = "approved"
	ApprovalRejected       ApprovalDecision = "rejected"
	ApprovalTimedOut       ApprovalDecision = "timed_out"
)

// AutoApproveRule decides, without human input, whether a task may skip
// the approval gate entirely.
type AutoApproveRule func(*Task) bool

// AutoApproveHighPriority skips approval for tasks at or above minPriority.
func AutoApproveHighPriority(minPriority int) AutoApproveRule {
	return func(t *Task) bool { return t.Priority >= minPriority }
}

// AutoApproveConfirmedPriority skips approval for tasks whose priority has
// already been confirmed by a human, mirroring Task.RequiresApproval.
func AutoApproveConfirmedPriority() AutoApproveRule {
	return func(t *Task) bool { return t.PriorityConfirmed }
}

// pendingApproval tracks one outstanding request.
type pendingApproval struct {
	task      *Task
	requested time.Time
	resolved  chan ApprovalDecision
}

// TaskApprovalManager gates tasks that require human confirmation before
// scheduling. A request left unanswered past the timeout resolves to a
// synthetic rejection.
type TaskApprovalManager struct {
	mu       sync.Mutex
	rules    []AutoApproveRule
	timeout  time.Duration
	pending  map[string]*pendingApproval
	decided  map[string]ApprovalDecision
	logger   *log.Logger
	onDecide []func(taskID string, decision ApprovalDecision)
}

// NewTaskApprovalManager builds a manager with the given auto-approve
// rules and timeout (0 selects the 5 minute default).
func NewTaskApprovalManager(timeout time.Duration, logger *log.Logger, rules ...AutoApproveRule) *TaskApprovalManager {
	if timeout <= 0 {
		timeout = defaultApprovalTimeout
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[APPROVAL] ", log.LstdFlags)
	}
	return &TaskApprovalManager{
		rules:   rules,
		timeout: timeout,
		pending: make(map[string]*pendingApproval),
		decided: make(map[string]ApprovalDecision),
		logger:  logger,
	}
}

// OnDecision registers a handler invoked when a task's approval resolves,
// whether by rule, human response, or timeout.
func (m *TaskApprovalManager) OnDecision(handler func(taskID string, decision ApprovalDecision)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDecide = append(m.onDecide, handler)
}

// RequiresApproval reports whether task still needs a gate check: false
// immediately for any task an auto-approve rule accepts, or one already
// resolved to approved.
func (m *TaskApprovalManager) RequiresApproval(task *Task) bool {
	if !task.RequiresApproval() {
		return false
	}
	for _, rule := range m.rules {
		if rule(task) {
			return false
		}
	}

	m.mu.Lock()
	decision, done := m.decided[task.ID]
	m.mu.Unlock()
	if done && decision == ApprovalApproved {
		return false
	}
	return true
}

// RequestApproval registers task as pending (idempotently) and starts its
// timeout clock. It is safe to call repeatedly for the same task.
func (m *TaskApprovalManager) RequestApproval(task *Task) {
	m.mu.Lock()
	if _, exists := m.pending[task.ID]; exists {
		m.mu.Unlock()
		return
	}
	pa := &pendingApproval{task: task, requested: time.Now(), resolved: make(chan ApprovalDecision, 1)}
	m.pending[task.ID] = pa
	m.mu.Unlock()

	go m.watchTimeout(task.ID, pa)
}

func (m *TaskApprovalManager) watchTimeout(taskID string, pa *pendingApproval) {
	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		m.resolve(taskID, ApprovalTimedOut)
	case <-pa.resolved:
	}
}

// HandleResponse resolves a pending request with a human decision. It is a
// no-op if the task is not currently pending (already resolved or never
// requested).
func (m *TaskApprovalManager) HandleResponse(taskID string, approved bool) {
	decision := ApprovalRejected
	if approved {
		decision = ApprovalApproved
	}
	m.resolve(taskID, decision)
}

func (m *TaskApprovalManager) resolve(taskID string, decision ApprovalDecision) {
	m.mu.Lock()
	pa, exists := m.pending[taskID]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.pending, taskID)
	m.decided[taskID] = decision
	handlers := append([]func(string, ApprovalDecision){}, m.onDecide...)
	m.mu.Unlock()

	select {
	case pa.resolved <- decision:
	default:
	}

	m.logger.Printf("resolved: task=%s decision=%s", taskID, decision)
	for _, h := range handlers {
		func() {
			defer func() { recover() }()
			h(taskID, decision)
		}()
	}
}

// IsApproved reports the current resolved decision for taskID, if any.
func (m *TaskApprovalManager) IsApproved(taskID string) (ApprovalDecision, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decided[taskID]
	return d, ok
}

// PendingCount returns the number of requests still awaiting resolution.
func (m *TaskApprovalManager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
