package agents

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/CLIAIMONITOR/internal/orchestrator"
	"github.com/CLIAIMONITOR/internal/types"
)

// pollInterval is how often Manager checks whether a spawned agent's
// process is still alive. Tests shrink this to avoid slow polling loops.
var pollInterval = 5 * time.Second

// spawnerBackend is the subset of ProcessSpawner's surface Manager needs,
// narrowed to an interface so tests can substitute a fake without faking
// WezTerm process spawning.
type spawnerBackend interface {
	Spawner
	GenerateAgentID(agentType string) string
}

// Manager adapts ProcessSpawner's WezTerm-pane spawning to
// orchestrator.AgentManager, so the scheduling engine can drive agent
// lifecycle without knowing how a session is actually executed.
type Manager struct {
	mu       sync.RWMutex
	spawner  spawnerBackend
	configs  map[string]types.AgentConfig
	sessions map[string]orchestrator.AgentSession
	pids     map[string]int
	handlers map[orchestrator.AgentEventType][]func(orchestrator.AgentEvent)
	logger   *log.Logger
	stopping bool
	cancel   map[string]context.CancelFunc
}

// NewManager wraps spawner with the model-name-to-AgentConfig table
// produced by LoadTeamsConfig.
func NewManager(spawner *ProcessSpawner, configs map[string]types.AgentConfig, logger *log.Logger) *Manager {
	return newManager(spawner, configs, logger)
}

func newManager(spawner spawnerBackend, configs map[string]types.AgentConfig, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stdout, "[AGENTS] ", log.LstdFlags)
	}
	return &Manager{
		spawner:  spawner,
		configs:  configs,
		sessions: make(map[string]orchestrator.AgentSession),
		pids:     make(map[string]int),
		handlers: make(map[orchestrator.AgentEventType][]func(orchestrator.AgentEvent)),
		logger:   logger,
		cancel:   make(map[string]context.CancelFunc),
	}
}

// SpawnAgent starts a headless agent process for taskID and returns the
// session ID the orchestrator should track it by.
func (m *Manager) SpawnAgent(ctx context.Context, taskID string, opts orchestrator.SpawnOptions) (string, error) {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return "", fmt.Errorf("agent manager is no longer accepting new sessions")
	}
	cfg, ok := m.configs[string(opts.Model)]
	m.mu.Unlock()
	if !ok {
		cfg = types.AgentConfig{Name: string(opts.Model), Model: modelFlag(opts.Model)}
	}

	sessionID := m.spawner.GenerateAgentID(cfg.Name)
	pid, err := m.spawner.SpawnAgentWithOptions(cfg, sessionID, opts.ProjectPath, opts.SystemPrompt, true)
	if err != nil {
		return "", fmt.Errorf("spawn agent for task %s: %w", taskID, err)
	}

	session := orchestrator.AgentSession{
		SessionID: sessionID,
		TaskID:    taskID,
		Model:     opts.Model,
		StartedAt: time.Now(),
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.sessions[sessionID] = session
	m.pids[sessionID] = pid
	m.cancel[sessionID] = cancel
	m.mu.Unlock()

	go m.watch(watchCtx, sessionID, taskID, opts.Model, pid)
	return sessionID, nil
}

// watch polls the spawned process until it exits, then synthesizes a
// completion event. ProcessSpawner's WezTerm panes give no structured exit
// status, so success/failure is inferred from process liveness only.
func (m *Manager) watch(ctx context.Context, sessionID, taskID string, model orchestrator.ModelClass, pid int) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	started := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.spawner.IsAgentRunning(pid) {
				continue
			}
			m.mu.Lock()
			delete(m.sessions, sessionID)
			delete(m.pids, sessionID)
			delete(m.cancel, sessionID)
			m.mu.Unlock()

			m.dispatch(orchestrator.AgentEvent{
				Type:      orchestrator.EventCompletion,
				SessionID: sessionID,
				TaskID:    taskID,
				Model:     model,
				Data: orchestrator.CompletionData{
					Success:    true,
					DurationMs: time.Since(started).Milliseconds(),
				},
				Timestamp: time.Now(),
			})
			return
		}
	}
}

// InjectMessage is not supported over WezTerm pane spawning; CLIAIMONITOR
// agents take their full brief as the initial prompt at spawn time.
func (m *Manager) InjectMessage(sessionID, text string) error {
	return fmt.Errorf("agent manager: mid-session message injection unsupported for session %s", sessionID)
}

// TerminateSession kills the underlying process and stops watching it.
func (m *Manager) TerminateSession(sessionID string) error {
	m.mu.Lock()
	cancel, ok := m.cancel[sessionID]
	delete(m.sessions, sessionID)
	delete(m.pids, sessionID)
	delete(m.cancel, sessionID)
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return m.spawner.StopAgentWithReason(sessionID, "terminated by orchestrator")
}

// GetActiveSessions returns a snapshot of live sessions.
func (m *Manager) GetActiveSessions() []orchestrator.AgentSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]orchestrator.AgentSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// GetSession looks up one session by ID.
func (m *Manager) GetSession(sessionID string) (orchestrator.AgentSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// OnEvent registers a handler for one event type.
func (m *Manager) OnEvent(eventType orchestrator.AgentEventType, handler func(orchestrator.AgentEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// StopAcceptingSessions rejects further SpawnAgent calls, used during
// graceful shutdown.
func (m *Manager) StopAcceptingSessions() {
	m.mu.Lock()
	m.stopping = true
	m.mu.Unlock()
}

func (m *Manager) dispatch(evt orchestrator.AgentEvent) {
	m.mu.RLock()
	handlers := append([]func(orchestrator.AgentEvent){}, m.handlers[evt.Type]...)
	m.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Printf("agent event handler panic: %v", r)
				}
			}()
			h(evt)
		}()
	}
}

func modelFlag(class orchestrator.ModelClass) string {
	if class == orchestrator.ModelOpus {
		return "opus"
	}
	return "sonnet"
}
