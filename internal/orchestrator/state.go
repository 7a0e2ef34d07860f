package orchestrator

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const stateSchemaVersion = 1
const defaultSaveDebounce = 500 * time.Millisecond

// OrchestrationState is the durable snapshot persisted between process
// restarts: which agents were active, whether the loop was paused, and
// when the snapshot was taken.
type OrchestrationState struct {
	SchemaVersion   int          `json:"schema_version"`
	ActiveAgents    []AgentState `json:"active_agents"`
	Paused          bool         `json:"paused"`
	LastPersistedAt time.Time    `json:"last_persisted_at"`
}

// StateManager owns the in-memory OrchestrationState and persists it to
// filePath with an atomic temp-file-then-rename write, debounced so a burst
// of updates collapses into a single disk write.
type StateManager struct {
	mu       sync.RWMutex
	filePath string
	state    *OrchestrationState

	saveMu    sync.Mutex
	saveTimer *time.Timer
	debounce  time.Duration

	logger *log.Logger
}

// NewStateManager builds a manager writing to filePath (env
// STATE_FILE_PATH supplies the default when filePath is empty).
func NewStateManager(filePath string, logger *log.Logger) *StateManager {
	if filePath == "" {
		filePath = stateFilePathFromEnv()
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[STATE] ", log.LstdFlags)
	}
	return &StateManager{
		filePath: filePath,
		state:    &OrchestrationState{SchemaVersion: stateSchemaVersion},
		debounce: defaultSaveDebounce,
		logger:   logger,
	}
}

func stateFilePathFromEnv() string {
	if v := os.Getenv("STATE_FILE_PATH"); v != "" {
		return v
	}
	return "orchestrator_state.json"
}

// Load reads the state file, falling back to a fresh empty state if it
// does not yet exist. A version mismatch is treated as a migration point:
// the loaded state is kept but its version is stamped to current.
func (m *StateManager) Load() (*OrchestrationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dir := filepath.Dir(m.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = &OrchestrationState{SchemaVersion: stateSchemaVersion}
			return m.state, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state OrchestrationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	if state.SchemaVersion != stateSchemaVersion {
		m.logger.Printf("migrating state schema from v%d to v%d", state.SchemaVersion, stateSchemaVersion)
		state.SchemaVersion = stateSchemaVersion
	}

	m.state = &state
	return m.state, nil
}

// Snapshot returns a defensive copy of the current in-memory state.
func (m *StateManager) Snapshot() OrchestrationState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agents := make([]AgentState, len(m.state.ActiveAgents))
	for i, a := range m.state.ActiveAgents {
		agents[i] = *a.Clone()
	}
	return OrchestrationState{
		SchemaVersion:   m.state.SchemaVersion,
		ActiveAgents:    agents,
		Paused:          m.state.Paused,
		LastPersistedAt: m.state.LastPersistedAt,
	}
}

// SetActiveAgents replaces the tracked agent set and schedules a save.
func (m *StateManager) SetActiveAgents(agents []*AgentState) {
	m.mu.Lock()
	cp := make([]AgentState, len(agents))
	for i, a := range agents {
		cp[i] = *a.Clone()
	}
	m.state.ActiveAgents = cp
	m.mu.Unlock()
	m.scheduleSave()
}

// AddAgent appends a newly spawned agent to the tracked set and schedules a
// save. Called from the scheduler's spawn path so a task leaving the queue
// and its corresponding activeAgent entry land in the same tick.
func (m *StateManager) AddAgent(agent *AgentState) {
	m.mu.Lock()
	m.state.ActiveAgents = append(m.state.ActiveAgents, *agent.Clone())
	m.mu.Unlock()
	m.scheduleSave()
}

// SetPaused records the loop's pause flag and schedules a save.
func (m *StateManager) SetPaused(paused bool) {
	m.mu.Lock()
	m.state.Paused = paused
	m.mu.Unlock()
	m.scheduleSave()
}

// scheduleSave debounces writes so rapid successive updates collapse into
// one disk write.
func (m *StateManager) scheduleSave() {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	m.saveTimer = time.AfterFunc(m.debounce, func() {
		if err := m.Save(); err != nil {
			m.logger.Printf("save failed: %v", err)
		}
	})
}

// Save writes the current state to disk via a temp file in the same
// directory followed by an atomic rename, so a crash mid-write never
// leaves a truncated or partially-written state file behind.
func (m *StateManager) Save() error {
	m.mu.Lock()
	m.state.LastPersistedAt = time.Now()
	data, err := json.MarshalIndent(m.state, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(m.filePath)
	tmp, err := os.CreateTemp(dir, ".orchestrator_state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, m.filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp state file into place: %w", err)
	}
	return nil
}

// Flush cancels any pending debounced save and writes immediately,
// intended for use during graceful shutdown.
func (m *StateManager) Flush() error {
	m.saveMu.Lock()
	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	m.saveMu.Unlock()
	return m.Save()
}
