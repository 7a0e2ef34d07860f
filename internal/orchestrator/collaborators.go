package orchestrator

import (
	"context"
	"time"
)

// SpawnOptions parameterizes a spawn request to the AgentManager.
type SpawnOptions struct {
	Model         ModelClass
	ProjectPath   string
	SystemPrompt  string
	MaxTurns      int
}

// AgentSession is the AgentManager's own view of a live (or recently
// terminated) session, used by StateManager/CapacityTracker reconciliation.
type AgentSession struct {
	SessionID string
	TaskID    string
	Model     ModelClass
	StartedAt time.Time
}

// AgentEventType enumerates the asynchronous events an AgentManager raises
// over the lifetime of one session.
type AgentEventType string

const (
	EventQuestion      AgentEventType = "question"
	EventToolCall      AgentEventType = "tool_call"
	EventCompletion    AgentEventType = "completion"
	EventError         AgentEventType = "error"
	EventBlocker       AgentEventType = "blocker"
	EventSubagentSpawn AgentEventType = "subagent_spawn"
)

// CompletionData is carried by completion/error AgentEvents.
type CompletionData struct {
	Success      bool
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	DurationMs   int64
	NumTurns     int
	Summary      string
}

// AgentEvent is what an AgentManager delivers to the EventDispatcher.
type AgentEvent struct {
	Type      AgentEventType
	SessionID string
	TaskID    string
	Model     ModelClass
	Data      CompletionData
	Payload   map[string]any
	Timestamp time.Time
}

// AgentManager is the opaque collaborator that actually runs agent
// sessions. The core never inspects how a session is executed; it only
// spawns, messages, terminates, and lists.
type AgentManager interface {
	SpawnAgent(ctx context.Context, taskID string, opts SpawnOptions) (sessionID string, err error)
	InjectMessage(sessionID, text string) error
	TerminateSession(sessionID string) error
	GetActiveSessions() []AgentSession
	GetSession(sessionID string) (AgentSession, bool)
	OnEvent(eventType AgentEventType, handler func(AgentEvent))
	StopAcceptingSessions()
}

// TaskRepository is the authoritative store of record for tasks; the core
// queue only ever holds references.
type TaskRepository interface {
	GetByID(ctx context.Context, id string) (*Task, error)
	GetQueued(ctx context.Context) ([]*Task, error)
	UpdateStatus(ctx context.Context, id string, status TaskStatus) error
	AssignAgent(ctx context.Context, taskID, sessionID string) error
	RecordUsage(ctx context.Context, taskID string, inputTokens, outputTokens int64, costUSD float64) error
}

// UsageLogEventType distinguishes completion/error/partial usage rows.
type UsageLogEventType string

const (
	UsageCompletion UsageLogEventType = "completion"
	UsageError      UsageLogEventType = "error"
	UsagePartial    UsageLogEventType = "partial"
)

// UsageLogEntry is one row recorded by UsageLogRepository.Create.
type UsageLogEntry struct {
	SessionID          string
	TaskID             string
	Model              ModelClass
	InputTokens        int64
	OutputTokens       int64
	CacheReadTokens    int64
	CacheCreationTokens int64
	CostUSD            float64
	EventType          UsageLogEventType
}

// UsageLogRepository persists per-session cost/token accounting.
type UsageLogRepository interface {
	Create(ctx context.Context, entry UsageLogEntry) error
}

// NotificationMessage is what a NotificationSink delivers.
type NotificationMessage struct {
	Channel  string
	Text     string
	ThreadTS string
}

// NotificationSink is the chat/alerting surface the core uses for
// critical-condition notifications. OnCommand/OnReaction are optional;
// nil-safe callers should check before invoking.
type NotificationSink interface {
	SendMessage(msg NotificationMessage) (ts string, err error)
}
