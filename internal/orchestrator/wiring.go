package orchestrator

import (
	"context"
	"log"
	"os"
)

// WireEventHandlers registers the completion/error handlers MainLoop.Start
// installs on the dispatcher exactly once per process: release capacity,
// persist usage, record spend/productivity/circuit-breaker outcomes. Each
// handler is re-entrancy-safe and never panics. An event with an empty
// sessionID is logged and otherwise ignored; an event whose non-empty
// sessionID is not in the state is not checked against it and still has
// its usage, spend, productivity and breaker outcome recorded.
func WireEventHandlers(d *EventDispatcher, capacity *CapacityTracker, stateManager *StateManager,
	breaker *CircuitBreaker, spend *SpendMonitor, productivity *ProductivityMonitor, usageLog UsageLogRepository, logger *log.Logger) {

	if logger == nil {
		logger = log.New(os.Stdout, "[WIRING] ", log.LstdFlags)
	}

	d.On(EventCompletion, func(de DispatchedEvent) {
		handleSessionEnd(de.Event, true, capacity, stateManager, breaker, spend, productivity, usageLog, logger)
	})
	d.On(EventError, func(de DispatchedEvent) {
		handleSessionEnd(de.Event, false, capacity, stateManager, breaker, spend, productivity, usageLog, logger)
	})
}

func handleSessionEnd(event AgentEvent, success bool, capacity *CapacityTracker, stateManager *StateManager,
	breaker *CircuitBreaker, spend *SpendMonitor, productivity *ProductivityMonitor, usageLog UsageLogRepository, logger *log.Logger) {

	if event.SessionID == "" {
		logger.Printf("warning: session-end event with no sessionID, ignoring")
		return
	}

	capacity.ReleaseCapacity(event.Model, event.SessionID)
	removeAgentFromState(stateManager, event.SessionID)

	if usageLog != nil {
		eventType := UsageCompletion
		if !success {
			eventType = UsageError
		}
		entry := UsageLogEntry{
			SessionID:    event.SessionID,
			TaskID:       event.TaskID,
			Model:        event.Model,
			InputTokens:  event.Data.InputTokens,
			OutputTokens: event.Data.OutputTokens,
			CostUSD:      event.Data.CostUSD,
			EventType:    eventType,
		}
		if err := usageLog.Create(context.Background(), entry); err != nil {
			logger.Printf("usage log create failed for session %s: %v", event.SessionID, err)
		}
	}

	if spend != nil {
		spend.RecordSpend(SpendRecord{
			SessionID:    event.SessionID,
			TaskID:       event.TaskID,
			Model:        event.Model,
			CostUSD:      event.Data.CostUSD,
			InputTokens:  event.Data.InputTokens,
			OutputTokens: event.Data.OutputTokens,
			Timestamp:    event.Timestamp,
		})
	}
	if productivity != nil {
		productivity.RecordCompletion(CompletionRecord{
			SessionID:  event.SessionID,
			TaskID:     event.TaskID,
			Model:      event.Model,
			Success:    success,
			DurationMs: event.Data.DurationMs,
			TokensUsed: event.Data.InputTokens + event.Data.OutputTokens,
			CostUSD:    event.Data.CostUSD,
			Timestamp:  event.Timestamp,
		})
	}
	if breaker != nil {
		if success {
			breaker.RecordSuccess()
		} else {
			breaker.RecordFailure()
		}
	}
}

// removeAgentFromState drops sessionID from the tracked active-agent set,
// a no-op if it is not present.
func removeAgentFromState(stateManager *StateManager, sessionID string) {
	stateManager.mu.Lock()
	agents := stateManager.state.ActiveAgents
	kept := agents[:0:0]
	for _, a := range agents {
		if a.SessionID != sessionID {
			kept = append(kept, a)
		}
	}
	stateManager.state.ActiveAgents = kept
	stateManager.mu.Unlock()
	stateManager.scheduleSave()
}
