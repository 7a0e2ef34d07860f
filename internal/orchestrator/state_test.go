package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStateManagerLoadMissingFileReturnsFresh(t *testing.T) {
	dir := t.TempDir()
	sm := NewStateManager(filepath.Join(dir, "state.json"), nil)

	state, err := sm.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.SchemaVersion != stateSchemaVersion {
		t.Fatalf("expected fresh state to carry current schema version")
	}
	if len(state.ActiveAgents) != 0 {
		t.Fatalf("expected no active agents in fresh state")
	}
}

func TestStateManagerSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	sm := NewStateManager(path, nil)
	sm.Load()

	now := time.Now()
	sm.SetActiveAgents([]*AgentState{{SessionID: "s1", TaskID: "t1", Model: ModelOpus, StartedAt: now, Status: AgentRunning}})
	sm.SetPaused(true)

	if err := sm.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	sm2 := NewStateManager(path, nil)
	state, err := sm2.Load()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !state.Paused {
		t.Fatalf("expected paused=true to survive round trip")
	}
	if len(state.ActiveAgents) != 1 || state.ActiveAgents[0].SessionID != "s1" {
		t.Fatalf("expected one active agent s1 to survive round trip, got %+v", state.ActiveAgents)
	}
}

func TestStateManagerSaveLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	sm := NewStateManager(path, nil)
	sm.Load()

	if err := sm.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir failed: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("expected no leftover temp files, found %s", e.Name())
		}
	}
}

func TestSnapshotIsDefensiveCopy(t *testing.T) {
	sm := NewStateManager(filepath.Join(t.TempDir(), "state.json"), nil)
	sm.Load()
	sm.SetActiveAgents([]*AgentState{{SessionID: "s1", Status: AgentRunning}})

	snap := sm.Snapshot()
	snap.ActiveAgents[0].Status = AgentFailed

	snap2 := sm.Snapshot()
	if snap2.ActiveAgents[0].Status != AgentRunning {
		t.Fatalf("mutating a snapshot must not affect internal state")
	}
}
