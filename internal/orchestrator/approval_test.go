package orchestrator

import (
	"testing"
	"time"
)

func TestRequiresApprovalFalseWhenPriorityConfirmed(t *testing.T) {
	m := NewTaskApprovalManager(time.Hour, nil)
	task := &Task{ID: "t1", PriorityConfirmed: true}
	if m.RequiresApproval(task) {
		t.Fatalf("expected confirmed-priority task to skip approval")
	}
}

func TestRequiresApprovalTrueByDefault(t *testing.T) {
	m := NewTaskApprovalManager(time.Hour, nil)
	task := &Task{ID: "t1", PriorityConfirmed: false}
	if !m.RequiresApproval(task) {
		t.Fatalf("expected unconfirmed task to require approval")
	}
}

func TestAutoApproveRuleBypassesGate(t *testing.T) {
	m := NewTaskApprovalManager(time.Hour, nil, AutoApproveHighPriority(8))
	task := &Task{ID: "t1", Priority: 9}
	if m.RequiresApproval(task) {
		t.Fatalf("expected high-priority auto-approve rule to bypass gate")
	}
}

func TestHandleResponseApproves(t *testing.T) {
	m := NewTaskApprovalManager(time.Hour, nil)
	task := &Task{ID: "t1"}
	m.RequestApproval(task)
	m.HandleResponse("t1", true)

	decision, ok := m.IsApproved("t1")
	if !ok || decision != ApprovalApproved {
		t.Fatalf("expected approved decision, got %v ok=%v", decision, ok)
	}
}

func TestRequiresApprovalFalseAfterApproval(t *testing.T) {
	m := NewTaskApprovalManager(time.Hour, nil)
	task := &Task{ID: "t1"}
	m.RequestApproval(task)
	m.HandleResponse("t1", true)

	if m.RequiresApproval(&Task{ID: "t1"}) {
		t.Fatalf("expected RequiresApproval false once resolved approved")
	}
}

func TestHandleResponseRejects(t *testing.T) {
	m := NewTaskApprovalManager(time.Hour, nil)
	task := &Task{ID: "t1"}
	m.RequestApproval(task)
	m.HandleResponse("t1", false)

	decision, ok := m.IsApproved("t1")
	if !ok || decision != ApprovalRejected {
		t.Fatalf("expected rejected decision, got %v ok=%v", decision, ok)
	}
}

func TestApprovalTimeoutResolvesToTimedOut(t *testing.T) {
	m := NewTaskApprovalManager(10*time.Millisecond, nil)
	var got ApprovalDecision
	done := make(chan struct{})
	m.OnDecision(func(taskID string, decision ApprovalDecision) {
		got = decision
		close(done)
	})

	m.RequestApproval(&Task{ID: "t1"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for approval timeout to resolve")
	}

	if got != ApprovalTimedOut {
		t.Fatalf("expected timed_out decision, got %s", got)
	}
}

func TestHandleResponseOnUnknownTaskIsNoop(t *testing.T) {
	m := NewTaskApprovalManager(time.Hour, nil)
	m.HandleResponse("nonexistent", true)
	if _, ok := m.IsApproved("nonexistent"); ok {
		t.Fatalf("expected no decision recorded for unknown task")
	}
}
