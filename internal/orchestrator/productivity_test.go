package orchestrator

import (
	"testing"
	"time"
)

func TestProductivitySnapshotComputesSuccessRate(t *testing.T) {
	pm := NewProductivityMonitor(nil)
	now := time.Now()

	pm.RecordCompletion(CompletionRecord{Success: true, DurationMs: 100, Timestamp: now})
	pm.RecordCompletion(CompletionRecord{Success: true, DurationMs: 200, Timestamp: now})
	pm.RecordCompletion(CompletionRecord{Success: false, DurationMs: 300, Timestamp: now})

	snap := pm.Snapshot(now)
	if snap.TotalCompletions != 3 {
		t.Fatalf("expected 3 completions, got %d", snap.TotalCompletions)
	}
	want := 2.0 / 3.0
	if diff := snap.SuccessRate - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected success rate %f, got %f", want, snap.SuccessRate)
	}
}

func TestProductivityPrunesOutsideWindow(t *testing.T) {
	pm := NewProductivityMonitor(nil)
	now := time.Now()
	stale := now.Add(-25 * time.Hour)

	pm.RecordCompletion(CompletionRecord{Success: true, Timestamp: stale})
	pm.RecordCompletion(CompletionRecord{Success: true, Timestamp: now})

	snap := pm.Snapshot(now)
	if snap.TotalCompletions != 1 {
		t.Fatalf("expected stale record pruned, got %d completions", snap.TotalCompletions)
	}
}

func TestProductivityConsecutiveFailureAlertDedupedPerHour(t *testing.T) {
	pm := NewProductivityMonitor(nil)
	var alerts []ProductivityAlert
	pm.OnAlert(func(a ProductivityAlert) { alerts = append(alerts, a) })

	now := time.Now()
	for i := 0; i < consecutiveFailureCap; i++ {
		pm.RecordCompletion(CompletionRecord{Success: false, Timestamp: now})
	}
	pm.RecordCompletion(CompletionRecord{Success: false, Timestamp: now})

	count := 0
	for _, a := range alerts {
		if a.Type == AlertConsecutiveFailures {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one consecutive-failure alert within the hour, got %d", count)
	}
}

func TestProductivityLowSuccessRateRequiresMinSamples(t *testing.T) {
	pm := NewProductivityMonitor(nil)
	var alerts []ProductivityAlert
	pm.OnAlert(func(a ProductivityAlert) { alerts = append(alerts, a) })

	now := time.Now()
	pm.RecordCompletion(CompletionRecord{Success: false, Timestamp: now})
	pm.RecordCompletion(CompletionRecord{Success: false, Timestamp: now})

	for _, a := range alerts {
		if a.Type == AlertLowSuccessRate {
			t.Fatalf("expected no low-success-rate alert below minimum sample count")
		}
	}
}
