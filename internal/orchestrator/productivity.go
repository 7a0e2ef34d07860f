package orchestrator

import (
	"log"
	"os"
	"sync"
	"time"
)

const productivityWindow = 24 * time.Hour

// ProductivityAlertType enumerates the conditions ProductivityMonitor
// watches for.
type ProductivityAlertType string

const (
	AlertLowSuccessRate      ProductivityAlertType = "low_success_rate"
	AlertConsecutiveFailures ProductivityAlertType = "consecutive_failures"
	AlertThroughputDrop      ProductivityAlertType = "throughput_drop"
)

const (
	successRateFloor       = 0.7
	consecutiveFailureCap  = 3
	minSamplesForSuccessRate = 5
)

// ProductivityAlert is raised when one of the monitor's conditions trips.
type ProductivityAlert struct {
	Type    ProductivityAlertType
	Message string
	At      time.Time
}

// ProductivitySnapshot summarizes the trailing window.
type ProductivitySnapshot struct {
	WindowStart         time.Time
	TotalCompletions    int
	SuccessCount        int
	FailureCount        int
	SuccessRate         float64
	AvgDurationMs       float64
	TasksPerHour        float64
	ConsecutiveFailures int
	ByModel             map[ModelClass]int
}

// ProductivityMonitor tracks a sliding 24h window of completion records and
// raises deduplicated alerts (one per type per hour) when the success rate
// falls below its floor or failures run consecutively. AlertThroughputDrop
// is declared but never raised, and average duration raises no alert.
type ProductivityMonitor struct {
	mu          sync.Mutex
	records     []CompletionRecord
	logger      *log.Logger
	onAlert     []func(ProductivityAlert)
	lastAlertAt map[string]string // "type" -> "yyyy-mm-ddThh" dedup key
}

// NewProductivityMonitor builds an empty monitor.
func NewProductivityMonitor(logger *log.Logger) *ProductivityMonitor {
	if logger == nil {
		logger = log.New(os.Stdout, "[PRODUCTIVITY] ", log.LstdFlags)
	}
	return &ProductivityMonitor{
		logger:      logger,
		lastAlertAt: make(map[string]string),
	}
}

// OnAlert registers a handler invoked for each freshly-fired alert.
func (p *ProductivityMonitor) OnAlert(handler func(ProductivityAlert)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAlert = append(p.onAlert, handler)
}

// RecordCompletion appends a completion, prunes records outside the
// trailing window, and evaluates alert conditions.
func (p *ProductivityMonitor) RecordCompletion(rec CompletionRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	p.mu.Lock()
	p.records = append(p.records, rec)
	p.pruneLocked(rec.Timestamp)

	var fired []ProductivityAlert
	snap := p.snapshotLocked(rec.Timestamp)

	if snap.TotalCompletions >= minSamplesForSuccessRate && snap.SuccessRate < successRateFloor {
		if a, ok := p.dedupLocked(AlertLowSuccessRate, rec.Timestamp,
			"success rate fell below threshold"); ok {
			fired = append(fired, a)
		}
	}
	if streak := p.consecutiveFailuresLocked(); streak >= consecutiveFailureCap {
		if a, ok := p.dedupLocked(AlertConsecutiveFailures, rec.Timestamp,
			"consecutive task failures exceeded threshold"); ok {
			fired = append(fired, a)
		}
	}

	handlers := append([]func(ProductivityAlert){}, p.onAlert...)
	p.mu.Unlock()

	for _, a := range fired {
		p.logger.Printf("alert: type=%s message=%q", a.Type, a.Message)
		for _, h := range handlers {
			func() {
				defer func() { recover() }()
				h(a)
			}()
		}
	}
}

// dedupLocked returns (alert, true) only the first time this alert type
// fires within a given local hour.
func (p *ProductivityMonitor) dedupLocked(t ProductivityAlertType, at time.Time, message string) (ProductivityAlert, bool) {
	key := at.In(time.Local).Format("2006-01-02T15")
	if p.lastAlertAt[string(t)] == key {
		return ProductivityAlert{}, false
	}
	p.lastAlertAt[string(t)] = key
	return ProductivityAlert{Type: t, Message: message, At: at}, true
}

func (p *ProductivityMonitor) pruneLocked(now time.Time) {
	cutoff := now.Add(-productivityWindow)
	i := 0
	for ; i < len(p.records); i++ {
		if !p.records[i].Timestamp.Before(cutoff) {
			break
		}
	}
	p.records = p.records[i:]
}

// consecutiveFailuresLocked counts trailing failures from the most recent
// record backward.
func (p *ProductivityMonitor) consecutiveFailuresLocked() int {
	streak := 0
	for i := len(p.records) - 1; i >= 0; i-- {
		if p.records[i].Success {
			break
		}
		streak++
	}
	return streak
}

// Snapshot returns a point-in-time view of the trailing window.
func (p *ProductivityMonitor) Snapshot(now time.Time) ProductivitySnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneLocked(now)
	return p.snapshotLocked(now)
}

func (p *ProductivityMonitor) snapshotLocked(now time.Time) ProductivitySnapshot {
	snap := ProductivitySnapshot{
		WindowStart: now.Add(-productivityWindow),
		ByModel:     make(map[ModelClass]int),
	}

	var totalDuration int64
	for _, r := range p.records {
		snap.TotalCompletions++
		snap.ByModel[r.Model]++
		totalDuration += r.DurationMs
		if r.Success {
			snap.SuccessCount++
		} else {
			snap.FailureCount++
		}
	}

	if snap.TotalCompletions > 0 {
		snap.SuccessRate = float64(snap.SuccessCount) / float64(snap.TotalCompletions)
		snap.AvgDurationMs = float64(totalDuration) / float64(snap.TotalCompletions)
		snap.TasksPerHour = float64(snap.TotalCompletions) / productivityWindow.Hours()
	}
	snap.ConsecutiveFailures = p.consecutiveFailuresLocked()

	return snap
}
