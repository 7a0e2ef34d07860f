package orchestrator

import (
	"log"
	"os"
	"strconv"
	"sync"
)

const (
	defaultOpusLimit   = 1
	defaultSonnetLimit = 2

	opusWarningThreshold   = 2
	sonnetWarningThreshold = 5
)

// CapacityConfig bounds concurrent sessions per model class.
type CapacityConfig struct {
	OpusLimit   int `yaml:"opus_limit"`
	SonnetLimit int `yaml:"sonnet_limit"`
}

// CapacityConfigFromEnv reads OPUS_SESSION_LIMIT / SONNET_SESSION_LIMIT,
// falling back to the documented defaults.
func CapacityConfigFromEnv() CapacityConfig {
	return CapacityConfig{
		OpusLimit:   envInt("OPUS_SESSION_LIMIT", defaultOpusLimit),
		SonnetLimit: envInt("SONNET_SESSION_LIMIT", defaultSonnetLimit),
	}
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// CapacityStats is a point-in-time snapshot for one model class.
type CapacityStats struct {
	Current     int
	Limit       int
	Available   int
	Utilization float64
}

// CapacityTracker gates spawning by tracking reserved sessions per model
// class. Safe for concurrent use.
type CapacityTracker struct {
	mu     sync.Mutex
	limits map[ModelClass]int
	slots  map[ModelClass]map[string]struct{}
	logger *log.Logger
	warning string
}

// NewCapacityTracker builds a tracker for the given limits, logging (and
// recording via GetCapacityWarning) a warning if either limit looks
// unreasonably high.
func NewCapacityTracker(cfg CapacityConfig, logger *log.Logger) *CapacityTracker {
	if logger == nil {
		logger = log.New(os.Stdout, "[CAPACITY] ", log.LstdFlags)
	}
	ct := &CapacityTracker{
		limits: map[ModelClass]int{
			ModelOpus:       cfg.OpusLimit,
			ModelSonnetPool: cfg.SonnetLimit,
		},
		slots: map[ModelClass]map[string]struct{}{
			ModelOpus:       make(map[string]struct{}),
			ModelSonnetPool: make(map[string]struct{}),
		},
		logger: logger,
	}

	if cfg.OpusLimit > opusWarningThreshold || cfg.SonnetLimit > sonnetWarningThreshold {
		ct.warning = "configured session limits are unusually high: opus=" +
			strconv.Itoa(cfg.OpusLimit) + " sonnet=" + strconv.Itoa(cfg.SonnetLimit)
		ct.logger.Printf("WARNING: %s", ct.warning)
	}

	return ct
}

// GetCapacityWarning returns the startup warning message, if any, so the
// host can forward it to the notification sink.
func (c *CapacityTracker) GetCapacityWarning() string {
	return c.warning
}

// HasCapacity reports whether model m has at least one free slot.
func (c *CapacityTracker) HasCapacity(m ModelClass) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots[m]) < c.limits[m]
}

// ReserveCapacity reserves a slot for sessionID under model m. It is
// idempotent: re-reserving an already-tracked sessionID succeeds without
// changing the count. It rejects only when the class is full and the
// sessionID is not already tracked.
func (c *CapacityTracker) ReserveCapacity(m ModelClass, sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, already := c.slots[m][sessionID]; already {
		return true
	}
	if len(c.slots[m]) >= c.limits[m] {
		c.logger.Printf("reserve denied: model=%s session=%s current=%d limit=%d", m, sessionID, len(c.slots[m]), c.limits[m])
		return false
	}
	c.slots[m][sessionID] = struct{}{}
	c.logger.Printf("reserved: model=%s session=%s current=%d limit=%d", m, sessionID, len(c.slots[m]), c.limits[m])
	return true
}

// ReleaseCapacity frees sessionID's slot under model m. Releasing an
// untracked sessionID is a no-op.
func (c *CapacityTracker) ReleaseCapacity(m ModelClass, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.slots[m], sessionID)
}

// CurrentCount returns the number of reserved slots for m.
func (c *CapacityTracker) CurrentCount(m ModelClass) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots[m])
}

// AvailableCount returns the number of free slots for m.
func (c *CapacityTracker) AvailableCount(m ModelClass) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limits[m] - len(c.slots[m])
}

// Stats returns a snapshot for every model class.
func (c *CapacityTracker) Stats() map[ModelClass]CapacityStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[ModelClass]CapacityStats, len(c.limits))
	for m, limit := range c.limits {
		current := len(c.slots[m])
		util := 0.0
		if limit > 0 {
			util = float64(current) / float64(limit)
		}
		out[m] = CapacityStats{Current: current, Limit: limit, Available: limit - current, Utilization: util}
	}
	return out
}

// SyncWith clears and rebuilds reservations from the agent manager's
// source-of-truth session list, used after a restart to reconcile state
// recovered from disk with reality.
func (c *CapacityTracker) SyncWith(sessions []AgentSession) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for m := range c.slots {
		c.slots[m] = make(map[string]struct{})
	}
	for _, s := range sessions {
		c.slots[s.Model][s.SessionID] = struct{}{}
	}
}
