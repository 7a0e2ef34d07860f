package orchestrator

import (
	"log"
	"os"
	"sync"
	"time"
)

// BreakerState is one of the three circuit breaker states.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

func (s BreakerState) String() string { return string(s) }

const (
	defaultFailureThreshold = 5
	defaultResetTimeout     = 5 * time.Minute
)

// BreakerConfig tunes trip and recovery behavior.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// BreakerConfigFromEnv reads CIRCUIT_BREAKER_FAILURE_THRESHOLD and
// CIRCUIT_BREAKER_RESET_TIMEOUT_MS, falling back to documented defaults.
func BreakerConfigFromEnv() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: envInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD", defaultFailureThreshold),
		ResetTimeout:     time.Duration(envInt("CIRCUIT_BREAKER_RESET_TIMEOUT_MS", int(defaultResetTimeout/time.Millisecond))) * time.Millisecond,
	}
}

// BreakerStateChange is delivered to OnStateChange subscribers.
type BreakerStateChange struct {
	From BreakerState
	To   BreakerState
	At   time.Time
}

// CircuitBreaker trips to open after consecutive failures cross a
// threshold, blocking new admissions until a reset timeout elapses, then
// allows exactly one half-open probe before deciding whether to close or
// re-open.
type CircuitBreaker struct {
	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	threshold           int
	resetTimeout        time.Duration
	openedAt            time.Time
	halfOpenInFlight    bool
	logger              *log.Logger
	onChange            []func(BreakerStateChange)
}

// NewCircuitBreaker builds a breaker starting closed.
func NewCircuitBreaker(cfg BreakerConfig, logger *log.Logger) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[CIRCUIT] ", log.LstdFlags)
	}
	return &CircuitBreaker{
		state:        BreakerClosed,
		threshold:    cfg.FailureThreshold,
		resetTimeout: cfg.ResetTimeout,
		logger:       logger,
	}
}

// State returns the current state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ShouldAllow reports whether a new session may be admitted right now. A
// call to ShouldAllow while open transitions to half_open once the reset
// timeout has elapsed, consuming the single probe slot; subsequent calls
// return false until that probe resolves via RecordSuccess/RecordFailure.
func (b *CircuitBreaker) ShouldAllow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerHalfOpen:
		return false
	case BreakerOpen:
		if time.Since(b.openedAt) < b.resetTimeout {
			return false
		}
		if b.halfOpenInFlight {
			return false
		}
		b.halfOpenInFlight = true
		b.transition(BreakerHalfOpen)
		return true
	default:
		return false
	}
}

// RecordSuccess registers a successful session completion.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	switch b.state {
	case BreakerHalfOpen:
		b.halfOpenInFlight = false
		b.transition(BreakerClosed)
	}
}

// RecordFailure registers a failed session completion, tripping the
// breaker open once consecutive failures reach the threshold, or
// immediately re-opening a half-open probe that failed.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.halfOpenInFlight = false
		b.consecutiveFailures = b.threshold
		b.openedAt = time.Now()
		b.transition(BreakerOpen)
		return
	}

	b.consecutiveFailures++
	if b.state == BreakerClosed && b.consecutiveFailures >= b.threshold {
		b.openedAt = time.Now()
		b.transition(BreakerOpen)
	}
}

// OnStateChange registers a handler invoked synchronously whenever the
// breaker's state changes.
func (b *CircuitBreaker) OnStateChange(handler func(BreakerStateChange)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = append(b.onChange, handler)
}

// transition must be called with mu held.
func (b *CircuitBreaker) transition(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.logger.Printf("state change: %s -> %s (consecutive_failures=%d)", from, to, b.consecutiveFailures)

	change := BreakerStateChange{From: from, To: to, At: time.Now()}
	handlers := append([]func(BreakerStateChange){}, b.onChange...)
	for _, h := range handlers {
		func() {
			defer func() { recover() }()
			h(change)
		}()
	}
}
