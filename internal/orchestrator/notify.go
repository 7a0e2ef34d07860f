package orchestrator

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultNotifyBurst = 3
const defaultNotifyPerMinute = 10

// DedupingNotifier wraps a NotificationSink with a per-key cooldown and a
// token-bucket rate limit, so a noisy safety gate (the circuit breaker
// flapping, budget alerts firing every tick) cannot flood the sink.
type DedupingNotifier struct {
	sink     NotificationSink
	limiter  *rate.Limiter
	cooldown time.Duration
	logger   *log.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewDedupingNotifier builds a notifier over sink, rate-limited to
// ratePerMinute messages per minute with the given burst, and suppressing
// a repeat of the same dedup key within cooldown.
func NewDedupingNotifier(sink NotificationSink, ratePerMinute int, cooldown time.Duration, logger *log.Logger) *DedupingNotifier {
	if ratePerMinute <= 0 {
		ratePerMinute = defaultNotifyPerMinute
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[NOTIFY] ", log.LstdFlags)
	}
	return &DedupingNotifier{
		sink:     sink,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMinute)), defaultNotifyBurst),
		cooldown: cooldown,
		logger:   logger,
		lastSent: make(map[string]time.Time),
	}
}

// Notify sends msg under dedupKey, skipping delivery if the same key was
// sent within the cooldown window or the rate limiter has no tokens left.
func (n *DedupingNotifier) Notify(dedupKey string, msg NotificationMessage) {
	now := time.Now()

	n.mu.Lock()
	if last, ok := n.lastSent[dedupKey]; ok && now.Sub(last) < n.cooldown {
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	if !n.limiter.Allow() {
		n.logger.Printf("rate limited, dropping notification: key=%s", dedupKey)
		return
	}

	if _, err := n.sink.SendMessage(msg); err != nil {
		n.logger.Printf("send failed: key=%s err=%v", dedupKey, err)
		return
	}

	n.mu.Lock()
	n.lastSent[dedupKey] = now
	n.mu.Unlock()
}

// NotifyBudgetAlert formats and sends a BudgetAlert, deduped by period.
func (n *DedupingNotifier) NotifyBudgetAlert(channel string, a BudgetAlert) {
	text := fmt.Sprintf("budget alert: %s spend $%.2f has reached the $%.2f limit", a.Period, a.SpentUSD, a.LimitUSD)
	if a.HardStop {
		text += " — new sessions are blocked until the period resets"
	}
	n.Notify("budget:"+string(a.Period), NotificationMessage{Channel: channel, Text: text})
}

// NotifyBreakerChange formats and sends a BreakerStateChange, deduped by
// target state.
func (n *DedupingNotifier) NotifyBreakerChange(channel string, c BreakerStateChange) {
	text := fmt.Sprintf("circuit breaker transitioned %s -> %s", c.From, c.To)
	n.Notify("breaker:"+string(c.To), NotificationMessage{Channel: channel, Text: text})
}

// NotifyProductivityAlert formats and sends a ProductivityAlert, deduped
// by alert type.
func (n *DedupingNotifier) NotifyProductivityAlert(channel string, a ProductivityAlert) {
	n.Notify("productivity:"+string(a.Type), NotificationMessage{Channel: channel, Text: a.Message})
}
