package orchestrator

import (
	"errors"
	"testing"
	"time"
)

type fakeSink struct {
	sent []NotificationMessage
	err  error
}

func (f *fakeSink) SendMessage(msg NotificationMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "ts-1", nil
}

func TestNotifierDedupesWithinCooldown(t *testing.T) {
	sink := &fakeSink{}
	n := NewDedupingNotifier(sink, 1000, time.Hour, nil)

	n.Notify("key-1", NotificationMessage{Text: "first"})
	n.Notify("key-1", NotificationMessage{Text: "second"})

	if len(sink.sent) != 1 {
		t.Fatalf("expected exactly one message delivered, got %d", len(sink.sent))
	}
}

func TestNotifierAllowsDifferentKeys(t *testing.T) {
	sink := &fakeSink{}
	n := NewDedupingNotifier(sink, 1000, time.Hour, nil)

	n.Notify("key-1", NotificationMessage{Text: "a"})
	n.Notify("key-2", NotificationMessage{Text: "b"})

	if len(sink.sent) != 2 {
		t.Fatalf("expected both distinct keys delivered, got %d", len(sink.sent))
	}
}

func TestNotifierSwallowsSinkError(t *testing.T) {
	sink := &fakeSink{err: errors.New("boom")}
	n := NewDedupingNotifier(sink, 1000, time.Hour, nil)
	n.Notify("key-1", NotificationMessage{Text: "a"})
}

func TestNotifyBudgetAlertDedupesByPeriod(t *testing.T) {
	sink := &fakeSink{}
	n := NewDedupingNotifier(sink, 1000, time.Hour, nil)

	n.NotifyBudgetAlert("ops", BudgetAlert{Period: PeriodDaily, SpentUSD: 10, LimitUSD: 10})
	n.NotifyBudgetAlert("ops", BudgetAlert{Period: PeriodDaily, SpentUSD: 11, LimitUSD: 10})

	if len(sink.sent) != 1 {
		t.Fatalf("expected daily alert deduped, got %d sends", len(sink.sent))
	}
}
