package orchestrator

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"
)

const maxSpendHistory = 5000

// BudgetConfig carries the daily/weekly ceilings and hard-stop behavior.
type BudgetConfig struct {
	DailyUSD        float64 `yaml:"daily_usd"`
	WeeklyUSD       float64 `yaml:"weekly_usd"`
	HardStopAtLimit bool    `yaml:"hard_stop_at_limit"`
}

// BudgetConfigFromEnv reads DAILY_BUDGET_USD / WEEKLY_BUDGET_USD /
// HARD_STOP_AT_BUDGET_LIMIT. A zero or unset budget disables that period's
// threshold entirely.
func BudgetConfigFromEnv() BudgetConfig {
	return BudgetConfig{
		DailyUSD:        envFloat("DAILY_BUDGET_USD", 0),
		WeeklyUSD:       envFloat("WEEKLY_BUDGET_USD", 0),
		HardStopAtLimit: os.Getenv("HARD_STOP_AT_BUDGET_LIMIT") == "true",
	}
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// BudgetPeriod distinguishes daily vs. weekly accounting windows.
type BudgetPeriod string

const (
	PeriodDaily  BudgetPeriod = "daily"
	PeriodWeekly BudgetPeriod = "weekly"
)

// BudgetAlert is raised the first time spend crosses a period's limit.
type BudgetAlert struct {
	Period    BudgetPeriod
	SpentUSD  float64
	LimitUSD  float64
	HardStop  bool
	At        time.Time
}

// SpendMonitor accumulates per-session spend records and evaluates them
// against daily/weekly budgets anchored to local-midnight and
// local-Sunday-midnight period boundaries. Timestamps are converted with
// time.Local on every call; no zone is captured at construction.
type SpendMonitor struct {
	mu          sync.Mutex
	cfg         BudgetConfig
	records     []SpendRecord
	alertedDay  string // yyyy-mm-dd of the last daily alert fired
	alertedWeek string // yyyy-mm-dd of the Sunday starting the last weekly alert's week
	logger      *log.Logger
	onAlert     []func(BudgetAlert)
}

// NewSpendMonitor builds a monitor for cfg.
func NewSpendMonitor(cfg BudgetConfig, logger *log.Logger) *SpendMonitor {
	if logger == nil {
		logger = log.New(os.Stdout, "[BUDGET] ", log.LstdFlags)
	}
	return &SpendMonitor{cfg: cfg, logger: logger}
}

// OnAlert registers a handler invoked the first time a period's budget is
// crossed, once per period.
func (s *SpendMonitor) OnAlert(handler func(BudgetAlert)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAlert = append(s.onAlert, handler)
}

// RecordSpend appends a spend record and evaluates budget thresholds,
// firing OnAlert handlers at most once per period.
func (s *SpendMonitor) RecordSpend(rec SpendRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.records = append(s.records, rec)
	if len(s.records) > maxSpendHistory {
		s.records = s.records[len(s.records)-maxSpendHistory:]
	}

	dayKey := rec.Timestamp.In(time.Local).Format("2006-01-02")
	weekKey := weekKey(rec.Timestamp.In(time.Local))

	var alerts []BudgetAlert
	if s.cfg.DailyUSD > 0 {
		spent := s.sumSinceLocked(startOfDay(rec.Timestamp.In(time.Local)))
		if spent >= s.cfg.DailyUSD && s.alertedDay != dayKey {
			s.alertedDay = dayKey
			alerts = append(alerts, BudgetAlert{Period: PeriodDaily, SpentUSD: spent, LimitUSD: s.cfg.DailyUSD, HardStop: s.cfg.HardStopAtLimit, At: rec.Timestamp})
		}
	}
	if s.cfg.WeeklyUSD > 0 {
		spent := s.sumSinceLocked(startOfWeek(rec.Timestamp.In(time.Local)))
		if spent >= s.cfg.WeeklyUSD && s.alertedWeek != weekKey {
			s.alertedWeek = weekKey
			alerts = append(alerts, BudgetAlert{Period: PeriodWeekly, SpentUSD: spent, LimitUSD: s.cfg.WeeklyUSD, HardStop: s.cfg.HardStopAtLimit, At: rec.Timestamp})
		}
	}
	handlers := append([]func(BudgetAlert){}, s.onAlert...)
	s.mu.Unlock()

	for _, a := range alerts {
		s.logger.Printf("budget alert: period=%s spent=%.2f limit=%.2f hard_stop=%v", a.Period, a.SpentUSD, a.LimitUSD, a.HardStop)
		for _, h := range handlers {
			func() {
				defer func() { recover() }()
				h(a)
			}()
		}
	}
}

// SpentToday returns cumulative spend since local midnight.
func (s *SpendMonitor) SpentToday(now time.Time) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumSinceLocked(startOfDay(now.In(time.Local)))
}

// SpentThisWeek returns cumulative spend since the most recent local
// Sunday midnight.
func (s *SpendMonitor) SpentThisWeek(now time.Time) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumSinceLocked(startOfWeek(now.In(time.Local)))
}

// IsOverBudget reports whether the configured hard-stop would currently
// block new spawns: true only when HardStopAtLimit is set and either
// period's limit has been reached.
func (s *SpendMonitor) IsOverBudget(now time.Time) bool {
	if !s.cfg.HardStopAtLimit {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.DailyUSD > 0 && s.sumSinceLocked(startOfDay(now.In(time.Local))) >= s.cfg.DailyUSD {
		return true
	}
	if s.cfg.WeeklyUSD > 0 && s.sumSinceLocked(startOfWeek(now.In(time.Local))) >= s.cfg.WeeklyUSD {
		return true
	}
	return false
}

func (s *SpendMonitor) sumSinceLocked(since time.Time) float64 {
	var total float64
	for _, r := range s.records {
		if !r.Timestamp.Before(since) {
			total += r.CostUSD
		}
	}
	return total
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := int(day.Weekday()) // Sunday == 0
	return day.AddDate(0, 0, -offset)
}

func weekKey(t time.Time) string {
	return startOfWeek(t).Format("2006-01-02")
}
