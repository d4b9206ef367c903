package risk

import (
	"fmt"
	"sort"
	"time"

	"github.com/quantforge/stratlab/internal/config"
	"github.com/quantforge/stratlab/internal/logging"
	"github.com/quantforge/stratlab/internal/models"
)

// RiskCheck is the outcome of a circuit-breaker evaluation. The check
// is read-only: evaluating it never mutates tracker state.
type RiskCheck struct {
	TradeAllowed   bool
	ViolatedLimits []string
	Reasons        []string
}

// Breaker limit identifiers reported in RiskCheck.ViolatedLimits.
const (
	LimitDailyDrawdown     = "daily_drawdown"
	LimitDailyLossStreak   = "consecutive_losses_per_day"
	LimitGlobalLossStreak  = "consecutive_losses_global"
	LimitSeriousLosingDays = "max_losing_days"
)

// Tracker accumulates closed trades into daily buckets and evaluates
// the circuit breakers. It is owned by a single run and not safe for
// concurrent use.
type Tracker struct {
	cfg            *config.Config
	log            *logging.Logger
	initialBalance float64

	history []models.ClosedTrade
	daily   map[string]*models.DailyStat

	globalLossStreak int

	now func() time.Time
}

func NewTracker(cfg *config.Config, log *logging.Logger) *Tracker {
	return &Tracker{
		cfg:            cfg,
		log:            log,
		initialBalance: cfg.Trading.InitialBalance,
		daily:          make(map[string]*models.DailyStat),
		now:            time.Now,
	}
}

// SetClock replaces the tracker's notion of "now". Backtest replay
// advances it to each bar's timestamp so the daily breakers operate on
// the replayed calendar instead of the wall clock.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// RecordTrade folds a closed trade into the history and its day bucket.
func (t *Tracker) RecordTrade(trade models.ClosedTrade) {
	t.history = append(t.history, trade)

	day := models.DayKey(trade.ClosedAt)
	stat, ok := t.daily[day]
	if !ok {
		stat = &models.DailyStat{Date: day}
		t.daily[day] = stat
	}

	stat.TotalProfit += trade.Profit
	stat.TradeCount++
	if trade.Success {
		stat.WinningTrades++
		stat.ConsecutiveLosses = 0
		t.globalLossStreak = 0
	} else {
		stat.LosingTrades++
		stat.ConsecutiveLosses++
		t.globalLossStreak++
	}
}

// History returns the recorded trades in close order.
func (t *Tracker) History() []models.ClosedTrade {
	return t.history
}

// DailyDrawdown returns the day's loss as a positive fraction of the
// initial balance. Profitable or flat days report zero.
func (t *Tracker) DailyDrawdown(day string) float64 {
	stat, ok := t.daily[day]
	if !ok || stat.TotalProfit >= 0 {
		return 0
	}
	return -stat.TotalProfit / t.initialBalance
}

// DailyConsecutiveLosses returns the day's current loss streak.
func (t *Tracker) DailyConsecutiveLosses(day string) int {
	if stat, ok := t.daily[day]; ok {
		return stat.ConsecutiveLosses
	}
	return 0
}

// lossStreakLast24h counts consecutive losses at the tail of the
// history within the trailing 24 hours.
func (t *Tracker) lossStreakLast24h() int {
	cutoff := t.now().Add(-24 * time.Hour)
	streak := 0
	for i := len(t.history) - 1; i >= 0; i-- {
		trade := t.history[i]
		if trade.ClosedAt.Before(cutoff) {
			break
		}
		if trade.Success {
			break
		}
		streak++
	}
	return streak
}

// seriousProblemDays counts the unbroken run of most-recent trading
// days that breached a daily limit: the per-day loss-streak cap or the
// daily drawdown cap. An ordinary losing day does not count; a clean
// day in between resets the count.
func (t *Tracker) seriousProblemDays() int {
	days := make([]string, 0, len(t.daily))
	for day := range t.daily {
		days = append(days, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))

	count := 0
	for _, day := range days {
		stat := t.daily[day]
		serious := stat.ConsecutiveLosses >= t.cfg.Trading.MaxConsecutiveLossesPerDay ||
			t.DailyDrawdown(day) >= t.cfg.Trading.MaxDailyDrawdown
		if !serious {
			break
		}
		count++
	}
	return count
}

// CheckRiskLimits evaluates every circuit breaker for the current
// moment. Idempotent: calling it repeatedly returns the same result
// for the same state.
func (t *Tracker) CheckRiskLimits() RiskCheck {
	check := RiskCheck{TradeAllowed: true}
	today := models.DayKey(t.now())

	if dd := t.DailyDrawdown(today); dd >= t.cfg.Trading.MaxDailyDrawdown {
		check.fail(LimitDailyDrawdown, "daily drawdown %.2f%% reached limit %.2f%%", dd*100, t.cfg.Trading.MaxDailyDrawdown*100)
	}

	dayStreak := t.DailyConsecutiveLosses(today)
	if s := t.lossStreakLast24h(); s > dayStreak {
		dayStreak = s
	}
	if dayStreak >= t.cfg.Trading.MaxConsecutiveLossesPerDay {
		check.fail(LimitDailyLossStreak, "loss streak %d reached daily limit %d", dayStreak, t.cfg.Trading.MaxConsecutiveLossesPerDay)
	}

	if t.globalLossStreak >= t.cfg.Trading.MaxConsecutiveLossesGlobal {
		check.fail(LimitGlobalLossStreak, "loss streak %d reached global limit %d", t.globalLossStreak, t.cfg.Trading.MaxConsecutiveLossesGlobal)
	}

	if days := t.seriousProblemDays(); days >= t.cfg.Trading.MaxLosingDays {
		check.fail(LimitSeriousLosingDays, "%d consecutive problem days reached limit %d", days, t.cfg.Trading.MaxLosingDays)
	}

	return check
}

// Summary aggregates the run-wide statistics.
type Summary struct {
	TotalTrades      int     `json:"total_trades"`
	WinningTrades    int     `json:"winning_trades"`
	WinRate          float64 `json:"win_rate"`
	TotalProfit      float64 `json:"total_profit"`
	GlobalLossStreak int     `json:"global_loss_streak"`
	TradingDays      int     `json:"trading_days"`
}

// Summarize returns the run-wide totals.
func (t *Tracker) Summarize() Summary {
	s := Summary{
		TotalTrades:      len(t.history),
		GlobalLossStreak: t.globalLossStreak,
		TradingDays:      len(t.daily),
	}
	for _, trade := range t.history {
		s.TotalProfit += trade.Profit
		if trade.Success {
			s.WinningTrades++
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	}
	return s
}

func (c *RiskCheck) fail(limit, format string, args ...interface{}) {
	c.TradeAllowed = false
	c.ViolatedLimits = append(c.ViolatedLimits, limit)
	c.Reasons = append(c.Reasons, fmt.Sprintf(format, args...))
}
