// Package backtest replays a candle series through a strategy and the
// risk manager, bar by bar, with no access to future data.
package backtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quantforge/stratlab/internal/config"
	"github.com/quantforge/stratlab/internal/logging"
	"github.com/quantforge/stratlab/internal/metrics"
	"github.com/quantforge/stratlab/internal/models"
	"github.com/quantforge/stratlab/internal/risk"
)

// Action is a strategy's verdict for the current bar.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is what a strategy returns for one bar. TakeProfit and
// StopLoss are optional; zero leaves the level to the risk calculator.
type Signal struct {
	Action     Action
	TakeProfit float64
	StopLoss   float64
}

// Strategy analyzes the visible history and proposes an action.
// The slice passed to Analyze never contains the future: on bar i the
// strategy sees bars [0, i).
type Strategy interface {
	Name() string
	Analyze(history []models.Candle) (Signal, error)
}

// Result is the outcome of one backtest run.
type Result struct {
	RunID          string
	Symbol         string
	InitialBalance float64
	FinalBalance   float64
	Trades         []models.ClosedTrade
	Metrics        metrics.Metrics
	Summary        risk.Summary
	BarErrors      int
	Rejections     map[string]int
}

// Runner replays candles through one strategy. Each Run constructs a
// fresh manager so runs are fully isolated and a Runner can be reused.
type Runner struct {
	cfg      *config.Config
	strategy Strategy
	symbol   string
	log      *logging.Logger
}

func NewRunner(cfg *config.Config, strategy Strategy, log *logging.Logger) *Runner {
	if log == nil {
		log = logging.NewNop()
	}
	return &Runner{cfg: cfg, strategy: strategy, symbol: cfg.Symbol, log: log}
}

// Run replays the series. It needs at least two bars: one of history
// and one to trade on.
func (r *Runner) Run(candles []models.Candle) (*Result, error) {
	if len(candles) < 2 {
		return nil, &risk.InsufficientDataError{What: "backtest", Have: len(candles), Need: 2}
	}

	mgr := risk.NewManager(risk.ModeBacktest, r.cfg, r.log, nil)

	// The replay clock tracks the newest visible bar so the daily
	// breakers run on the replayed calendar, not the wall clock.
	clock := candles[0].Timestamp
	mgr.SetClock(func() time.Time { return clock })

	result := &Result{
		RunID:          uuid.NewString(),
		Symbol:         r.symbol,
		InitialBalance: r.cfg.Trading.InitialBalance,
		Rejections:     make(map[string]int),
	}

	var open *models.Position
	for i := 1; i < len(candles); i++ {
		bar := candles[i-1]
		clock = bar.Timestamp

		if open != nil {
			if _, done := r.checkExit(mgr, open, bar); done {
				open = nil
			}
			continue
		}

		signal, err := r.strategy.Analyze(candles[:i])
		if err != nil {
			// a failing bar must not kill the run
			result.BarErrors++
			r.log.WithError(err).WithField("bar", i).Debug("strategy error, bar skipped")
			continue
		}
		if signal.Action != ActionBuy && signal.Action != ActionSell {
			continue
		}

		side := models.SideBuy
		if signal.Action == ActionSell {
			side = models.SideSell
		}
		pos, err := mgr.ExecuteTrade(risk.TradeRequest{
			Symbol:     r.symbol,
			Side:       side,
			EntryPrice: bar.Close,
			TakeProfit: signal.TakeProfit,
			StopLoss:   signal.StopLoss,
			Timestamp:  bar.Timestamp,
		})
		if err != nil {
			result.Rejections[rejectionKey(err)]++
			continue
		}
		open = pos
	}

	result.Trades = mgr.History()
	result.FinalBalance = mgr.Balance()
	result.Metrics = metrics.Calculate(result.Trades, result.InitialBalance)
	result.Summary = mgr.Tracker().Summarize()
	return result, nil
}

// checkExit closes the position if the bar's range touched an exit
// level. When a single bar spans both levels the stop-loss wins: the
// conservative assumption about intrabar path.
func (r *Runner) checkExit(mgr *risk.Manager, pos *models.Position, bar models.Candle) (*models.ClosedTrade, bool) {
	var (
		exitPrice float64
		reason    models.ExitReason
	)

	switch pos.Side {
	case models.SideBuy:
		if bar.Low <= pos.StopLoss {
			exitPrice, reason = pos.StopLoss, models.ExitStopLoss
		} else if bar.High >= pos.TakeProfit {
			exitPrice, reason = pos.TakeProfit, models.ExitTakeProfit
		}
	case models.SideSell:
		if bar.High >= pos.StopLoss {
			exitPrice, reason = pos.StopLoss, models.ExitStopLoss
		} else if bar.Low <= pos.TakeProfit {
			exitPrice, reason = pos.TakeProfit, models.ExitTakeProfit
		}
	}
	if reason == "" {
		return nil, false
	}

	trade, err := mgr.UpdateTradeResult(pos.OrderID, exitPrice, reason, bar.Timestamp)
	if err != nil {
		r.log.WithError(err).WithField("order_id", pos.OrderID).Error("failed to close position")
		return nil, true
	}
	return trade, true
}

// rejectionKey maps an execution error onto a stable histogram key.
func rejectionKey(err error) string {
	var (
		validation    *risk.ValidationError
		inconsistency *risk.ParameterInconsistencyError
		halted        *risk.TradingNotAllowedError
		concurrency   *risk.ConcurrencyLimitError
		unachievable  *risk.UnachievableRiskRewardError
	)
	switch {
	case errors.As(err, &validation):
		return "validation:" + validation.Field
	case errors.As(err, &inconsistency):
		return "inconsistent_levels"
	case errors.As(err, &halted):
		return "trading_halted"
	case errors.As(err, &concurrency):
		return "concurrency_limit"
	case errors.As(err, &unachievable):
		return "unachievable_risk_reward"
	default:
		return fmt.Sprintf("other:%T", err)
	}
}
