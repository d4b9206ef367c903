// Package strategy ships the example strategies used by the CLI and
// the walk-forward tests.
package strategy

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"

	"github.com/quantforge/stratlab/internal/backtest"
	"github.com/quantforge/stratlab/internal/models"
	"github.com/quantforge/stratlab/internal/walkforward"
)

// SMACross goes long when the fast moving average crosses above the
// slow one and short on the opposite cross. The take-profit target is
// a fixed fraction of the entry; the stop-loss is left to the risk
// calculator, which derives it from the risk/reward ratio.
type SMACross struct {
	fast      int
	slow      int
	tpPercent float64
}

func NewSMACross(fast, slow int, tpPercent float64) (*SMACross, error) {
	if fast < 1 || slow <= fast {
		return nil, fmt.Errorf("sma cross: need 1 <= fast < slow, got fast=%d slow=%d", fast, slow)
	}
	if tpPercent <= 0 {
		return nil, fmt.Errorf("sma cross: tp percent must be positive, got %f", tpPercent)
	}
	return &SMACross{fast: fast, slow: slow, tpPercent: tpPercent}, nil
}

func (s *SMACross) Name() string {
	return fmt.Sprintf("sma_cross_%d_%d", s.fast, s.slow)
}

func (s *SMACross) Analyze(history []models.Candle) (backtest.Signal, error) {
	hold := backtest.Signal{Action: backtest.ActionHold}
	if len(history) < s.slow+1 {
		return hold, nil
	}

	closes := make([]float64, len(history))
	for i, c := range history {
		closes[i] = c.Close
	}

	fast := sma(closes, s.fast)
	slow := sma(closes, s.slow)
	if len(fast) < 2 || len(slow) < 2 {
		return hold, nil
	}

	// both series end at the newest visible bar
	fastPrev, fastNow := fast[len(fast)-2], fast[len(fast)-1]
	slowPrev, slowNow := slow[len(slow)-2], slow[len(slow)-1]
	price := closes[len(closes)-1]

	switch {
	case fastPrev <= slowPrev && fastNow > slowNow:
		return backtest.Signal{
			Action:     backtest.ActionBuy,
			TakeProfit: price * (1 + s.tpPercent),
		}, nil
	case fastPrev >= slowPrev && fastNow < slowNow:
		return backtest.Signal{
			Action:     backtest.ActionSell,
			TakeProfit: price * (1 - s.tpPercent),
		}, nil
	default:
		return hold, nil
	}
}

func sma(prices []float64, period int) []float64 {
	if len(prices) < period {
		return nil
	}
	c := helper.SliceToChan(prices)
	ind := trend.NewSmaWithPeriod[float64](period)
	return helper.ChanToSlice(ind.Compute(c))
}

// SMACrossSpace is the searchable parameter space of the strategy.
func SMACrossSpace() walkforward.Space {
	return walkforward.Space{
		Specs: []walkforward.ParamSpec{
			{Name: "fast_period", Kind: walkforward.KindInt, Min: 3, Max: 30},
			{Name: "slow_period", Kind: walkforward.KindInt, Min: 10, Max: 100},
			{Name: "tp_percent", Kind: walkforward.KindFloat, Min: 0.01, Max: 0.08, Step: 0.005},
		},
		Constraint: func(p walkforward.Params) bool {
			return p["fast_period"] < p["slow_period"]
		},
	}
}

// SMACrossFactory adapts NewSMACross to the walk-forward engine.
func SMACrossFactory(p walkforward.Params) (backtest.Strategy, error) {
	return NewSMACross(int(p["fast_period"]), int(p["slow_period"]), p["tp_percent"])
}
