package strategy

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"

	"github.com/quantforge/stratlab/internal/backtest"
	"github.com/quantforge/stratlab/internal/models"
)

// EMACross is the exponential twin of SMACross, long-only. It exists
// mostly as a second strategy for side-by-side comparisons.
type EMACross struct {
	fast      int
	slow      int
	tpPercent float64
}

func NewEMACross(fast, slow int, tpPercent float64) (*EMACross, error) {
	if fast < 1 || slow <= fast {
		return nil, fmt.Errorf("ema cross: need 1 <= fast < slow, got fast=%d slow=%d", fast, slow)
	}
	if tpPercent <= 0 {
		return nil, fmt.Errorf("ema cross: tp percent must be positive, got %f", tpPercent)
	}
	return &EMACross{fast: fast, slow: slow, tpPercent: tpPercent}, nil
}

func (s *EMACross) Name() string {
	return fmt.Sprintf("ema_cross_%d_%d", s.fast, s.slow)
}

func (s *EMACross) Analyze(history []models.Candle) (backtest.Signal, error) {
	hold := backtest.Signal{Action: backtest.ActionHold}
	if len(history) < s.slow+1 {
		return hold, nil
	}

	closes := make([]float64, len(history))
	for i, c := range history {
		closes[i] = c.Close
	}

	fast := ema(closes, s.fast)
	slow := ema(closes, s.slow)
	if len(fast) < 2 || len(slow) < 2 {
		return hold, nil
	}

	fastPrev, fastNow := fast[len(fast)-2], fast[len(fast)-1]
	slowPrev, slowNow := slow[len(slow)-2], slow[len(slow)-1]
	if fastPrev <= slowPrev && fastNow > slowNow {
		price := closes[len(closes)-1]
		return backtest.Signal{
			Action:     backtest.ActionBuy,
			TakeProfit: price * (1 + s.tpPercent),
		}, nil
	}
	return hold, nil
}

func ema(prices []float64, period int) []float64 {
	if len(prices) < period {
		return nil
	}
	c := helper.SliceToChan(prices)
	ind := trend.NewEmaWithPeriod[float64](period)
	return helper.ChanToSlice(ind.Compute(c))
}
