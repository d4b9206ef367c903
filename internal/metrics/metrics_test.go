package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantforge/stratlab/internal/models"
)

func trades(profits ...float64) []models.ClosedTrade {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.ClosedTrade, len(profits))
	for i, p := range profits {
		out[i] = models.ClosedTrade{
			Profit:   p,
			Success:  p > 0,
			ClosedAt: ts.AddDate(0, 0, i),
		}
	}
	return out
}

func TestCalculateEmptyHistory(t *testing.T) {
	m := Calculate(nil, 10000)
	assert.Equal(t, Metrics{}, m)
}

func TestSortinoClampsWithoutLosses(t *testing.T) {
	// all winners, identical profits: zero downside deviation must
	// clamp, not divide by zero
	history := trades(100, 100, 100, 100, 100, 100, 100, 100, 100, 100)
	m := Calculate(history, 10000)

	penalty := float64(len(history)) / fullSampleTrades
	assert.False(t, math.IsNaN(m.SortinoRatio))
	assert.False(t, math.IsInf(m.SortinoRatio, 0))
	assert.InDelta(t, sortinoLimit*penalty, m.SortinoRatio, 1e-9)
	// Sharpe clamps at its own ceiling for the near-constant series
	assert.LessOrEqual(t, m.SharpeRatio, sharpeLimit*penalty+1e-9)
	assert.Greater(t, m.SharpeRatio, 0.0)
	// zero drawdown with profit clamps Calmar
	assert.InDelta(t, calmarLimit*penalty, m.CalmarRatio, 1e-9)
	assert.Equal(t, 0.0, m.MaxDrawdownPct)
}

func TestSharpeZeroOnNearConstantReturns(t *testing.T) {
	// alternating profits of 0.1 and 0.2 cents on a 10000 balance keep
	// the return deviation around 5e-8: noise, not an edge, so the
	// ratio is zeroed instead of clamped
	profits := make([]float64, 20)
	for i := range profits {
		profits[i] = 0.001
		if i%2 == 1 {
			profits[i] = 0.002
		}
	}
	m := Calculate(trades(profits...), 10000)
	assert.Equal(t, 0.0, m.SharpeRatio)
}

func TestRatiosStayWithinBounds(t *testing.T) {
	histories := [][]models.ClosedTrade{
		trades(100, -50, 200, -75, 120, -20, 90, -10, 50, 60, -30, 80, 40, -60, 110, 20, -40, 70, 30, 90),
		trades(-100, -100, -100, -100, -100),
		trades(1000, 1000, -1, 1000, 1000, 1000),
	}
	for i, h := range histories {
		m := Calculate(h, 10000)
		if math.Abs(m.SharpeRatio) > sharpeLimit {
			t.Errorf("history %d: sharpe %f out of bounds", i, m.SharpeRatio)
		}
		if math.Abs(m.SortinoRatio) > sortinoLimit {
			t.Errorf("history %d: sortino %f out of bounds", i, m.SortinoRatio)
		}
		if math.Abs(m.CalmarRatio) > calmarLimit {
			t.Errorf("history %d: calmar %f out of bounds", i, m.CalmarRatio)
		}
		if m.MaxDrawdownPct < 0 {
			t.Errorf("history %d: negative drawdown %f", i, m.MaxDrawdownPct)
		}
	}
}

func TestMaxDrawdownFromCurve(t *testing.T) {
	// peak 10100, trough 9700: drawdown (10100-9700)/10100
	history := trades(100, -200, -200, 300)
	m := Calculate(history, 10000)
	assert.InDelta(t, (10100.0-9700.0)/10100.0*100, m.MaxDrawdownPct, 1e-9)
}

func TestSamplePenaltyScalesThinHistories(t *testing.T) {
	small := trades(50, -20, 60, -10, 40) // 5 trades
	big := make([]float64, 40)
	for i := range big {
		big[i] = 50
		if i%3 == 0 {
			big[i] = -20
		}
	}
	mSmall := Calculate(small, 10000)
	mBig := Calculate(trades(big...), 10000)

	assert.LessOrEqual(t, math.Abs(mSmall.SharpeRatio), sharpeLimit*0.25+1e-9,
		"5 of 20 trades caps the ratio at a quarter of the limit")
	assert.Greater(t, mBig.TradeCount, fullSampleTrades)
}

func TestTotalReturnAndWinRate(t *testing.T) {
	history := trades(100, -50, 150)
	m := Calculate(history, 10000)

	assert.InDelta(t, 2.0, m.TotalReturnPct, 1e-9)
	assert.InDelta(t, 2.0/3.0, m.WinRate, 1e-9)
	assert.InDelta(t, 200.0, m.TotalProfit, 1e-9)
	assert.Equal(t, 3, m.TradeCount)
}

func TestScoreFloorsNegativeComponents(t *testing.T) {
	m := Metrics{SortinoRatio: 2, SharpeRatio: -3, CalmarRatio: 1}
	assert.InDelta(t, 0.45*2+0.10*1, Score(m), 1e-9)

	all := Metrics{SortinoRatio: -1, SharpeRatio: -1, CalmarRatio: -1}
	assert.Equal(t, 0.0, Score(all))
}

func TestCheckQuality(t *testing.T) {
	tests := []struct {
		name string
		m    Metrics
		want QualityReason
	}{
		{"too few trades", Metrics{TradeCount: 5, TotalProfit: 100}, QualityTooFewTrades},
		{"unprofitable", Metrics{TradeCount: 20, TotalProfit: -5}, QualityUnprofitable},
		{"implausible sharpe", Metrics{TradeCount: 20, TotalProfit: 100, SharpeRatio: 10}, QualityImplausibleRatio},
		{"acceptable", Metrics{TradeCount: 20, TotalProfit: 100, SharpeRatio: 1.5, SortinoRatio: 2, CalmarRatio: 1}, QualityOK},
	}
	for _, tt := range tests {
		if got := CheckQuality(tt.m); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}
