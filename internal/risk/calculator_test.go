package risk

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantforge/stratlab/internal/config"
	"github.com/quantforge/stratlab/internal/logging"
	"github.com/quantforge/stratlab/internal/models"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Trading.RiskRewardRatio = 2.0
	cfg.Trading.MaxRiskPerTrade = 0.01
	cfg.Trading.MaxPositionMultiplier = 1.0
	cfg.Trading.MinTradeUSD = 10
	cfg.Fees.EntryFee = 0
	cfg.Fees.TPFee = 0
	cfg.Fees.SLFee = 0
	return cfg
}

// goodHistory builds n trades with the given number of wins spread
// evenly, so the trailing streak stays short and the statistical gate
// sees the intended winrate.
func goodHistory(n, wins int) []models.ClosedTrade {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.ClosedTrade, n)
	for i := range out {
		success := (i+1)*wins/n > i*wins/n
		profit := 5.0
		if !success {
			profit = -5.0
		}
		out[i] = models.ClosedTrade{
			OrderID:  "t",
			Profit:   profit,
			Success:  success,
			ClosedAt: ts.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestCalculatePositionFromTakeProfitOnly(t *testing.T) {
	calc := NewCalculator(testConfig(), logging.NewNop())

	plan, err := calc.CalculatePosition(PositionRequest{
		Side:       models.SideBuy,
		EntryPrice: 100,
		TakeProfit: 102,
		Balance:    10000,
		History:    goodHistory(20, 12),
	})
	require.NoError(t, err)

	// 2% target at ratio 2 and zero fees puts the stop 1% below entry,
	// and a 100 USD risk budget at 1% price risk sizes to 10000 USD.
	assert.InDelta(t, 99.0, plan.StopLoss, 1e-9)
	assert.InDelta(t, 10000.0, plan.PositionSizeUSD, 1e-6)
	assert.InDelta(t, 200.0, plan.ExpectedProfit, 1e-6)
	assert.InDelta(t, -100.0, plan.ExpectedLoss, 1e-6)
}

func TestCalculatePositionFromBothLevels(t *testing.T) {
	calc := NewCalculator(testConfig(), logging.NewNop())

	plan, err := calc.CalculatePosition(PositionRequest{
		Side:       models.SideBuy,
		EntryPrice: 100,
		TakeProfit: 104,
		StopLoss:   98,
		Balance:    10000,
		History:    goodHistory(20, 12),
	})
	require.NoError(t, err)

	// 2% stop distance, 100 USD budget -> 5000 USD stake
	assert.InDelta(t, 5000.0, plan.PositionSizeUSD, 1e-6)
	assert.Equal(t, 104.0, plan.TakeProfit)
	assert.Equal(t, 98.0, plan.StopLoss)
}

func TestCalculatePositionSellSide(t *testing.T) {
	calc := NewCalculator(testConfig(), logging.NewNop())

	plan, err := calc.CalculatePosition(PositionRequest{
		Side:       models.SideSell,
		EntryPrice: 100,
		TakeProfit: 98,
		Balance:    10000,
		History:    goodHistory(20, 12),
	})
	require.NoError(t, err)

	// for a short the stop sits above the entry
	assert.Greater(t, plan.StopLoss, plan.EntryPrice)
	assert.InDelta(t, 101.0, plan.StopLoss, 1e-9)
	assert.Greater(t, plan.ExpectedProfit, 0.0)
	assert.Less(t, plan.ExpectedLoss, 0.0)
}

func TestCalculatePositionInconsistentLevels(t *testing.T) {
	calc := NewCalculator(testConfig(), logging.NewNop())

	tests := []struct {
		name string
		side models.Side
		tp   float64
		sl   float64
	}{
		{"buy with tp below entry", models.SideBuy, 98, 95},
		{"buy with sl above entry", models.SideBuy, 104, 101},
		{"sell with tp above entry", models.SideSell, 102, 105},
		{"sell with sl below entry", models.SideSell, 98, 99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.CalculatePosition(PositionRequest{
				Side:       tt.side,
				EntryPrice: 100,
				TakeProfit: tt.tp,
				StopLoss:   tt.sl,
				Balance:    10000,
				History:    goodHistory(20, 12),
			})
			var incErr *ParameterInconsistencyError
			require.True(t, errors.As(err, &incErr))
			assert.Equal(t, tt.side, incErr.Side)
		})
	}
}

func TestCalculatePositionUnachievableRiskReward(t *testing.T) {
	cfg := testConfig()
	// fees eat more than the whole loss budget: target nets ~1.7%,
	// required loss 0.85%, fees alone cost 2%
	cfg.Fees.EntryFee = 0.01
	cfg.Fees.SLFee = 0.01
	cfg.Fees.TPFee = 0.003
	calc := NewCalculator(cfg, logging.NewNop())

	_, err := calc.CalculatePosition(PositionRequest{
		Side:       models.SideBuy,
		EntryPrice: 100,
		TakeProfit: 103,
		Balance:    10000,
		History:    goodHistory(20, 12),
	})
	var rrErr *UnachievableRiskRewardError
	require.True(t, errors.As(err, &rrErr))
	assert.Greater(t, rrErr.FeePct, rrErr.RequiredLossPct)
}

func TestCalculatePositionStatisticalGate(t *testing.T) {
	cfg := testConfig()
	calc := NewCalculator(cfg, logging.NewNop())

	t.Run("too few trades", func(t *testing.T) {
		plan, err := calc.CalculatePosition(PositionRequest{
			Side:       models.SideBuy,
			EntryPrice: 100,
			TakeProfit: 102,
			Balance:    10000,
			History:    goodHistory(3, 3),
		})
		require.NoError(t, err)
		assert.Equal(t, cfg.Trading.MinTradeUSD, plan.PositionSizeUSD)
		assert.InDelta(t, 99.0, plan.StopLoss, 1e-9)
	})

	t.Run("winrate below threshold", func(t *testing.T) {
		plan, err := calc.CalculatePosition(PositionRequest{
			Side:       models.SideBuy,
			EntryPrice: 100,
			TakeProfit: 102,
			Balance:    10000,
			History:    goodHistory(20, 5),
		})
		require.NoError(t, err)
		assert.Equal(t, cfg.Trading.MinTradeUSD, plan.PositionSizeUSD)
	})

	t.Run("no levels uses defaults", func(t *testing.T) {
		plan, err := calc.CalculatePosition(PositionRequest{
			Side:       models.SideBuy,
			EntryPrice: 100,
			Balance:    10000,
		})
		require.NoError(t, err)
		// default 2% stop, target at 2% * ratio 2
		assert.InDelta(t, 98.0, plan.StopLoss, 1e-9)
		assert.InDelta(t, 104.0, plan.TakeProfit, 1e-9)
	})
}

func TestCalculatePositionClampedToBalanceCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.Trading.MaxPositionMultiplier = 0.5
	calc := NewCalculator(cfg, logging.NewNop())

	plan, err := calc.CalculatePosition(PositionRequest{
		Side:       models.SideBuy,
		EntryPrice: 100,
		TakeProfit: 102,
		Balance:    10000,
		History:    goodHistory(20, 12),
	})
	require.NoError(t, err)
	assert.InDelta(t, 5000.0, plan.PositionSizeUSD, 1e-6)
}

func TestAdaptivePositionSizeStreaks(t *testing.T) {
	cfg := testConfig()
	calc := NewCalculator(cfg, logging.NewNop())

	base := goodHistory(30, 18) // 60% winrate, short trailing streak

	appendTrades := func(history []models.ClosedTrade, n int, success bool) []models.ClosedTrade {
		out := append([]models.ClosedTrade(nil), history...)
		for i := 0; i < n; i++ {
			profit := 5.0
			if !success {
				profit = -5.0
			}
			out = append(out, models.ClosedTrade{Profit: profit, Success: success})
		}
		return out
	}

	neutral := calc.AdaptivePositionSize(base, 10000)
	onWinStreak := calc.AdaptivePositionSize(appendTrades(base, 3, true), 10000)
	onLossStreak := calc.AdaptivePositionSize(appendTrades(base, 3, false), 10000)

	assert.Greater(t, onWinStreak, neutral, "win streak should scale up")
	assert.Less(t, onLossStreak, neutral, "loss streak should scale down")
	assert.GreaterOrEqual(t, onLossStreak, cfg.Trading.MinTradeUSD)
}

func TestNetPnLFeeAccounting(t *testing.T) {
	cfg := testConfig()
	cfg.Fees.EntryFee = 0.001
	cfg.Fees.TPFee = 0.001
	cfg.Fees.SLFee = 0.0005
	calc := NewCalculator(cfg, logging.NewNop())

	// long 1000 USD at 100, take profit at 102: gross 20, entry fee 1,
	// exit fee 1.02
	profit := calc.NetPnL(100, 102, 1000, models.SideBuy, models.ExitTakeProfit)
	assert.InDelta(t, 20-1-1.02, profit, 1e-9)

	// stop at 99: gross -10, entry fee 1, exit fee 0.495
	loss := calc.NetPnL(100, 99, 1000, models.SideBuy, models.ExitStopLoss)
	assert.InDelta(t, -10-1-0.495, loss, 1e-9)

	// short profits when price falls
	short := calc.NetPnL(100, 98, 1000, models.SideSell, models.ExitTakeProfit)
	assert.Greater(t, short, 0.0)
}

func TestCalculatePositionRejectsBadInput(t *testing.T) {
	calc := NewCalculator(testConfig(), logging.NewNop())

	_, err := calc.CalculatePosition(PositionRequest{Side: models.SideBuy, EntryPrice: 0, Balance: 1000})
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "entry_price", vErr.Field)

	_, err = calc.CalculatePosition(PositionRequest{Side: "LONG", EntryPrice: 100, Balance: 1000})
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "side", vErr.Field)
}

func TestCurrentStreaks(t *testing.T) {
	mk := func(pattern ...bool) []models.ClosedTrade {
		out := make([]models.ClosedTrade, len(pattern))
		for i, s := range pattern {
			out[i].Success = s
		}
		return out
	}

	tests := []struct {
		name   string
		trades []models.ClosedTrade
		wins   int
		losses int
	}{
		{"empty", nil, 0, 0},
		{"trailing wins", mk(false, true, true), 2, 0},
		{"trailing losses", mk(true, false, false, false), 0, 3},
		{"single win", mk(true), 1, 0},
	}
	for _, tt := range tests {
		wins, losses := currentStreaks(tt.trades)
		if wins != tt.wins || losses != tt.losses {
			t.Errorf("%s: got (%d, %d), want (%d, %d)", tt.name, wins, losses, tt.wins, tt.losses)
		}
	}
}

func TestOffsetPrice(t *testing.T) {
	if got := offsetPrice(100, models.SideBuy, 0.02); math.Abs(got-102) > 1e-9 {
		t.Errorf("buy profit offset: got %f, want 102", got)
	}
	if got := offsetPrice(100, models.SideSell, 0.02); math.Abs(got-98) > 1e-9 {
		t.Errorf("sell profit offset: got %f, want 98", got)
	}
	if got := offsetPrice(100, models.SideSell, -0.02); math.Abs(got-102) > 1e-9 {
		t.Errorf("sell loss offset: got %f, want 102", got)
	}
}
