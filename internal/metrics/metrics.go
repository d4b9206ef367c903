// Package metrics computes performance ratios from a closed-trade
// history. All ratios are clamped so degenerate return series produce
// finite, comparable scores instead of infinities.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/quantforge/stratlab/internal/models"
)

// Ratio clamps. Annualization uses the daily convention of 252
// trading days.
const (
	sharpeLimit   = 10.0
	sortinoLimit  = 15.0
	calmarLimit   = 20.0
	annualization = 252.0

	// Below this many trades the ratios are scaled down linearly to
	// penalize thin samples.
	fullSampleTrades = 20
)

// Metrics is the performance summary of one backtest.
type Metrics struct {
	TotalReturnPct float64 `json:"total_return_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	SortinoRatio   float64 `json:"sortino_ratio"`
	CalmarRatio    float64 `json:"calmar_ratio"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	TradeCount     int     `json:"trade_count"`
	WinRate        float64 `json:"win_rate"`
	TotalProfit    float64 `json:"total_profit"`
}

// Calculate builds the metrics from the trade sequence and the starting
// balance. An empty history yields the zero value.
func Calculate(trades []models.ClosedTrade, initialBalance float64) Metrics {
	m := Metrics{TradeCount: len(trades)}
	if len(trades) == 0 || initialBalance <= 0 {
		return m
	}

	curve := balanceCurve(trades, initialBalance)
	returns := pctChanges(curve)

	wins := 0
	for _, t := range trades {
		m.TotalProfit += t.Profit
		if t.Success {
			wins++
		}
	}
	m.WinRate = float64(wins) / float64(len(trades))
	m.TotalReturnPct = (curve[len(curve)-1] - initialBalance) / initialBalance * 100
	m.MaxDrawdownPct = maxDrawdown(curve) * 100

	m.SharpeRatio = sharpe(returns)
	m.SortinoRatio = sortino(returns)
	m.CalmarRatio = calmar(m.TotalReturnPct, m.MaxDrawdownPct, tradingDays(trades))

	if penalty := samplePenalty(len(trades)); penalty < 1 {
		m.SharpeRatio *= penalty
		m.SortinoRatio *= penalty
		m.CalmarRatio *= penalty
	}
	return m
}

// Score is the composite optimization objective. Negative components
// contribute nothing so one pathological ratio cannot drag a candidate
// below a strictly worse one.
func Score(m Metrics) float64 {
	return 0.45*math.Max(0, m.SortinoRatio) + 0.45*math.Max(0, m.SharpeRatio) + 0.10*math.Max(0, m.CalmarRatio)
}

// QualityReason codes why a candidate failed the pre-filter.
type QualityReason string

const (
	QualityOK               QualityReason = ""
	QualityTooFewTrades     QualityReason = "too_few_trades"
	QualityUnprofitable     QualityReason = "unprofitable"
	QualityImplausibleRatio QualityReason = "implausible_ratio"
)

// minQualityTrades is the floor below which a result is statistical noise.
const minQualityTrades = 15

// CheckQuality pre-filters a result before scoring. Returns the first
// failed check, or QualityOK.
func CheckQuality(m Metrics) QualityReason {
	if m.TradeCount < minQualityTrades {
		return QualityTooFewTrades
	}
	if m.TotalProfit <= 0 {
		return QualityUnprofitable
	}
	if math.Abs(m.SharpeRatio) >= sharpeLimit ||
		math.Abs(m.SortinoRatio) >= sortinoLimit ||
		math.Abs(m.CalmarRatio) >= calmarLimit {
		return QualityImplausibleRatio
	}
	return QualityOK
}

// balanceCurve is the cumulative balance after each trade, prefixed by
// the starting balance.
func balanceCurve(trades []models.ClosedTrade, initialBalance float64) []float64 {
	curve := make([]float64, 0, len(trades)+1)
	curve = append(curve, initialBalance)
	balance := initialBalance
	for _, t := range trades {
		balance += t.Profit
		curve = append(curve, balance)
	}
	return curve
}

func pctChanges(curve []float64) []float64 {
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1]
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (curve[i]-prev)/prev)
	}
	return out
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std < 1e-6 {
		return 0
	}
	ratio := mean / std * math.Sqrt(annualization)
	return clampFinite(ratio, sharpeLimit)
}

func sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := stat.Mean(returns, nil)

	var downsideSum float64
	downside := 0
	for _, r := range returns {
		if r < 0 {
			downsideSum += r * r
			downside++
		}
	}
	if downside == 0 {
		// no losing observations: maximally good, not an error
		if mean > 0 {
			return sortinoLimit
		}
		return 0
	}

	downsideDev := math.Sqrt(downsideSum / float64(len(returns)))
	if downsideDev < 1e-9 {
		if mean > 0 {
			return sortinoLimit
		}
		return 0
	}
	ratio := mean / downsideDev * math.Sqrt(annualization)
	return clampFinite(ratio, sortinoLimit)
}

func calmar(totalReturnPct, maxDrawdownPct float64, days float64) float64 {
	annualized := totalReturnPct
	if days > 0 {
		annualized = totalReturnPct * 365 / days
	}
	if maxDrawdownPct < 1e-9 {
		if totalReturnPct > 0 {
			return calmarLimit
		}
		return 0
	}
	return clampFinite(annualized/maxDrawdownPct, calmarLimit)
}

// maxDrawdown is the largest peak-to-trough fall of the curve as a
// positive fraction of the running peak.
func maxDrawdown(curve []float64) float64 {
	peak := curve[0]
	maxDD := 0.0
	for _, v := range curve[1:] {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func tradingDays(trades []models.ClosedTrade) float64 {
	if len(trades) < 2 {
		return 0
	}
	span := trades[len(trades)-1].ClosedAt.Sub(trades[0].ClosedAt)
	return span.Hours() / 24
}

func samplePenalty(n int) float64 {
	if n >= fullSampleTrades {
		return 1
	}
	return float64(n) / fullSampleTrades
}

func clampFinite(v, limit float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
