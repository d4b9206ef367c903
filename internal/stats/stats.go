// Package stats answers one question about a trade history: is the
// observed edge statistically real, or noise. It combines a one-sided
// t-test with dispersion and randomness checks.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/quantforge/stratlab/internal/config"
	"github.com/quantforge/stratlab/internal/logging"
	"github.com/quantforge/stratlab/internal/models"
)

// Validator runs the significance battery against trade results.
type Validator struct {
	cfg *config.Config
	log *logging.Logger
}

func NewValidator(cfg *config.Config, log *logging.Logger) *Validator {
	if log == nil {
		log = logging.NewNop()
	}
	return &Validator{cfg: cfg, log: log}
}

// TTestResult is a one-sample, one-sided t-test of mean > 0.
type TTestResult struct {
	Statistic   float64
	PValue      float64
	Significant bool
}

// TTestGreaterZero tests whether the mean of the returns is positive.
func (v *Validator) TTestGreaterZero(returns []float64) TTestResult {
	n := len(returns)
	if n < 2 {
		return TTestResult{PValue: 1}
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std < 1e-12 {
		// a constant series carries no evidence either way
		return TTestResult{PValue: 1}
	}
	t := mean / (std / math.Sqrt(float64(n)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	p := 1 - dist.CDF(t)
	return TTestResult{
		Statistic:   t,
		PValue:      p,
		Significant: p < v.cfg.Validation.SignificanceLevel,
	}
}

// Validation is the combined verdict over a trade history.
type Validation struct {
	Valid              bool
	TTest              TTestResult
	CoefficientOfVar   float64
	DispersionOK       bool
	Runs               RunsResult
	Normality          NormalityResult
	InsufficientTrades bool
}

// ValidateTrades runs the full battery: significance, dispersion, and
// randomness of the win/loss sequence. Too few trades fails outright.
func (v *Validator) ValidateTrades(trades []models.ClosedTrade) Validation {
	if len(trades) < v.cfg.Validation.MinTradesForSignificance {
		return Validation{InsufficientTrades: true}
	}

	returns := Profits(trades)
	out := Validation{
		TTest:     v.TTestGreaterZero(returns),
		Runs:      v.RunsTest(returns),
		Normality: v.Normality(returns),
	}

	mean, std := stat.MeanStdDev(returns, nil)
	if math.Abs(mean) < 1e-12 {
		out.CoefficientOfVar = math.Inf(1)
	} else {
		out.CoefficientOfVar = math.Abs(std / mean)
	}
	out.DispersionOK = out.CoefficientOfVar < v.cfg.Validation.MaxCoefficientVariation

	// The runs test guards against streaky sequences, but it assumes
	// exchangeability. A sample that is not clearly non-normal gets
	// the benefit of the doubt when the runs test is inconclusive.
	sequenceOK := out.Runs.Random || !out.Normality.ClearlyNonNormal

	out.Valid = out.TTest.Significant && out.DispersionOK && sequenceOK
	return out
}

// Profits extracts the per-trade net P&L series.
func Profits(trades []models.ClosedTrade) []float64 {
	out := make([]float64, len(trades))
	for i, t := range trades {
		out[i] = t.Profit
	}
	return out
}
