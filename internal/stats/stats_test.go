package stats

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/quantforge/stratlab/internal/config"
	"github.com/quantforge/stratlab/internal/models"
)

func newValidator() *Validator {
	return NewValidator(config.Default(), nil)
}

// lcgNoise yields a reproducible centered pseudo-random series.
func lcgNoise(seed int64, n int) []float64 {
	x := seed
	out := make([]float64, n)
	for i := range out {
		x = (1103515245*x + 12345) % (1 << 31)
		out[i] = float64(x)/float64(1<<31) - 0.5
	}
	return out
}

// normalScores returns an ordered sample shaped exactly like a normal
// distribution (Blom plotting positions through the inverse CDF).
func normalScores(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		p := (float64(i+1) - 0.375) / (float64(n) + 0.25)
		out[i] = distuv.UnitNormal.Quantile(p)
	}
	return out
}

func tradesFromProfits(profits []float64) []models.ClosedTrade {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.ClosedTrade, len(profits))
	for i, p := range profits {
		out[i] = models.ClosedTrade{Profit: p, Success: p > 0, ClosedAt: ts.Add(time.Duration(i) * time.Hour)}
	}
	return out
}

// steadyProfits is a positive series with mild spread around 5.
func steadyProfits(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 5 + float64(i%7-3)*0.5
	}
	return out
}

func TestTTestDetectsRealEdge(t *testing.T) {
	v := newValidator()

	res := v.TTestGreaterZero(steadyProfits(40))
	assert.True(t, res.Significant)
	assert.Less(t, res.PValue, 0.001)
	assert.Greater(t, res.Statistic, 0.0)
}

func TestTTestRejectsZeroMeanSeries(t *testing.T) {
	v := newValidator()

	returns := make([]float64, 40)
	for i := range returns {
		returns[i] = 1.0
		if i%2 == 1 {
			returns[i] = -1.0
		}
	}

	res := v.TTestGreaterZero(returns)
	assert.False(t, res.Significant)
	assert.InDelta(t, 0.5, res.PValue, 0.01)
}

func TestTTestDegenerateInputs(t *testing.T) {
	v := newValidator()

	assert.False(t, v.TTestGreaterZero(nil).Significant)
	assert.False(t, v.TTestGreaterZero([]float64{1}).Significant)
	// a constant series carries no variance and no evidence
	assert.False(t, v.TTestGreaterZero([]float64{2, 2, 2, 2, 2}).Significant)
}

func TestRunsTestFlagsAlternatingSequence(t *testing.T) {
	v := newValidator()

	returns := make([]float64, 40)
	for i := range returns {
		returns[i] = 1
		if i%2 == 1 {
			returns[i] = -1
		}
	}

	res := v.RunsTest(returns)
	assert.False(t, res.Random)
	assert.Equal(t, 40, res.Runs)
}

func TestRunsTestInconclusiveWithoutBothSigns(t *testing.T) {
	v := newValidator()

	res := v.RunsTest([]float64{1, 2, 3, 4, 5})
	assert.True(t, res.Random)
	assert.Equal(t, 1.0, res.PValue)
}

func TestRunsTestAcceptsBalancedSequence(t *testing.T) {
	v := newValidator()

	// pairs of wins and losses: 10 runs against an expectation of 11
	var returns []float64
	for i := 0; i < 5; i++ {
		returns = append(returns, 1, 1, -1, -1)
	}

	res := v.RunsTest(returns)
	assert.True(t, res.Random)
	assert.Equal(t, 10, res.Runs)
	assert.InDelta(t, 11.0, res.Expected, 1e-9)
}

func TestNormalityAcceptsGaussianShapedSample(t *testing.T) {
	v := newValidator()

	res := v.Normality(normalScores(100))
	assert.False(t, res.ClearlyNonNormal)
	assert.True(t, res.ShapiroNormal)
}

func TestNormalityRejectsSkewedSample(t *testing.T) {
	v := newValidator()

	// exponential quantiles: hard right skew
	sample := make([]float64, 100)
	for i := range sample {
		p := (float64(i) + 0.5) / 100
		sample[i] = -math.Log(1 - p)
	}

	res := v.Normality(sample)
	assert.True(t, res.ClearlyNonNormal)
	assert.False(t, res.JarqueNormal)
}

func TestAutocorrelationDetectsPersistence(t *testing.T) {
	v := newValidator()

	// slow oscillation: strongly correlated neighbours
	returns := make([]float64, 200)
	for i := range returns {
		returns[i] = math.Sin(float64(i) * 0.1)
	}

	res := v.Autocorrelation(returns, 10)
	assert.False(t, res.Independent)
	assert.Contains(t, res.SignificantLags, 1)
}

func TestAutocorrelationAcceptsNoise(t *testing.T) {
	v := newValidator()

	res := v.Autocorrelation(lcgNoise(7, 200), 10)
	assert.True(t, res.Independent)
	assert.Empty(t, res.SignificantLags)
}

func TestARCHEffectDetectsVolatilityClustering(t *testing.T) {
	v := newValidator()

	// calm half followed by violent half, alternating signs throughout
	returns := make([]float64, 200)
	for i := range returns {
		scale := 0.01
		if i >= 100 {
			scale = 1.0
		}
		returns[i] = scale
		if i%2 == 1 {
			returns[i] = -scale
		}
	}

	res := v.ARCHEffect(returns)
	assert.True(t, res.Present)
	assert.Greater(t, res.Lag1Autocorr, 0.5)
}

func TestARCHEffectAbsentInUniformVolatility(t *testing.T) {
	v := newValidator()

	res := v.ARCHEffect(lcgNoise(7, 200))
	assert.False(t, res.Present)
}

func TestBootstrapStableOnConsistentReturns(t *testing.T) {
	v := newValidator()

	// every value positive, so every resampled mean is positive too
	returns := make([]float64, 60)
	for i := range returns {
		returns[i] = 3 + float64(i%5)*0.5
	}

	res := v.Bootstrap(returns, 1000, rand.New(rand.NewSource(42)))
	assert.Equal(t, 1000, res.Resamples)
	assert.True(t, res.Stable)
	assert.Greater(t, res.CILower, 0.0)
	assert.Less(t, res.CILower, res.CIUpper)
	assert.InDelta(t, 4.0, res.MeanReturn, 0.5)
}

func TestBootstrapReproducible(t *testing.T) {
	v := newValidator()
	returns := []float64{1, -2, 3, 4, -1, 2, 5, -3, 2, 1}

	a := v.Bootstrap(returns, 500, rand.New(rand.NewSource(42)))
	b := v.Bootstrap(returns, 500, rand.New(rand.NewSource(42)))
	assert.Equal(t, a, b)
}

func TestCompareStrategiesFindsTheBetterOne(t *testing.T) {
	v := newValidator()

	noise := lcgNoise(11, 50)
	a := make([]float64, 50)
	b := make([]float64, 50)
	for i := range a {
		a[i] = 3 + noise[i]
		b[i] = noise[(i+17)%50]
	}

	res := v.CompareStrategies("alpha", a, "beta", b)
	assert.True(t, res.Significant)
	assert.Equal(t, "alpha", res.Better)
	assert.Greater(t, res.MeanA, res.MeanB)
}

func TestCompareStrategiesInsignificantOnEqualSeries(t *testing.T) {
	v := newValidator()

	a := lcgNoise(19, 50)
	b := append([]float64(nil), a...)

	res := v.CompareStrategies("alpha", a, "beta", b)
	assert.False(t, res.Significant)
	assert.InDelta(t, 0.0, res.Statistic, 1e-12)
}

func TestValidateTradesRequiresMinimumSample(t *testing.T) {
	v := newValidator()

	res := v.ValidateTrades(tradesFromProfits([]float64{5, 5, 5}))
	assert.True(t, res.InsufficientTrades)
	assert.False(t, res.Valid)
}

func TestValidateTradesAcceptsConsistentEdge(t *testing.T) {
	v := newValidator()

	res := v.ValidateTrades(tradesFromProfits(steadyProfits(30)))
	assert.True(t, res.Valid)
	assert.True(t, res.TTest.Significant)
	assert.True(t, res.DispersionOK)
}

func TestValidateTradesRejectsErraticResults(t *testing.T) {
	v := newValidator()

	// near-zero mean under huge swings: dispersion blows past the ceiling
	profits := make([]float64, 30)
	for i := range profits {
		profits[i] = 100.01
		if i%2 == 1 {
			profits[i] = -99.99
		}
	}

	res := v.ValidateTrades(tradesFromProfits(profits))
	assert.False(t, res.Valid)
	assert.False(t, res.DispersionOK)
}
