package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// RunsResult is a Wald-Wolfowitz runs test over the signs of the
// return series.
type RunsResult struct {
	Runs      int
	Expected  float64
	Statistic float64
	PValue    float64
	Random    bool
}

// RunsTest checks whether wins and losses alternate like a random
// sequence. Too few of either sign makes the test inconclusive; that
// is reported as random with p=1.
func (v *Validator) RunsTest(returns []float64) RunsResult {
	var pos, neg int
	signs := make([]bool, 0, len(returns))
	for _, r := range returns {
		up := r > 0
		signs = append(signs, up)
		if up {
			pos++
		} else {
			neg++
		}
	}
	if pos < 2 || neg < 2 {
		return RunsResult{PValue: 1, Random: true}
	}

	runs := 1
	for i := 1; i < len(signs); i++ {
		if signs[i] != signs[i-1] {
			runs++
		}
	}

	n1, n2 := float64(pos), float64(neg)
	expected := 2*n1*n2/(n1+n2) + 1
	variance := 2 * n1 * n2 * (2*n1*n2 - n1 - n2) / ((n1 + n2) * (n1 + n2) * (n1 + n2 - 1))
	if variance <= 0 {
		return RunsResult{Runs: runs, Expected: expected, PValue: 1, Random: true}
	}

	z := (float64(runs) - expected) / math.Sqrt(variance)
	norm := distuv.UnitNormal
	p := 2 * (1 - norm.CDF(math.Abs(z)))
	return RunsResult{
		Runs:      runs,
		Expected:  expected,
		Statistic: z,
		PValue:    p,
		Random:    p >= v.cfg.Validation.SignificanceLevel,
	}
}

// AutocorrResult reports serial correlation in the return series.
type AutocorrResult struct {
	Lags            []float64
	SignificantLags []int
	LjungBoxStat    float64
	LjungBoxPValue  float64
	Independent     bool
}

// Autocorrelation estimates the autocorrelation function up to maxLags
// and runs a Ljung-Box portmanteau test over those lags. Significant
// individual lags are those outside the 1.96/sqrt(n) band.
func (v *Validator) Autocorrelation(returns []float64, maxLags int) AutocorrResult {
	n := len(returns)
	if maxLags >= n {
		maxLags = n - 1
	}
	if n < 3 || maxLags < 1 {
		return AutocorrResult{LjungBoxPValue: 1, Independent: true}
	}

	acf := acfValues(returns, maxLags)
	band := 1.96 / math.Sqrt(float64(n))

	out := AutocorrResult{Lags: acf}
	q := 0.0
	for k := 1; k <= maxLags; k++ {
		r := acf[k-1]
		if math.Abs(r) > band {
			out.SignificantLags = append(out.SignificantLags, k)
		}
		q += r * r / float64(n-k)
	}
	q *= float64(n) * float64(n+2)

	chi := distuv.ChiSquared{K: float64(maxLags)}
	out.LjungBoxStat = q
	out.LjungBoxPValue = 1 - chi.CDF(q)
	out.Independent = out.LjungBoxPValue >= v.cfg.Validation.SignificanceLevel
	return out
}

// ARCHResult reports volatility clustering.
type ARCHResult struct {
	Lag1Autocorr float64
	PValue       float64
	Present      bool
}

// ARCHEffect tests for volatility clustering through the lag-1
// autocorrelation of squared returns.
func (v *Validator) ARCHEffect(returns []float64) ARCHResult {
	n := len(returns)
	if n < 4 {
		return ARCHResult{PValue: 1}
	}

	squared := make([]float64, n)
	for i, r := range returns {
		squared[i] = r * r
	}
	r1 := acfValues(squared, 1)[0]

	// under the null, sqrt(n)*r1 is approximately standard normal
	z := math.Abs(r1) * math.Sqrt(float64(n))
	p := 2 * (1 - distuv.UnitNormal.CDF(z))
	return ARCHResult{
		Lag1Autocorr: r1,
		PValue:       p,
		Present:      p < v.cfg.Validation.SignificanceLevel,
	}
}

// acfValues computes sample autocorrelations for lags 1..maxLags.
func acfValues(series []float64, maxLags int) []float64 {
	n := len(series)
	mean := stat.Mean(series, nil)

	var denom float64
	for _, v := range series {
		d := v - mean
		denom += d * d
	}

	out := make([]float64, maxLags)
	if denom < 1e-18 {
		return out
	}
	for k := 1; k <= maxLags; k++ {
		var num float64
		for i := k; i < n; i++ {
			num += (series[i] - mean) * (series[i-k] - mean)
		}
		out[k-1] = num / denom
	}
	return out
}
