package stats

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// BootstrapResult summarizes resampled estimates of the mean return.
type BootstrapResult struct {
	Resamples  int
	MeanReturn float64
	CILower    float64
	CIUpper    float64
	StdError   float64
	Stable     bool
}

// Bootstrap resamples the return series with replacement and reports a
// 95% percentile confidence interval of the mean. Stable means the
// interval excludes zero from below. The generator is caller-supplied
// so results are reproducible.
func (v *Validator) Bootstrap(returns []float64, resamples int, rng *rand.Rand) BootstrapResult {
	n := len(returns)
	if n < 2 || resamples < 10 {
		return BootstrapResult{}
	}

	means := make([]float64, resamples)
	buf := make([]float64, n)
	for i := 0; i < resamples; i++ {
		for j := range buf {
			buf[j] = returns[rng.Intn(n)]
		}
		means[i] = stat.Mean(buf, nil)
	}

	sorted := append([]float64(nil), means...)
	sort.Float64s(sorted)

	lower := sorted[int(0.025*float64(resamples))]
	upper := sorted[int(math.Min(0.975*float64(resamples), float64(resamples-1)))]

	mean, std := stat.MeanStdDev(means, nil)
	return BootstrapResult{
		Resamples:  resamples,
		MeanReturn: mean,
		CILower:    lower,
		CIUpper:    upper,
		StdError:   std,
		Stable:     lower > 0,
	}
}

// CompareResult is a Welch two-sample t-test between two strategies'
// return series.
type CompareResult struct {
	MeanA       float64
	MeanB       float64
	Statistic   float64
	PValue      float64
	Significant bool
	Better      string
}

// CompareStrategies tests whether two return series differ in mean.
// Better names the series with the higher mean regardless of
// significance; callers decide what to do with an insignificant edge.
func (v *Validator) CompareStrategies(nameA string, a []float64, nameB string, b []float64) CompareResult {
	out := CompareResult{}
	if len(a) < 2 || len(b) < 2 {
		out.PValue = 1
		return out
	}

	meanA, stdA := stat.MeanStdDev(a, nil)
	meanB, stdB := stat.MeanStdDev(b, nil)
	out.MeanA, out.MeanB = meanA, meanB
	out.Better = nameA
	if meanB > meanA {
		out.Better = nameB
	}

	na, nb := float64(len(a)), float64(len(b))
	va, vb := stdA*stdA/na, stdB*stdB/nb
	se := math.Sqrt(va + vb)
	if se < 1e-12 {
		out.PValue = 1
		return out
	}

	t := (meanA - meanB) / se
	df := (va + vb) * (va + vb) / (va*va/(na-1) + vb*vb/(nb-1))
	if df < 1 {
		df = 1
	}

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	out.Statistic = t
	out.PValue = 2 * (1 - dist.CDF(math.Abs(t)))
	out.Significant = out.PValue < v.cfg.Validation.SignificanceLevel
	return out
}
